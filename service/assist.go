package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"

	"github.com/kalebr/tradeassist/backtest"
	"github.com/kalebr/tradeassist/bot"
	"github.com/kalebr/tradeassist/database"
	"github.com/kalebr/tradeassist/fetch"
	"github.com/kalebr/tradeassist/pattern"
	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/rules"
	"github.com/kalebr/tradeassist/shared"
	"github.com/kalebr/tradeassist/strategy"
)

const (
	// defaultRiskProfile names the preset used when none is configured.
	defaultRiskProfile = "balanced"
	// defaultOrderDollars sizes seeded rule entries.
	defaultOrderDollars = 1000
	// defaultScanInterval is the candle interval scans and backtests run
	// on when none is configured.
	defaultScanInterval = "1day"
	// defaultSignalBias allows advisory signals in both directions.
	defaultSignalBias = "both"
	// defaultBacktestSizePercent sizes backtest entries as a percentage of
	// available cash.
	defaultBacktestSizePercent = 10
	// defaultTradesCSV is the filepath backtest trades export to.
	defaultTradesCSV = "trades.csv"
)

// AssistConfig represents the configuration struct for the assist service.
type AssistConfig struct {
	// Symbols represents the scanned symbols.
	Symbols []string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// ReplayDataFilepath is the filepath to historic market data. When set
	// the assistant reads market data from the file instead of the
	// provider.
	ReplayDataFilepath string
	// InitialCapital is the simulated starting cash balance.
	InitialCapital float64
	// RiskProfile names the risk preset seeded rules are built from.
	RiskProfile string
	// OrderDollars is the notional seeded rule entries are sized with.
	OrderDollars float64
	// ScanInterval is the candle interval scans and backtests run on.
	ScanInterval string
	// SignalBias restricts the directions advisory signals may take.
	SignalBias string
	// DatabaseEndpoint is the rqlite endpoint. Persistence is disabled
	// when unset.
	DatabaseEndpoint string
	// DatabaseUser is the rqlite basic auth user.
	DatabaseUser string
	// DatabasePass is the rqlite basic auth password.
	DatabasePass string
	// DCASymbol is the symbol of the seeded recurring buy. Optional.
	DCASymbol string
	// DCADollars is the notional of the seeded recurring buy.
	DCADollars float64
	// DCAInterval is the cadence of the seeded recurring buy.
	DCAInterval string
	// GridSymbol is the symbol the grid bot trades. Optional.
	GridSymbol string
	// GridSpacingPercent is the gap between adjacent grid levels.
	GridSpacingPercent float64
	// GridLevels is the number of grid levels on each side of the anchor.
	GridLevels int
	// GridDollars is the notional traded per grid level crossing.
	GridDollars float64
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestSymbol is the symbol being backtested.
	BacktestSymbol string
	// BacktestCSVFilepath is the filepath backtest trades export to.
	BacktestCSVFilepath string
	// Notify relays assistant messages. Optional.
	Notify shared.Notifier
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *AssistConfig) Validate() error {
	var errs error

	if cfg.FMPAPIKey == "" && cfg.ReplayDataFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("a market data source is required, set an fmp api key or a replay data filepath"))
	}
	if cfg.InitialCapital <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %.2f", cfg.InitialCapital))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}
	switch cfg.Backtest {
	case true:
		if cfg.BacktestSymbol == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest symbol cannot be an empty string"))
		}
	case false:
		if len(cfg.Symbols) == 0 {
			errs = errors.Join(errs, fmt.Errorf("no symbols provided for the assist service"))
		}
	}

	return errs
}

// Assist represents the trading assistant service.
type Assist struct {
	cfg       *AssistConfig
	profile   rules.RiskProfile
	interval  shared.Interval
	store     *portfolio.Store
	source    shared.MarketSource
	detector  shared.PatternDetector
	db        shared.RecordStorer
	engine    *rules.Engine
	scanner   *bot.Scanner
	monitor   *bot.Monitor
	dcaBot    *bot.DCABot
	grid      *bot.Grid
	scheduler *gocron.Scheduler
	logger    *zerolog.Logger
	wg        sync.WaitGroup
}

// NewAssist initializes a new assist service.
func NewAssist(cfg *AssistConfig) (*Assist, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating assist config: %w", err)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "assist").Logger()

	if cfg.RiskProfile == "" {
		cfg.RiskProfile = defaultRiskProfile
	}
	if cfg.OrderDollars == 0 {
		cfg.OrderDollars = defaultOrderDollars
	}
	if cfg.ScanInterval == "" {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.SignalBias == "" {
		cfg.SignalBias = defaultSignalBias
	}
	if cfg.BacktestCSVFilepath == "" {
		cfg.BacktestCSVFilepath = defaultTradesCSV
	}

	profile, err := rules.ParseProfile(cfg.RiskProfile)
	if err != nil {
		return nil, fmt.Errorf("parsing risk profile: %v", err)
	}

	interval, err := shared.ParseInterval(cfg.ScanInterval)
	if err != nil {
		return nil, fmt.Errorf("parsing scan interval: %v", err)
	}

	bias, err := strategy.ParseBias(cfg.SignalBias)
	if err != nil {
		return nil, fmt.Errorf("parsing signal bias: %v", err)
	}
	strategyCfg := strategy.DefaultConfig()
	strategyCfg.Bias = bias
	generator, err := strategy.NewGenerator(strategyCfg)
	if err != nil {
		return nil, fmt.Errorf("creating signal generator: %v", err)
	}

	_, loc, err := shared.NewYorkTime()
	if err != nil {
		return nil, fmt.Errorf("fetching new york time: %v", err)
	}

	var source shared.MarketSource
	switch {
	case cfg.ReplayDataFilepath != "":
		sourceLogger := logger.With().Str("component", "filesource").Logger()
		source, err = fetch.NewFileSource(&fetch.FileSourceConfig{
			FilePath: cfg.ReplayDataFilepath,
			Logger:   &sourceLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating file data source: %v", err)
		}
	default:
		sourceLogger := logger.With().Str("component", "fetchclient").Logger()
		source, err = fetch.NewClient(&fetch.ClientConfig{
			APIKey:  cfg.FMPAPIKey,
			BaseURL: fetch.BaseURL,
			Logger:  &sourceLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating market data client: %v", err)
		}
	}

	store, err := portfolio.NewStore(&portfolio.StoreConfig{InitialCapital: cfg.InitialCapital})
	if err != nil {
		return nil, fmt.Errorf("creating portfolio store: %v", err)
	}

	var db *database.Database
	if cfg.DatabaseEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err = database.NewDatabase(context.Background(), &database.Config{
			Endpoint: cfg.DatabaseEndpoint,
			User:     cfg.DatabaseUser,
			Pass:     cfg.DatabasePass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database: %v", err)
		}
	}

	var persistTrade func(trade *shared.CompletedTrade) error
	var persistConfig func(dca *shared.DCAConfig) error
	var persistExecution func(record *shared.ExecutionRecord) error
	if db != nil {
		persistTrade = func(trade *shared.CompletedTrade) error {
			return db.SaveTrade(context.Background(), trade)
		}
		persistConfig = func(dca *shared.DCAConfig) error {
			return db.SaveDCAConfig(context.Background(), dca)
		}
		persistExecution = func(record *shared.ExecutionRecord) error {
			return db.SaveExecution(context.Background(), record)
		}
	}

	engineLogger := logger.With().Str("component", "rules").Logger()
	engine, err := rules.NewEngine(&rules.EngineConfig{
		Store:            store,
		PersistExecution: persistExecution,
		Notify:           cfg.Notify,
		Logger:           &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rule engine: %v", err)
	}

	scheduler := gocron.NewScheduler(loc)
	detector := pattern.NewDetector(pattern.Config{})

	scannerLogger := logger.With().Str("component", "scanner").Logger()
	scanner, err := bot.NewScanner(&bot.ScannerConfig{
		Engine:          engine,
		Source:          source,
		Detector:        detector,
		SignalGenerator: generator,
		Interval:        interval,
		Notify:          cfg.Notify,
		JobScheduler:    scheduler,
		Logger:          &scannerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating scanner bot: %v", err)
	}

	monitorLogger := logger.With().Str("component", "monitor").Logger()
	monitor, err := bot.NewMonitor(&bot.MonitorConfig{
		Store:        store,
		Source:       source,
		Interval:     interval,
		PersistTrade: persistTrade,
		Notify:       cfg.Notify,
		JobScheduler: scheduler,
		Logger:       &monitorLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating monitor bot: %v", err)
	}

	dcaLogger := logger.With().Str("component", "dca").Logger()
	dcaBot, err := bot.NewDCABot(&bot.DCABotConfig{
		Store:         store,
		Source:        source,
		PersistConfig: persistConfig,
		Notify:        cfg.Notify,
		JobScheduler:  scheduler,
		Logger:        &dcaLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating dca bot: %v", err)
	}

	var grid *bot.Grid
	if cfg.GridSymbol != "" {
		gridLogger := logger.With().Str("component", "grid").Logger()
		grid, err = bot.NewGrid(&bot.GridConfig{
			Store:          store,
			Source:         source,
			Symbol:         cfg.GridSymbol,
			SpacingPercent: cfg.GridSpacingPercent,
			Levels:         cfg.GridLevels,
			AmountDollars:  cfg.GridDollars,
			Fractional:     true,
			Notify:         cfg.Notify,
			JobScheduler:   scheduler,
			Logger:         &gridLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating grid bot: %v", err)
		}
	}

	service := &Assist{
		cfg:       cfg,
		profile:   profile,
		interval:  interval,
		store:     store,
		source:    source,
		detector:  detector,
		engine:    engine,
		scanner:   scanner,
		monitor:   monitor,
		dcaBot:    dcaBot,
		grid:      grid,
		scheduler: scheduler,
		logger:    &logger,
	}

	// Storing a nil handle directly would make the interface non-nil.
	if db != nil {
		service.db = db
	}

	return service, nil
}

// defaultRules builds the assistant's default rule set for the provided
// symbol, buying bullish reversal patterns and golden crosses with the
// configured risk profile's gates and exits.
func (a *Assist) defaultRules(symbol string) []*shared.TradingRule {
	return []*shared.TradingRule{
		rules.NewPatternRule(a.profile, symbol, shared.Buy, shared.Hammer, a.cfg.OrderDollars),
		rules.NewPatternRule(a.profile, symbol, shared.Buy, shared.BullishEngulfing, a.cfg.OrderDollars),
		rules.NewCrossoverRule(a.profile, symbol, shared.Buy, shared.GoldenCross, a.cfg.OrderDollars),
	}
}

// seedRules registers the default rule set for every scanned symbol when
// no rules were loaded from the database.
func (a *Assist) seedRules(ctx context.Context) error {
	if len(a.engine.Rules()) > 0 {
		return nil
	}

	seeded := 0
	for _, symbol := range a.cfg.Symbols {
		for _, rule := range a.defaultRules(symbol) {
			err := a.engine.AddRule(rule)
			if err != nil {
				return fmt.Errorf("adding default rule for %s: %v", symbol, err)
			}

			if a.db != nil {
				err = a.db.SaveRule(ctx, rule)
				if err != nil {
					a.logger.Error().Msgf("persisting default rule %s: %v", rule.ID, err)
				}
			}

			seeded++
		}
	}

	a.logger.Info().Msgf("seeded %d default rules from the %s profile", seeded, a.profile.Name)

	return nil
}

// seedRecurringBuy registers the configured recurring buy unless one for
// the symbol was already loaded from the database.
func (a *Assist) seedRecurringBuy(ctx context.Context) error {
	if a.cfg.DCASymbol == "" {
		return nil
	}

	for _, dca := range a.dcaBot.Configs() {
		if dca.Symbol == a.cfg.DCASymbol {
			return nil
		}
	}

	if a.cfg.DCAInterval == "" {
		a.cfg.DCAInterval = "daily"
	}
	interval, err := shared.ParseDCAInterval(a.cfg.DCAInterval)
	if err != nil {
		return fmt.Errorf("parsing dca interval: %v", err)
	}

	dca := &shared.DCAConfig{
		Symbol:        a.cfg.DCASymbol,
		AmountDollars: a.cfg.DCADollars,
		Interval:      interval,
		Enabled:       true,
		Fractional:    true,
	}
	err = a.dcaBot.AddConfig(dca)
	if err != nil {
		return fmt.Errorf("adding recurring buy: %v", err)
	}

	if a.db != nil {
		err = a.db.SaveDCAConfig(ctx, dca)
		if err != nil {
			a.logger.Error().Msgf("persisting recurring buy %s: %v", dca.ID, err)
		}
	}

	return nil
}

// start loads persisted state and registers every bot with the job
// scheduler.
func (a *Assist) start(ctx context.Context) error {
	now, _, err := shared.NewYorkTime()
	if err != nil {
		return fmt.Errorf("fetching new york time: %v", err)
	}

	if a.db != nil {
		loaded, err := a.db.LoadRules(ctx)
		if err != nil {
			return fmt.Errorf("loading rules: %v", err)
		}
		for _, rule := range loaded {
			err = a.engine.AddRule(rule)
			if err != nil {
				// Stored records that no longer validate are pruned.
				a.logger.Error().Msgf("pruning stored rule %s: %v", rule.ID, err)
				err = a.db.DeleteRule(ctx, rule.ID)
				if err != nil {
					a.logger.Error().Msgf("deleting stored rule %s: %v", rule.ID, err)
				}
			}
		}

		dcas, err := a.db.LoadDCAConfigs(ctx)
		if err != nil {
			return fmt.Errorf("loading recurring buys: %v", err)
		}
		for _, dca := range dcas {
			err = a.dcaBot.AddConfig(dca)
			if err != nil {
				a.logger.Error().Msgf("pruning stored recurring buy %s: %v", dca.ID, err)
				err = a.db.DeleteDCAConfig(ctx, dca.ID)
				if err != nil {
					a.logger.Error().Msgf("deleting stored recurring buy %s: %v", dca.ID, err)
				}
			}
		}
	}

	err = a.seedRules(ctx)
	if err != nil {
		return err
	}

	err = a.seedRecurringBuy(ctx)
	if err != nil {
		return err
	}

	err = a.scanner.Start(now)
	if err != nil {
		return fmt.Errorf("starting scanner bot: %v", err)
	}
	err = a.monitor.Start(now)
	if err != nil {
		return fmt.Errorf("starting monitor bot: %v", err)
	}
	err = a.dcaBot.Start(now)
	if err != nil {
		return fmt.Errorf("starting dca bot: %v", err)
	}
	if a.grid != nil {
		err = a.grid.Start(now)
		if err != nil {
			return fmt.Errorf("starting grid bot: %v", err)
		}
	}

	return nil
}

// runBacktest replays the backtest symbol's history through the default
// rule set and reports the results.
func (a *Assist) runBacktest(ctx context.Context) {
	backtestLogger := a.logger.With().Str("component", "backtest").Logger()
	engine, err := backtest.NewEngine(&backtest.Config{
		Symbol:              a.cfg.BacktestSymbol,
		Interval:            a.interval,
		InitialCapital:      a.cfg.InitialCapital,
		PositionSizePercent: defaultBacktestSizePercent,
		Fractional:          true,
		Rules:               a.defaultRules(a.cfg.BacktestSymbol),
		Source:              a.source,
		Detector:            a.detector,
		Logger:              &backtestLogger,
	})
	if err != nil {
		a.logger.Error().Msgf("creating backtest engine: %v", err)
		return
	}

	result, err := engine.Run(ctx)
	if err != nil {
		a.logger.Error().Msgf("running backtest: %v", err)
		return
	}

	metrics := result.Metrics
	a.logger.Info().Msgf("%s backtest: %d trades, %.1f%% win rate, profit factor %.2f, max drawdown %.2f (%.2f%%), return %.2f (%.2f%%)",
		result.Symbol, metrics.TotalTrades, metrics.WinRate, metrics.ProfitFactor,
		metrics.MaxDrawdown, metrics.MaxDrawdownPercent, metrics.TotalReturn,
		metrics.TotalReturnPercent)

	err = backtest.WriteTradesCSV(result.Trades, a.cfg.BacktestCSVFilepath)
	if err != nil {
		a.logger.Error().Msgf("exporting trades: %v", err)
		return
	}

	a.logger.Info().Msgf("backtest for %s done, review %s for performance",
		a.cfg.BacktestSymbol, a.cfg.BacktestCSVFilepath)
}

// Run handles the lifecycle processes of the assist service.
func (a *Assist) Run(ctx context.Context) {
	if a.cfg.Backtest {
		a.wg.Add(1)
		go func() {
			a.runBacktest(ctx)
			a.cfg.Cancel()
			a.wg.Done()
		}()

		a.wg.Wait()
		return
	}

	err := a.start(ctx)
	if err != nil {
		a.logger.Error().Msgf("starting the assistant: %v", err)
		a.cfg.Cancel()
		return
	}

	a.scheduler.StartAsync()
	<-ctx.Done()

	// Deregistering the jobs stops new ticks. In-flight ticks run to
	// completion.
	a.scheduler.Stop()
}
