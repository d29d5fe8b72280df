package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/position"
	"github.com/kalebr/tradeassist/regime"
	"github.com/kalebr/tradeassist/rules"
	"github.com/kalebr/tradeassist/shared"
	"github.com/rs/zerolog"
)

const (
	// patternWarmup is the number of candles the pattern detector sees per
	// step, and therefore the offset replay starts evaluating from.
	patternWarmup = 10
	// minDailyRows is the minimum history length for a daily replay.
	minDailyRows = 10
	// minIntradayRows is the minimum history length for an intraday replay.
	minIntradayRows = 20
	// historyLimit caps the candles requested from the market source.
	historyLimit = 1000
)

// Config represents the backtest engine configuration.
type Config struct {
	// Symbol is the market being replayed.
	Symbol string
	// Interval is the candle interval of the replay.
	Interval shared.Interval
	// Start restricts the replay to candles on or after it. A zero start
	// leaves the range unbounded on that side.
	Start time.Time
	// End restricts the replay to candles on or before it. A zero end
	// leaves the range unbounded on that side.
	End time.Time
	// InitialCapital is the starting cash balance.
	InitialCapital float64
	// PositionSizePercent sizes every entry as a percentage of available
	// cash, overriding the sizing of the provided rules so capital
	// compounds over the run.
	PositionSizePercent float64
	// Fractional permits fractional share quantities.
	Fractional bool
	// Rules are the trading rules driving the replay.
	Rules []*shared.TradingRule
	// Source provides the historical candles.
	Source shared.MarketSource
	// Detector flags candlestick patterns on the replayed candles.
	Detector shared.PatternDetector
	// RegimeDetector classifies the market regime backing regime change
	// exits. Defaults to a detector with standard settings.
	RegimeDetector *regime.Detector
	// Logger represents the backtest logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.InitialCapital <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %.2f", cfg.InitialCapital))
	}
	if cfg.PositionSizePercent <= 0 || cfg.PositionSizePercent > 100 {
		errs = errors.Join(errs, fmt.Errorf("position size percent must be in (0, 100], got %.2f", cfg.PositionSizePercent))
	}
	if len(cfg.Rules) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no rules provided for the backtest"))
	}
	if !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		errs = errors.Join(errs, fmt.Errorf("end date cannot precede the start date"))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("market source cannot be nil"))
	}
	if cfg.Detector == nil {
		errs = errors.Join(errs, fmt.Errorf("pattern detector cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Result represents the outcome of a backtest run.
type Result struct {
	Symbol         string
	InitialCapital float64
	FinalCapital   float64
	Trades         []shared.CompletedTrade
	EquityCurve    []EquityPoint
	Metrics        Metrics
}

// Engine replays historical candles through the rule engine, tracking the
// trades and equity a rule set would have produced. Runs are
// deterministic, identical inputs yield identical results.
type Engine struct {
	cfg    *Config
	regime *regime.Detector
}

// NewEngine initializes a new backtest engine.
func NewEngine(cfg *Config) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating backtest config: %w", err)
	}

	detector := cfg.RegimeDetector
	if detector == nil {
		detector, err = regime.NewDetector(regime.DefaultDetectorConfig())
		if err != nil {
			return nil, fmt.Errorf("creating regime detector: %w", err)
		}
	}

	return &Engine{
		cfg:    cfg,
		regime: detector,
	}, nil
}

// minimumRows returns the minimum history length for the provided
// interval.
func minimumRows(interval shared.Interval) int {
	if interval.Intraday() {
		return minIntradayRows
	}

	return minDailyRows
}

// filterRange restricts candles to the provided date range, inclusive on
// both ends. A zero start or end leaves that side unbounded.
func filterRange(candles []shared.Candle, start, end time.Time) []shared.Candle {
	filtered := make([]shared.Candle, 0, len(candles))
	for _, candle := range candles {
		if !start.IsZero() && candle.Date.Before(start) {
			continue
		}
		if !end.IsZero() && candle.Date.After(end) {
			continue
		}
		filtered = append(filtered, candle)
	}

	return filtered
}

// cloneRules copies the configured rules so a run never mutates them,
// normalizing entry sizing to the backtest's capital settings and
// clearing any prior execution stamps.
func (e *Engine) cloneRules() []*shared.TradingRule {
	clones := make([]*shared.TradingRule, 0, len(e.cfg.Rules))
	for idx, rule := range e.cfg.Rules {
		clone := *rule
		if clone.ID == "" {
			clone.ID = fmt.Sprintf("rule-%d", idx+1)
		}
		clone.LastExecutedAt = time.Time{}
		if clone.Action.Entry() {
			clone.AmountDollars = 0
			clone.PositionSizePercent = e.cfg.PositionSizePercent
			clone.Fractional = e.cfg.Fractional
		}
		clones = append(clones, &clone)
	}

	return clones
}

// Run replays the configured symbol's history through the rules and
// reports the resulting trades, equity curve and metrics.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	candles, err := e.cfg.Source.FetchCandles(ctx, e.cfg.Symbol, e.cfg.Interval, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", e.cfg.Symbol, err)
	}

	minimum := minimumRows(e.cfg.Interval)
	if len(candles) == 0 {
		return nil, &shared.InsufficientDataError{
			Symbol:   e.cfg.Symbol,
			Minimum:  minimum,
			Interval: e.cfg.Interval,
		}
	}

	shared.SortCandles(candles)
	candles = filterRange(candles, e.cfg.Start, e.cfg.End)
	if len(candles) < minimum {
		return nil, &shared.InsufficientDataError{
			Symbol:   e.cfg.Symbol,
			Rows:     len(candles),
			Minimum:  minimum,
			Interval: e.cfg.Interval,
		}
	}

	// Sequential identifiers keep repeated runs bit for bit identical.
	var ids int
	store, err := portfolio.NewStore(&portfolio.StoreConfig{
		InitialCapital: e.cfg.InitialCapital,
		NewID: func() string {
			ids++
			return fmt.Sprintf("bt-%d", ids)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating portfolio store: %w", err)
	}

	engine, err := rules.NewEngine(&rules.EngineConfig{
		Store:  store,
		Logger: e.cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rule engine: %w", err)
	}

	for _, rule := range e.cloneRules() {
		err = engine.AddRule(rule)
		if err != nil {
			return nil, fmt.Errorf("adding rule: %w", err)
		}
	}

	curve := make([]EquityPoint, 0, len(candles)-patternWarmup)
	for i := patternWarmup; i < len(candles); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candle := candles[i]
		history := candles[:i+1]

		// The regime is classified at most once per candle, on demand.
		var analyzed bool
		var detected shared.Regime
		detectRegime := func() shared.Regime {
			if !analyzed {
				analyzed = true
				detected = e.regime.Detect(e.cfg.Symbol, history, candle.Date).Regime
			}

			return detected
		}

		e.applyExits(store, candle, detectRegime)

		window := candles[i-patternWarmup+1 : i+1]
		for _, match := range e.cfg.Detector.DetectPatterns(window) {
			engine.Evaluate(rules.PatternEvent(match, history, detectRegime(), candle.Date))
		}

		curve = append(curve, EquityPoint{
			Date:   candle.Date,
			Equity: store.Equity(map[string]float64{e.cfg.Symbol: candle.Close}),
		})
	}

	// Liquidate whatever is still held at the final close so every entry
	// has a realized outcome.
	final := candles[len(candles)-1]
	for _, pos := range store.Positions() {
		_, err = store.ClosePosition(portfolio.CloseParams{
			Symbol:    pos.Symbol,
			Direction: pos.Direction,
			Price:     final.Close,
			Reason:    shared.EndOfData,
			Now:       final.Date,
		})
		if err != nil {
			return nil, fmt.Errorf("closing %s position for %s: %w", pos.Direction, pos.Symbol, err)
		}
	}

	result := &Result{
		Symbol:         e.cfg.Symbol,
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   store.Cash(),
		Trades:         store.Trades(),
		EquityCurve:    curve,
	}
	result.Metrics = ComputeMetrics(result.Trades, curve, result.InitialCapital, result.FinalCapital)

	e.cfg.Logger.Info().Msgf("backtested %s over %d candles: %d trades, %.2f%% return",
		e.cfg.Symbol, len(candles), result.Metrics.TotalTrades, result.Metrics.TotalReturnPercent)

	return result, nil
}

// applyExits refreshes open positions on the symbol with the candle close
// and liquidates any whose exit conditions fire.
func (e *Engine) applyExits(store *portfolio.Store, candle shared.Candle, detectRegime func() shared.Regime) {
	for _, pos := range store.TouchPrice(e.cfg.Symbol, candle.Close) {
		// Regime change exits only concern positions that entered with
		// the trend, so the regime is left unknown otherwise.
		live := shared.Unknown
		if pos.Direction == shared.Long && pos.OriginRegime == shared.Uptrend ||
			pos.Direction == shared.Short && pos.OriginRegime == shared.Downtrend {
			live = detectRegime()
		}

		reason, ok := position.EvaluateExit(&pos, candle.Close, candle.Date, live)
		if !ok {
			continue
		}

		_, err := store.ClosePosition(portfolio.CloseParams{
			Symbol:    pos.Symbol,
			Direction: pos.Direction,
			Price:     candle.Close,
			Reason:    reason,
			Now:       candle.Date,
		})
		if err != nil {
			e.cfg.Logger.Error().Err(err).Msgf("closing %s position for %s", pos.Direction, pos.Symbol)
			continue
		}

		e.cfg.Logger.Debug().Msgf("closed %s position for %s @ %.2f (%s)",
			pos.Direction, pos.Symbol, candle.Close, reason)
	}
}
