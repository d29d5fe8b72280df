package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/position"
	"github.com/kalebr/tradeassist/regime"
	"github.com/kalebr/tradeassist/shared"
)

// MonitorConfig represents the position monitor configuration.
type MonitorConfig struct {
	// Store is the portfolio store holding the monitored positions.
	Store *portfolio.Store
	// Source provides quotes and history for monitored symbols.
	Source shared.MarketSource
	// RegimeDetector classifies prevailing market regimes for regime change
	// exits. Defaults to a detector with the default configuration.
	RegimeDetector *regime.Detector
	// Interval is the candle interval regime classification runs on.
	Interval shared.Interval
	// PersistTrade stores the provided completed trade. Optional.
	PersistTrade func(trade *shared.CompletedTrade) error
	// Notify sends the provided message. Optional.
	Notify shared.Notifier
	// TickSeconds is the poll cadence. Defaults to defaultTickSeconds.
	TickSeconds int
	// JobScheduler schedules the periodic polls.
	JobScheduler *gocron.Scheduler
	// Logger represents the monitor logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *MonitorConfig) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("portfolio store cannot be nil"))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("market source cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Monitor polls prices for open positions and applies their exit rules.
type Monitor struct {
	cfg  *MonitorConfig
	job  *gocron.Job
	busy atomic.Bool
}

// NewMonitor initializes a new position monitor.
func NewMonitor(cfg *MonitorConfig) (*Monitor, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating monitor config: %w", err)
	}

	if cfg.TickSeconds == 0 {
		cfg.TickSeconds = defaultTickSeconds
	}
	if cfg.RegimeDetector == nil {
		cfg.RegimeDetector, err = regime.NewDetector(regime.DefaultDetectorConfig())
		if err != nil {
			return nil, fmt.Errorf("creating regime detector: %w", err)
		}
	}

	return &Monitor{cfg: cfg}, nil
}

// Start registers the monitor's periodic poll with the job scheduler.
func (m *Monitor) Start(now time.Time) error {
	job, err := schedule(m.cfg.JobScheduler, m.cfg.TickSeconds, now, m.tick)
	if err != nil {
		return fmt.Errorf("scheduling position polls: %w", err)
	}

	m.job = job
	return nil
}

// Stop deregisters the monitor's periodic poll. An in-flight poll runs to
// completion.
func (m *Monitor) Stop() {
	if m.job != nil {
		m.cfg.JobScheduler.RemoveByReference(m.job)
	}
}

// openSymbols returns the distinct symbols of the provided positions.
func openSymbols(positions []shared.Position) []string {
	seen := make(map[string]struct{})
	symbols := []string{}
	for _, pos := range positions {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		symbols = append(symbols, pos.Symbol)
	}

	return symbols
}

// tick polls every symbol with open positions once. A tick arriving while
// the prior one is still running is skipped.
func (m *Monitor) tick() {
	if !m.busy.CompareAndSwap(false, true) {
		m.cfg.Logger.Debug().Msg("prior poll still running, skipping tick")
		return
	}
	defer m.busy.Store(false)

	now, _, err := shared.NewYorkTime()
	if err != nil {
		m.cfg.Logger.Error().Msgf("fetching exchange time: %v", err)
		return
	}

	ctx := context.Background()
	for _, symbol := range openSymbols(m.cfg.Store.Positions()) {
		m.check(ctx, symbol, now)
	}
}

// check polls the provided symbol's price and applies exit rules to its open
// positions. Data source failures degrade to a no-exit poll.
func (m *Monitor) check(ctx context.Context, symbol string, now time.Time) {
	price, err := m.cfg.Source.FetchQuote(ctx, symbol)
	if err != nil {
		m.cfg.Logger.Error().Msgf("fetching quote for %s: %v", symbol, err)
		return
	}

	// The regime is classified at most once per poll, on demand.
	var analyzed bool
	var detected shared.Regime
	detectRegime := func() shared.Regime {
		if !analyzed {
			analyzed = true
			candles, err := m.cfg.Source.FetchCandles(ctx, symbol, m.cfg.Interval, historyLimit)
			if err != nil {
				m.cfg.Logger.Error().Msgf("fetching %s history for %s: %v", m.cfg.Interval, symbol, err)
				return detected
			}
			detected = m.cfg.RegimeDetector.Detect(symbol, candles, now).Regime
		}

		return detected
	}

	for _, pos := range m.cfg.Store.TouchPrice(symbol, price) {
		// Regime change exits only concern positions that entered with the
		// trend, so the regime is left unknown otherwise.
		live := shared.Unknown
		if (pos.Direction == shared.Long && pos.OriginRegime == shared.Uptrend) ||
			(pos.Direction == shared.Short && pos.OriginRegime == shared.Downtrend) {
			live = detectRegime()
		}

		reason, exit := position.EvaluateExit(&pos, price, now, live)
		if !exit {
			pnl, pct := position.UnrealizedPNL(&pos, price)
			m.cfg.Logger.Debug().Msgf("holding %s %s @ %.2f, unrealized p/l %.2f (%.2f%%)",
				pos.Direction, pos.Symbol, price, pnl, pct)
			continue
		}

		trade, err := m.cfg.Store.ClosePosition(portfolio.CloseParams{
			Symbol:    pos.Symbol,
			Direction: pos.Direction,
			Price:     price,
			Reason:    reason,
			Now:       now,
		})
		if err != nil {
			m.cfg.Logger.Error().Msgf("closing %s position for %s: %v", pos.Direction, pos.Symbol, err)
			continue
		}

		m.persist(&trade)
		m.notify(fmt.Sprintf("Closed %s position of %.4f %s shares @ %.2f (%s), P/L %.2f (%.2f%%)",
			trade.Direction, trade.Shares, trade.Symbol, trade.ExitPrice, reason, trade.PNL, trade.PNLPercent))
	}
}

// persist stores the provided completed trade when a persister is
// configured.
func (m *Monitor) persist(trade *shared.CompletedTrade) {
	if m.cfg.PersistTrade == nil {
		return
	}

	err := m.cfg.PersistTrade(trade)
	if err != nil {
		m.cfg.Logger.Error().Msgf("persisting trade %s: %v", trade.ID, err)
	}
}

// notify relays the provided message when a notifier is configured.
func (m *Monitor) notify(message string) {
	if m.cfg.Notify != nil {
		m.cfg.Notify(message)
	}
}
