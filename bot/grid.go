package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/shared"
)

// GridConfig represents the grid bot configuration.
type GridConfig struct {
	// Store is the portfolio store grid orders execute against.
	Store *portfolio.Store
	// Source provides quotes for the gridded symbol.
	Source shared.MarketSource
	// Symbol is the market the grid trades.
	Symbol string
	// AnchorPrice centers the grid. Defaults to the first polled quote.
	AnchorPrice float64
	// SpacingPercent is the gap between adjacent grid levels, as a
	// percentage of the anchor price.
	SpacingPercent float64
	// Levels is the number of grid levels on each side of the anchor.
	Levels int
	// AmountDollars is the notional bought or sold per level crossing.
	AmountDollars float64
	// Fractional permits fractional share orders.
	Fractional bool
	// Notify sends the provided message. Optional.
	Notify shared.Notifier
	// TickSeconds is the poll cadence. Defaults to defaultTickSeconds.
	TickSeconds int
	// JobScheduler schedules the periodic polls.
	JobScheduler *gocron.Scheduler
	// Logger represents the bot logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *GridConfig) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("portfolio store cannot be nil"))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("market source cannot be nil"))
	}
	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.SpacingPercent <= 0 || cfg.SpacingPercent >= 100 {
		errs = errors.Join(errs, fmt.Errorf("level spacing must be in (0, 100), got %.2f", cfg.SpacingPercent))
	}
	if cfg.Levels <= 0 {
		errs = errors.Join(errs, fmt.Errorf("level count must be positive, got %d", cfg.Levels))
	}
	if cfg.AmountDollars <= 0 {
		errs = errors.Join(errs, fmt.Errorf("level amount must be positive, got %.2f", cfg.AmountDollars))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Grid trades a ladder of price levels around an anchor price, buying
// downward level crossings and selling upward ones.
type Grid struct {
	cfg       *GridConfig
	job       *gocron.Job
	busy      atomic.Bool
	anchor    float64
	lastPrice float64
}

// NewGrid initializes a new grid bot.
func NewGrid(cfg *GridConfig) (*Grid, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating grid config: %w", err)
	}

	if cfg.TickSeconds == 0 {
		cfg.TickSeconds = defaultTickSeconds
	}

	return &Grid{
		cfg:    cfg,
		anchor: cfg.AnchorPrice,
	}, nil
}

// Start registers the grid's periodic poll with the job scheduler.
func (g *Grid) Start(now time.Time) error {
	job, err := schedule(g.cfg.JobScheduler, g.cfg.TickSeconds, now, g.tick)
	if err != nil {
		return fmt.Errorf("scheduling grid polls: %w", err)
	}

	g.job = job
	return nil
}

// Stop deregisters the grid's periodic poll. An in-flight poll runs to
// completion.
func (g *Grid) Stop() {
	if g.job != nil {
		g.cfg.JobScheduler.RemoveByReference(g.job)
	}
}

// tick polls the gridded symbol's price once and executes any level
// crossings. A tick arriving while the prior one is still running is
// skipped.
func (g *Grid) tick() {
	if !g.busy.CompareAndSwap(false, true) {
		g.cfg.Logger.Debug().Msg("prior poll still running, skipping tick")
		return
	}
	defer g.busy.Store(false)

	now, _, err := shared.NewYorkTime()
	if err != nil {
		g.cfg.Logger.Error().Msgf("fetching exchange time: %v", err)
		return
	}

	price, err := g.cfg.Source.FetchQuote(context.Background(), g.cfg.Symbol)
	if err != nil {
		g.cfg.Logger.Error().Msgf("fetching quote for %s: %v", g.cfg.Symbol, err)
		return
	}

	if g.anchor == 0 {
		g.anchor = price
		g.cfg.Logger.Info().Msgf("anchored %s grid at %.2f, %d levels %.2f%% apart",
			g.cfg.Symbol, price, g.cfg.Levels, g.cfg.SpacingPercent)
	}

	// The first polled quote primes the crossing reference.
	if g.lastPrice == 0 {
		g.lastPrice = price
		return
	}

	g.trade(price, now)
	g.lastPrice = price
}

// trade executes the level crossings between the last observed price and
// the provided one.
func (g *Grid) trade(price float64, now time.Time) {
	step := g.anchor * g.cfg.SpacingPercent / 100
	for k := 1; k <= g.cfg.Levels; k++ {
		buyLevel := g.anchor - float64(k)*step
		if g.lastPrice > buyLevel && price <= buyLevel {
			g.buy(buyLevel, price, now)
		}

		sellLevel := g.anchor + float64(k)*step
		if g.lastPrice < sellLevel && price >= sellLevel {
			g.sell(sellLevel, price, now)
		}
	}
}

// buy fills the crossed buy level at the current price.
func (g *Grid) buy(level, price float64, now time.Time) {
	shares := g.cfg.AmountDollars / price
	if !g.cfg.Fractional {
		shares = math.Floor(shares)
		if shares == 0 {
			g.cfg.Logger.Error().Msgf("grid level %.2f cannot buy a whole share of %s at %.2f",
				level, g.cfg.Symbol, price)
			return
		}
	}

	_, err := g.cfg.Store.OpenPosition(portfolio.OpenParams{
		RuleID:    "grid-" + g.cfg.Symbol,
		Symbol:    g.cfg.Symbol,
		Direction: shared.Long,
		Shares:    shares,
		Price:     price,
		Now:       now,
	})
	if err != nil {
		g.cfg.Logger.Error().Msgf("buying grid level %.2f for %s: %v", level, g.cfg.Symbol, err)
		return
	}

	g.notify(fmt.Sprintf("Grid buy: %.4f %s shares @ %.2f crossing level %.2f",
		shares, g.cfg.Symbol, price, level))
}

// sell liquidates the crossed sell level's notional at the current price.
func (g *Grid) sell(level, price float64, now time.Time) {
	pos, ok := g.cfg.Store.PositionFor(g.cfg.Symbol, shared.Long)
	if !ok {
		g.cfg.Logger.Debug().Msgf("no %s holding to sell at grid level %.2f", g.cfg.Symbol, level)
		return
	}

	shares := math.Min(g.cfg.AmountDollars/price, pos.Shares)
	if !g.cfg.Fractional {
		shares = math.Floor(shares)
	}
	if shares == 0 {
		g.cfg.Logger.Debug().Msgf("no whole %s share to sell at grid level %.2f", g.cfg.Symbol, level)
		return
	}

	trade, err := g.cfg.Store.ClosePosition(portfolio.CloseParams{
		Symbol:    g.cfg.Symbol,
		Direction: shared.Long,
		Shares:    shares,
		Price:     price,
		Reason:    shared.Manual,
		Now:       now,
	})
	if err != nil {
		g.cfg.Logger.Error().Msgf("selling grid level %.2f for %s: %v", level, g.cfg.Symbol, err)
		return
	}

	g.notify(fmt.Sprintf("Grid sell: %.4f %s shares @ %.2f crossing level %.2f, P/L %.2f",
		trade.Shares, g.cfg.Symbol, price, level, trade.PNL))
}

// notify relays the provided message when a notifier is configured.
func (g *Grid) notify(message string) {
	if g.cfg.Notify != nil {
		g.cfg.Notify(message)
	}
}
