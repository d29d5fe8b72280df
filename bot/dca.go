package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/shared"
)

// executionHour is the hour of the exchange day daily and weekly recurring
// buys run at.
const executionHour = 9

// DCABotConfig represents the recurring buy bot configuration.
type DCABotConfig struct {
	// Store is the portfolio store buys execute against.
	Store *portfolio.Store
	// Source provides quotes for recurring buys.
	Source shared.MarketSource
	// PersistConfig stores the provided recurring buy after its schedule
	// advances. Optional.
	PersistConfig func(dca *shared.DCAConfig) error
	// Notify sends the provided message. Optional.
	Notify shared.Notifier
	// TickSeconds is the schedule check cadence. Defaults to
	// defaultTickSeconds.
	TickSeconds int
	// JobScheduler schedules the periodic checks.
	JobScheduler *gocron.Scheduler
	// Logger represents the bot logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DCABotConfig) Validate() error {
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

// DCABot executes recurring fixed dollar buys on their schedules.
type DCABot struct {
	cfg     *DCABotConfig
	job     *gocron.Job
	busy    atomic.Bool
	mtx     sync.Mutex
	configs []*shared.DCAConfig
}

// NewDCABot initializes a new recurring buy bot.
func NewDCABot(cfg *DCABotConfig) (*DCABot, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating dca bot config: %w", err)
	}

	if cfg.TickSeconds == 0 {
		cfg.TickSeconds = defaultTickSeconds
	}

	return &DCABot{
		cfg:     cfg,
		configs: []*shared.DCAConfig{},
	}, nil
}

// AddConfig registers the provided recurring buy with the bot. Buys without
// a next execution are due immediately.
func (b *DCABot) AddConfig(dca *shared.DCAConfig) error {
	if dca.ID == "" {
		dca.ID = uuid.New().String()
	}

	err := dca.Validate()
	if err != nil {
		return fmt.Errorf("validating recurring buy: %w", err)
	}

	b.mtx.Lock()
	b.configs = append(b.configs, dca)
	b.mtx.Unlock()

	return nil
}

// Configs returns a snapshot of the registered recurring buys.
func (b *DCABot) Configs() []shared.DCAConfig {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	configs := make([]shared.DCAConfig, 0, len(b.configs))
	for _, dca := range b.configs {
		configs = append(configs, *dca)
	}

	return configs
}

// Start registers the bot's periodic schedule check with the job scheduler.
func (b *DCABot) Start(now time.Time) error {
	job, err := schedule(b.cfg.JobScheduler, b.cfg.TickSeconds, now, b.tick)
	if err != nil {
		return fmt.Errorf("scheduling recurring buys: %w", err)
	}

	b.job = job
	return nil
}

// Stop deregisters the bot's periodic schedule check. An in-flight check
// runs to completion.
func (b *DCABot) Stop() {
	if b.job != nil {
		b.cfg.JobScheduler.RemoveByReference(b.job)
	}
}

// due returns the enabled recurring buys whose next execution has arrived.
func (b *DCABot) due(now time.Time) []*shared.DCAConfig {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	due := []*shared.DCAConfig{}
	for _, dca := range b.configs {
		if !dca.Enabled || now.Before(dca.NextRun) {
			continue
		}
		due = append(due, dca)
	}

	return due
}

// tick executes every recurring buy that is due. A tick arriving while the
// prior one is still running is skipped.
func (b *DCABot) tick() {
	if !b.busy.CompareAndSwap(false, true) {
		b.cfg.Logger.Debug().Msg("prior check still running, skipping tick")
		return
	}
	defer b.busy.Store(false)

	now, _, err := shared.NewYorkTime()
	if err != nil {
		b.cfg.Logger.Error().Msgf("fetching exchange time: %v", err)
		return
	}

	ctx := context.Background()
	for _, dca := range b.due(now) {
		b.execute(ctx, dca, now)
	}
}

// execute buys the recurring buy's fixed dollar amount at the market price
// and advances its schedule. Quote failures retry on the next tick while
// failed buys still advance, so a bad cycle cannot re-fire every tick.
func (b *DCABot) execute(ctx context.Context, dca *shared.DCAConfig, now time.Time) {
	price, err := b.cfg.Source.FetchQuote(ctx, dca.Symbol)
	if err != nil {
		b.cfg.Logger.Error().Msgf("fetching quote for %s: %v", dca.Symbol, err)
		return
	}

	shares := dca.AmountDollars / price
	if !dca.Fractional {
		shares = math.Floor(shares)
	}

	switch {
	case shares == 0:
		b.cfg.Logger.Error().Msgf("recurring buy %s cannot buy a whole share of %s at %.2f",
			dca.ID, dca.Symbol, price)
	default:
		pos, err := b.cfg.Store.OpenPosition(portfolio.OpenParams{
			RuleID:    dca.ID,
			Symbol:    dca.Symbol,
			Direction: shared.Long,
			Shares:    shares,
			Price:     price,
			Now:       now,
		})
		if err != nil {
			b.cfg.Logger.Error().Msgf("executing recurring buy %s for %s: %v", dca.ID, dca.Symbol, err)
			break
		}

		b.notify(fmt.Sprintf("Recurring buy of %.4f %s shares @ %.2f, holding %.4f @ %.2f average",
			shares, dca.Symbol, price, pos.Shares, pos.EntryPrice))
	}

	b.advance(dca, now)
}

// advance stamps the executed run and schedules the next one.
func (b *DCABot) advance(dca *shared.DCAConfig, now time.Time) {
	dca.LastRun = now
	dca.NextRun = nextExecutionTime(now, dca.Interval)

	if b.cfg.PersistConfig != nil {
		err := b.cfg.PersistConfig(dca)
		if err != nil {
			b.cfg.Logger.Error().Msgf("persisting recurring buy %s: %v", dca.ID, err)
		}
	}
}

// notify relays the provided message when a notifier is configured.
func (b *DCABot) notify(message string) {
	if b.cfg.Notify != nil {
		b.cfg.Notify(message)
	}
}

// nextExecutionTime returns the moment the next recurring buy after now
// runs: hourly buys at the top of the next hour, daily buys at 9am the next
// day and weekly buys at 9am seven days out.
func nextExecutionTime(now time.Time, interval shared.DCAInterval) time.Time {
	switch interval {
	case shared.Hourly:
		hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		return hour.Add(time.Hour)
	case shared.Daily:
		return time.Date(now.Year(), now.Month(), now.Day()+1, executionHour, 0, 0, 0, now.Location())
	default:
		return time.Date(now.Year(), now.Month(), now.Day()+7, executionHour, 0, 0, 0, now.Location())
	}
}
