package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"github.com/kalebr/tradeassist/shared"
)

// newTestDCABot builds a recurring buy bot over the provided store and
// source.
func newTestDCABot(t *testing.T, cfg *DCABotConfig) *DCABot {
	t.Helper()

	logger := zerolog.Nop()
	if cfg.Logger == nil {
		cfg.Logger = &logger
	}
	if cfg.JobScheduler == nil {
		cfg.JobScheduler = gocron.NewScheduler(time.UTC)
	}

	bot, err := NewDCABot(cfg)
	assert.NoError(t, err)

	return bot
}

func TestDCABotConfigValidate(t *testing.T) {
	logger := zerolog.Nop()
	store := newTestStore(t, 10000)
	scheduler := gocron.NewScheduler(time.UTC)

	valid := func() *DCABotConfig {
		return &DCABotConfig{
			Store:        store,
			Source:       &stubSource{},
			JobScheduler: scheduler,
			Logger:       &logger,
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *DCABotConfig)
		wantErr string
	}{
		{
			name:    "missing store",
			mutate:  func(cfg *DCABotConfig) { cfg.Store = nil },
			wantErr: "portfolio store cannot be nil",
		},
		{
			name:    "missing source",
			mutate:  func(cfg *DCABotConfig) { cfg.Source = nil },
			wantErr: "market source cannot be nil",
		},
		{
			name:    "missing scheduler",
			mutate:  func(cfg *DCABotConfig) { cfg.JobScheduler = nil },
			wantErr: "job scheduler cannot be nil",
		},
		{
			name:    "missing logger",
			mutate:  func(cfg *DCABotConfig) { cfg.Logger = nil },
			wantErr: "logger cannot be nil",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			_, err := NewDCABot(cfg)
			assert.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), test.wantErr))
		})
	}

	// Ensure a complete config passes.
	_, err := NewDCABot(valid())
	assert.NoError(t, err)
}

func TestAddConfig(t *testing.T) {
	bot := newTestDCABot(t, &DCABotConfig{
		Store:  newTestStore(t, 10000),
		Source: &stubSource{},
	})

	// Ensure a recurring buy without an id gets one assigned.
	dca := &shared.DCAConfig{Symbol: "AAPL", AmountDollars: 200, Interval: shared.Daily, Enabled: true}
	err := bot.AddConfig(dca)
	assert.NoError(t, err)
	assert.True(t, dca.ID != "")

	// Ensure malformed recurring buys are rejected.
	err = bot.AddConfig(&shared.DCAConfig{AmountDollars: 200})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "dca symbol cannot be an empty string"))

	configs := bot.Configs()
	assert.Equal(t, len(configs), 1)
	assert.Equal(t, configs[0].Symbol, "AAPL")
}

func TestNextExecutionTime(t *testing.T) {
	// Ensure hourly buys run at the top of the next hour.
	now := time.Date(2025, 3, 3, 13, 45, 10, 0, time.UTC)
	assert.Equal(t, nextExecutionTime(now, shared.Hourly), time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC))

	top := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, nextExecutionTime(top, shared.Hourly), time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC))

	// Ensure daily buys run at 9am the next day, across month ends.
	assert.Equal(t, nextExecutionTime(now, shared.Daily), time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC))

	monthEnd := time.Date(2025, 3, 31, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, nextExecutionTime(monthEnd, shared.Daily), time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	// Ensure weekly buys run at 9am seven days out.
	assert.Equal(t, nextExecutionTime(now, shared.Weekly), time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
}

func TestDCADue(t *testing.T) {
	bot := newTestDCABot(t, &DCABotConfig{
		Store:  newTestStore(t, 10000),
		Source: &stubSource{},
	})

	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	fresh := &shared.DCAConfig{ID: "dca-1", Symbol: "AAPL", AmountDollars: 200, Interval: shared.Daily, Enabled: true}
	scheduled := &shared.DCAConfig{ID: "dca-2", Symbol: "VTI", AmountDollars: 200, Interval: shared.Daily, Enabled: true, NextRun: now.Add(time.Hour)}
	disabled := &shared.DCAConfig{ID: "dca-3", Symbol: "MSFT", AmountDollars: 200, Interval: shared.Daily}
	for _, dca := range []*shared.DCAConfig{fresh, scheduled, disabled} {
		assert.NoError(t, bot.AddConfig(dca))
	}

	// Ensure only enabled buys whose next execution has arrived are due.
	due := bot.due(now)
	assert.Equal(t, len(due), 1)
	assert.Equal(t, due[0].ID, "dca-1")

	// Ensure a scheduled buy becomes due once its time arrives.
	due = bot.due(now.Add(time.Hour))
	assert.Equal(t, len(due), 2)
}

func TestDCAExecution(t *testing.T) {
	store := newTestStore(t, 10000)
	source := &stubSource{quote: 50}

	var persisted int
	bot := newTestDCABot(t, &DCABotConfig{
		Store:  store,
		Source: source,
		PersistConfig: func(dca *shared.DCAConfig) error {
			persisted++
			return nil
		},
	})

	dca := &shared.DCAConfig{ID: "dca-1", Symbol: "AAPL", AmountDollars: 300, Interval: shared.Daily, Enabled: true, Fractional: true}
	assert.NoError(t, bot.AddConfig(dca))

	ctx := context.Background()
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	// Ensure a due buy fills at the market price and advances its
	// schedule.
	bot.execute(ctx, dca, now)
	positions := store.Positions()
	assert.Equal(t, len(positions), 1)
	assert.Equal(t, positions[0].Shares, float64(6))
	assert.Equal(t, positions[0].EntryPrice, float64(50))
	assert.Equal(t, store.Cash(), float64(9700))
	assert.Equal(t, dca.LastRun, now)
	assert.Equal(t, dca.NextRun, time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, persisted, 1)

	// Ensure a repeat buy averages into the existing holding.
	source.quote = 75
	later := now.Add(time.Hour * 4)
	bot.execute(ctx, dca, later)
	positions = store.Positions()
	assert.Equal(t, len(positions), 1)
	assert.Equal(t, positions[0].Shares, float64(10))
	assert.Equal(t, positions[0].EntryPrice, float64(60))
	assert.Equal(t, store.Cash(), float64(9400))
	assert.Equal(t, dca.LastRun, later)
	assert.Equal(t, persisted, 2)

	// Ensure quote failures leave the schedule untouched for a retry.
	source.quoteErr = shared.ErrRateLimited
	retryAt := dca.NextRun
	bot.execute(ctx, dca, later.Add(time.Hour))
	assert.Equal(t, len(store.Positions()), 1)
	assert.Equal(t, dca.NextRun, retryAt)
	assert.Equal(t, persisted, 2)
}

func TestDCAWholeShareSkip(t *testing.T) {
	store := newTestStore(t, 10000)
	bot := newTestDCABot(t, &DCABotConfig{
		Store:  store,
		Source: &stubSource{quote: 50},
	})

	dca := &shared.DCAConfig{ID: "dca-1", Symbol: "AAPL", AmountDollars: 30, Interval: shared.Daily, Enabled: true}
	assert.NoError(t, bot.AddConfig(dca))

	// Ensure a whole share buy that cannot fill still advances the
	// schedule instead of re-firing every tick.
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	bot.execute(context.Background(), dca, now)
	assert.Equal(t, len(store.Positions()), 0)
	assert.Equal(t, dca.NextRun, time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC))
}

func TestDCABusySkip(t *testing.T) {
	store := newTestStore(t, 10000)
	bot := newTestDCABot(t, &DCABotConfig{
		Store:  store,
		Source: &stubSource{quote: 50},
	})

	dca := &shared.DCAConfig{ID: "dca-1", Symbol: "AAPL", AmountDollars: 300, Interval: shared.Daily, Enabled: true, Fractional: true}
	assert.NoError(t, bot.AddConfig(dca))

	// Ensure an overlapping tick is skipped while the prior one runs.
	bot.busy.Store(true)
	bot.tick()
	assert.Equal(t, len(store.Positions()), 0)
}
