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

// matchDetector flags a hammer on the last candle of every window.
type matchDetector struct{}

func (d *matchDetector) DetectPatterns(candles []shared.Candle) []shared.PatternMatch {
	last := candles[len(candles)-1]
	return []shared.PatternMatch{{
		Symbol:     last.Symbol,
		Kind:       shared.Hammer,
		Sentiment:  shared.Bullish,
		Confidence: 90,
		Price:      last.Close,
		Volume:     last.Volume,
		Date:       last.Date,
	}}
}

// newTestScanner builds a scanner over the provided source and detector.
func newTestScanner(t *testing.T, cfg *ScannerConfig) *Scanner {
	t.Helper()

	logger := zerolog.Nop()
	if cfg.Logger == nil {
		cfg.Logger = &logger
	}
	if cfg.JobScheduler == nil {
		cfg.JobScheduler = gocron.NewScheduler(time.UTC)
	}

	scanner, err := NewScanner(cfg)
	assert.NoError(t, err)

	return scanner
}

func TestScannerConfigValidate(t *testing.T) {
	logger := zerolog.Nop()
	store := newTestStore(t, 10000)
	engine := newTestEngine(t, store)
	scheduler := gocron.NewScheduler(time.UTC)

	valid := func() *ScannerConfig {
		return &ScannerConfig{
			Engine:       engine,
			Source:       &stubSource{},
			Detector:     &matchDetector{},
			JobScheduler: scheduler,
			Logger:       &logger,
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *ScannerConfig)
		wantErr string
	}{
		{
			name:    "missing engine",
			mutate:  func(cfg *ScannerConfig) { cfg.Engine = nil },
			wantErr: "rule engine cannot be nil",
		},
		{
			name:    "missing source",
			mutate:  func(cfg *ScannerConfig) { cfg.Source = nil },
			wantErr: "market source cannot be nil",
		},
		{
			name:    "missing detector",
			mutate:  func(cfg *ScannerConfig) { cfg.Detector = nil },
			wantErr: "pattern detector cannot be nil",
		},
		{
			name:    "missing scheduler",
			mutate:  func(cfg *ScannerConfig) { cfg.JobScheduler = nil },
			wantErr: "job scheduler cannot be nil",
		},
		{
			name:    "missing logger",
			mutate:  func(cfg *ScannerConfig) { cfg.Logger = nil },
			wantErr: "logger cannot be nil",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			_, err := NewScanner(cfg)
			assert.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), test.wantErr))
		})
	}

	// Ensure a complete config passes and gets defaults applied.
	cfg := valid()
	scanner, err := NewScanner(cfg)
	assert.NoError(t, err)
	assert.Equal(t, scanner.cfg.TickSeconds, defaultTickSeconds)
	assert.Equal(t, scanner.cfg.FastSMA, defaultFastSMA)
	assert.Equal(t, scanner.cfg.SlowSMA, defaultSlowSMA)
	assert.True(t, scanner.cfg.RegimeDetector != nil)
	assert.True(t, scanner.cfg.SignalGenerator != nil)
}

func TestScannerScan(t *testing.T) {
	store := newTestStore(t, 10000)
	engine := newTestEngine(t, store)

	err := engine.AddRule(&shared.TradingRule{
		ID:            "rule-1",
		Symbol:        "AAPL",
		Action:        shared.Buy,
		Enabled:       true,
		AutoTrade:     true,
		Trigger:       shared.PatternTrigger,
		Pattern:       shared.Hammer,
		MinConfidence: 50,
		AmountDollars: 1000,
		Fractional:    true,
	})
	assert.NoError(t, err)

	source := &stubSource{candles: dailyCandles(flat(15, 100)...)}
	scanner := newTestScanner(t, &ScannerConfig{
		Engine:   engine,
		Source:   source,
		Detector: &matchDetector{},
	})

	ctx := context.Background()
	now := day(15)

	// Ensure a detected pattern reaches the rule engine and opens a
	// position.
	scanner.scan(ctx, "AAPL", now)
	positions := store.Positions()
	assert.Equal(t, len(positions), 1)
	assert.Equal(t, positions[0].Symbol, "AAPL")
	assert.Equal(t, positions[0].Shares, float64(10))
	assert.Equal(t, positions[0].EntryPrice, float64(100))

	// Ensure an immediate rescan is suppressed as a duplicate alert.
	scanner.scan(ctx, "AAPL", now)
	positions = store.Positions()
	assert.Equal(t, len(positions), 1)
	assert.Equal(t, positions[0].Shares, float64(10))

	// Ensure data source failures degrade to a no-signal scan.
	source.fetchErr = shared.ErrProviderUnavailable
	scanner.scan(ctx, "MSFT", now)
	assert.Equal(t, len(store.Positions()), 1)
}

func TestScannerAdvisories(t *testing.T) {
	// A fade below a flat band with an oversold rsi scores a long signal,
	// a stretch above it scores a short. Flat history carries no
	// directional strength, so the regime reads sideways.
	fade := dailyCandles(append(flat(59, 100), 96)...)
	stretch := dailyCandles(append(flat(59, 100), 104)...)
	calm := dailyCandles(flat(60, 100)...)

	var messages []string
	source := &stubSource{candles: fade}
	scanner := newTestScanner(t, &ScannerConfig{
		Engine:   newTestEngine(t, newTestStore(t, 10000)),
		Source:   source,
		Detector: &matchDetector{},
		Notify:   func(message string) { messages = append(messages, message) },
	})

	ctx := context.Background()
	now := day(60)

	// Ensure a scored signal is relayed with its direction and exits.
	scanner.scan(ctx, "AAPL", now)
	assert.Equal(t, len(messages), 1)
	assert.True(t, strings.Contains(messages[0], "long AAPL @ 96.00"))
	assert.True(t, strings.Contains(messages[0], "lower bollinger band"))

	// Ensure a standing signal is not re-announced on the next scan.
	scanner.scan(ctx, "AAPL", now.Add(time.Minute))
	assert.Equal(t, len(messages), 1)

	// Ensure a direction flip is announced.
	source.candles = stretch
	scanner.scan(ctx, "AAPL", now.Add(2*time.Minute))
	assert.Equal(t, len(messages), 2)
	assert.True(t, strings.Contains(messages[1], "short AAPL @ 104.00"))

	// Ensure a lapsed signal clears, so the setup re-forming announces
	// again.
	source.candles = calm
	scanner.scan(ctx, "AAPL", now.Add(3*time.Minute))
	assert.Equal(t, len(messages), 2)

	source.candles = stretch
	scanner.scan(ctx, "AAPL", now.Add(4*time.Minute))
	assert.Equal(t, len(messages), 3)
}

func TestScannerCrossovers(t *testing.T) {
	scanner := newTestScanner(t, &ScannerConfig{
		Engine:   newTestEngine(t, newTestStore(t, 10000)),
		Source:   &stubSource{},
		Detector: &matchDetector{},
		FastSMA:  2,
		SlowSMA:  3,
	})

	// Ensure the fast average crossing above the slow one reads as a
	// golden cross.
	kinds := scanner.crossovers(dailyCandles(30, 20, 10, 40))
	assert.Equal(t, kinds, []shared.CrossKind{shared.GoldenCross})

	// Ensure the fast average crossing below the slow one reads as a
	// death cross.
	kinds = scanner.crossovers(dailyCandles(10, 20, 30, 2))
	assert.Equal(t, kinds, []shared.CrossKind{shared.DeathCross})

	// Ensure a flat series reports no crossovers.
	kinds = scanner.crossovers(dailyCandles(flat(4, 10)...))
	assert.Equal(t, len(kinds), 0)
}

func TestScannerStart(t *testing.T) {
	scheduler := gocron.NewScheduler(time.UTC)
	scanner := newTestScanner(t, &ScannerConfig{
		Engine:       newTestEngine(t, newTestStore(t, 10000)),
		Source:       &stubSource{},
		Detector:     &matchDetector{},
		JobScheduler: scheduler,
	})

	// Ensure starting registers the periodic scan and stopping removes it.
	err := scanner.Start(time.Now())
	assert.NoError(t, err)
	assert.Equal(t, scheduler.Len(), 1)

	scanner.Stop()
	assert.Equal(t, scheduler.Len(), 0)
}
