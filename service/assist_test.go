package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

// writeReplayFile writes a thirty day candle history json to a temp file.
func writeReplayFile(t *testing.T) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString(`{"symbol": "AAPL", "1day": [`)
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for idx := 0; idx < 30; idx++ {
		if idx > 0 {
			sb.WriteString(",")
		}

		date := start.AddDate(0, 0, idx).Format("2006-01-02")
		price := 100 + float64(idx)
		sb.WriteString(fmt.Sprintf(`{"date":"%s","open":%.2f,"high":%.2f,"low":%.2f,"close":%.2f,"volume":1000000}`,
			date, price, price+2, price-2, price+1))
	}
	sb.WriteString("]}")

	path := filepath.Join(t.TempDir(), "history.json")
	err := os.WriteFile(path, []byte(sb.String()), 0o644)
	assert.NoError(t, err)

	return path
}

func TestAssistConfigValidate(t *testing.T) {
	valid := func() *AssistConfig {
		return &AssistConfig{
			Symbols:        []string{"AAPL"},
			FMPAPIKey:      "key",
			InitialCapital: 10000,
			Cancel:         func() {},
		}
	}

	tests := []struct {
		name    string
		mutate  func(cfg *AssistConfig)
		wantErr string
	}{
		{
			name:    "missing data source",
			mutate:  func(cfg *AssistConfig) { cfg.FMPAPIKey = "" },
			wantErr: "a market data source is required",
		},
		{
			name:    "zero capital",
			mutate:  func(cfg *AssistConfig) { cfg.InitialCapital = 0 },
			wantErr: "initial capital must be positive",
		},
		{
			name:    "missing cancel",
			mutate:  func(cfg *AssistConfig) { cfg.Cancel = nil },
			wantErr: "context cancellation function cannot be nil",
		},
		{
			name:    "no symbols",
			mutate:  func(cfg *AssistConfig) { cfg.Symbols = nil },
			wantErr: "no symbols provided for the assist service",
		},
		{
			name: "backtest without symbol",
			mutate: func(cfg *AssistConfig) {
				cfg.Backtest = true
				cfg.BacktestSymbol = ""
			},
			wantErr: "backtest symbol cannot be an empty string",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), test.wantErr))
		})
	}

	// Ensure a complete config passes.
	assert.NoError(t, valid().Validate())
}

func TestAssistConfigParsing(t *testing.T) {
	path := writeReplayFile(t)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := func() *AssistConfig {
		return &AssistConfig{
			Symbols:            []string{"AAPL"},
			ReplayDataFilepath: path,
			InitialCapital:     10000,
			Cancel:             cancel,
		}
	}

	// Ensure an unknown risk profile is rejected.
	cfg := base()
	cfg.RiskProfile = "reckless"
	_, err := NewAssist(cfg)
	assert.Error(t, err)

	// Ensure an unknown scan interval is rejected.
	cfg = base()
	cfg.ScanInterval = "2day"
	_, err = NewAssist(cfg)
	assert.Error(t, err)

	// Ensure an unknown signal bias is rejected.
	cfg = base()
	cfg.SignalBias = "up"
	_, err = NewAssist(cfg)
	assert.Error(t, err)
}

func TestAssistBacktestRun(t *testing.T) {
	path := writeReplayFile(t)
	csvPath := filepath.Join(t.TempDir(), "trades.csv")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &AssistConfig{
		ReplayDataFilepath:  path,
		InitialCapital:      10000,
		Backtest:            true,
		BacktestSymbol:      "AAPL",
		BacktestCSVFilepath: csvPath,
		Cancel:              cancel,
	}

	assist, err := NewAssist(cfg)
	assert.NoError(t, err)

	// Ensure a backtest run completes, exports its trade log and cancels
	// the service context.
	done := make(chan struct{})
	go func() {
		assist.Run(ctx)
		close(done)
	}()

	<-done
	assert.Error(t, ctx.Err())

	_, err = os.Stat(csvPath)
	assert.NoError(t, err)
}

func TestAssistGracefulShutdown(t *testing.T) {
	path := writeReplayFile(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &AssistConfig{
		Symbols:            []string{"AAPL"},
		ReplayDataFilepath: path,
		InitialCapital:     10000,
		Cancel:             cancel,
	}

	assist, err := NewAssist(cfg)
	assert.NoError(t, err)

	// Ensure the assist service can be run and gracefully terminated.
	time.AfterFunc(time.Second*2, func() {
		cancel()
	})
	done := make(chan struct{})
	go func() {
		assist.Run(ctx)
		close(done)
	}()

	<-done

	// Ensure the default rule set was seeded for the scanned symbol.
	assert.Equal(t, len(assist.engine.Rules()), 3)
}
