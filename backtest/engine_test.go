package backtest

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalebr/tradeassist/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

// stubSource serves a fixed candle history.
type stubSource struct {
	candles []shared.Candle
	err     error
}

func (s *stubSource) FetchCandles(_ context.Context, _ string, _ shared.Interval, _ int) ([]shared.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}

	return s.candles, nil
}

func (s *stubSource) FetchQuote(_ context.Context, _ string) (float64, error) {
	return 0, nil
}

// scriptedDetector fires a pattern match when the provided window ends on
// a scheduled date.
type scriptedDetector struct {
	schedule map[time.Time]shared.PatternKind
}

func (d *scriptedDetector) DetectPatterns(candles []shared.Candle) []shared.PatternMatch {
	if len(candles) == 0 {
		return nil
	}

	last := candles[len(candles)-1]
	kind, ok := d.schedule[last.Date]
	if !ok {
		return nil
	}

	return []shared.PatternMatch{{
		Symbol:     last.Symbol,
		Kind:       kind,
		Sentiment:  kind.Sentiment(),
		Confidence: 90,
		Price:      last.Close,
		Volume:     last.Volume,
		Date:       last.Date,
	}}
}

func day(idx int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, idx)
}

// dailyCandles builds flat daily candles at the provided closes, one day
// apart.
func dailyCandles(closes ...float64) []shared.Candle {
	candles := make([]shared.Candle, len(closes))
	for idx, close := range closes {
		candles[idx] = shared.Candle{
			Open:     close,
			High:     close,
			Low:      close,
			Close:    close,
			Volume:   1000000,
			Date:     day(idx),
			Symbol:   "AAPL",
			Interval: shared.OneDay,
		}
	}

	return candles
}

// backtestRule builds a hammer entry rule with a ten percent take profit.
func backtestRule() *shared.TradingRule {
	return &shared.TradingRule{
		Symbol:        "AAPL",
		Action:        shared.Buy,
		Enabled:       true,
		AutoTrade:     true,
		Trigger:       shared.PatternTrigger,
		Pattern:       shared.Hammer,
		MinConfidence: 50,
		AmountDollars: 1000,
		Fractional:    true,
		Risk:          shared.RiskParams{TakeProfitPercent: 10},
	}
}

func testConfig(source shared.MarketSource, detector shared.PatternDetector) *Config {
	logger := zerolog.Nop()

	return &Config{
		Symbol:              "AAPL",
		Interval:            shared.OneDay,
		InitialCapital:      10000,
		PositionSizePercent: 50,
		Fractional:          true,
		Rules:               []*shared.TradingRule{backtestRule()},
		Source:              source,
		Detector:            detector,
		Logger:              &logger,
	}
}

func TestBacktestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "missing symbol",
			mutate:  func(cfg *Config) { cfg.Symbol = "" },
			wantErr: "symbol cannot be an empty string",
		},
		{
			name:    "zero capital",
			mutate:  func(cfg *Config) { cfg.InitialCapital = 0 },
			wantErr: "initial capital must be positive",
		},
		{
			name:    "oversized position percent",
			mutate:  func(cfg *Config) { cfg.PositionSizePercent = 150 },
			wantErr: "cannot exceed 100",
		},
		{
			name:    "no rules",
			mutate:  func(cfg *Config) { cfg.Rules = nil },
			wantErr: "no rules provided",
		},
		{
			name: "inverted date range",
			mutate: func(cfg *Config) {
				cfg.Start = day(10)
				cfg.End = day(5)
			},
			wantErr: "end date cannot precede",
		},
		{
			name:    "missing source",
			mutate:  func(cfg *Config) { cfg.Source = nil },
			wantErr: "market source cannot be nil",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := testConfig(&stubSource{}, &scriptedDetector{})
			test.mutate(cfg)

			_, err := NewEngine(cfg)
			assert.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), test.wantErr))
		})
	}

	// Ensure an untouched config passes.
	_, err := NewEngine(testConfig(&stubSource{}, &scriptedDetector{}))
	assert.NoError(t, err)
}

func TestBacktestInsufficientData(t *testing.T) {
	detector := &scriptedDetector{}

	// Ensure a source error surfaces with its sentinel intact.
	engine, err := NewEngine(testConfig(&stubSource{err: shared.ErrProviderUnavailable}, detector))
	assert.NoError(t, err)
	_, err = engine.Run(context.Background())
	assert.True(t, errors.Is(err, shared.ErrProviderUnavailable))

	// Ensure an empty history names the symbol.
	engine, err = NewEngine(testConfig(&stubSource{}, detector))
	assert.NoError(t, err)
	_, err = engine.Run(context.Background())
	assert.Equal(t, err.Error(), "no historical data available for AAPL")

	// Ensure a short daily history reports its row count.
	engine, err = NewEngine(testConfig(&stubSource{candles: dailyCandles(100, 100, 100, 100, 100)}, detector))
	assert.NoError(t, err)
	_, err = engine.Run(context.Background())
	var dataErr *shared.InsufficientDataError
	assert.True(t, errors.As(err, &dataErr))
	assert.Equal(t, err.Error(), "insufficient historical data for AAPL: 5 days available, need at least 10")

	// Ensure the row count reflects the date filter, not the fetch.
	closes := make([]float64, 30)
	for idx := range closes {
		closes[idx] = 100
	}
	cfg := testConfig(&stubSource{candles: dailyCandles(closes...)}, detector)
	cfg.Start = day(24)
	engine, err = NewEngine(cfg)
	assert.NoError(t, err)
	_, err = engine.Run(context.Background())
	assert.Equal(t, err.Error(), "insufficient historical data for AAPL: 6 days available, need at least 10")

	// Ensure intraday replays require more rows and report bars.
	candles := dailyCandles(closes[:15]...)
	for idx := range candles {
		candles[idx].Interval = shared.OneHour
	}
	cfg = testConfig(&stubSource{candles: candles}, detector)
	cfg.Interval = shared.OneHour
	engine, err = NewEngine(cfg)
	assert.NoError(t, err)
	_, err = engine.Run(context.Background())
	assert.Equal(t, err.Error(), "insufficient historical data for AAPL: 15 bars available, need at least 20")
}

func TestBacktestRun(t *testing.T) {
	// A flat tape at 100 with a rally to 112 after the first scheduled
	// hammer, then a drift to 103 after the second. The first entry exits
	// at its ten percent take profit, the second at the end of the data.
	closes := make([]float64, 25)
	for idx := range closes {
		closes[idx] = 100
	}
	closes[13] = 105
	closes[14] = 112
	closes[24] = 103

	detector := &scriptedDetector{schedule: map[time.Time]shared.PatternKind{
		day(12): shared.Hammer,
		day(22): shared.Hammer,
	}}

	engine, err := NewEngine(testConfig(&stubSource{candles: dailyCandles(closes...)}, detector))
	assert.NoError(t, err)

	result, err := engine.Run(context.Background())
	assert.NoError(t, err)

	// Ensure both entries completed, half the cash at a time.
	assert.Equal(t, len(result.Trades), 2)

	first := result.Trades[0]
	assert.Equal(t, first.Symbol, "AAPL")
	assert.Equal(t, first.Direction, shared.Long)
	assert.Equal(t, first.RuleID, "rule-1")
	assert.Equal(t, first.Shares, float64(50))
	assert.Equal(t, first.EntryPrice, float64(100))
	assert.Equal(t, first.EntryDate, day(12))
	assert.Equal(t, first.ExitPrice, float64(112))
	assert.Equal(t, first.ExitDate, day(14))
	assert.Equal(t, first.PNL, float64(600))
	assert.Equal(t, first.PNLPercent, float64(12))
	assert.Equal(t, first.HoldingDays, 2)
	assert.Equal(t, first.ExitReason, shared.TakeProfit)

	second := result.Trades[1]
	assert.Equal(t, second.Shares, float64(53))
	assert.Equal(t, second.EntryPrice, float64(100))
	assert.Equal(t, second.EntryDate, day(22))
	assert.Equal(t, second.ExitPrice, float64(103))
	assert.Equal(t, second.ExitDate, day(24))
	assert.Equal(t, second.PNL, float64(159))
	assert.Equal(t, second.HoldingDays, 2)
	assert.Equal(t, second.ExitReason, shared.EndOfData)

	assert.Equal(t, result.FinalCapital, float64(10759))

	// Ensure the equity curve marks every replayed candle to market.
	assert.Equal(t, len(result.EquityCurve), 15)
	assert.Equal(t, result.EquityCurve[0], EquityPoint{Date: day(10), Equity: 10000})
	assert.Equal(t, result.EquityCurve[2], EquityPoint{Date: day(12), Equity: 10000})
	assert.Equal(t, result.EquityCurve[3], EquityPoint{Date: day(13), Equity: 10250})
	assert.Equal(t, result.EquityCurve[4], EquityPoint{Date: day(14), Equity: 10600})
	assert.Equal(t, result.EquityCurve[14], EquityPoint{Date: day(24), Equity: 10759})

	metrics := result.Metrics
	assert.Equal(t, metrics.TotalTrades, 2)
	assert.Equal(t, metrics.Wins, 2)
	assert.Equal(t, metrics.Losses, 0)
	assert.Equal(t, metrics.WinRate, float64(100))
	assert.Equal(t, metrics.GrossProfit, float64(759))
	assert.True(t, math.IsInf(metrics.ProfitFactor, 1))
	assert.Equal(t, metrics.MaxDrawdown, float64(0))
	assert.Equal(t, metrics.AverageHoldingDays, float64(2))
	assert.Equal(t, metrics.TotalReturn, float64(759))
	within(t, metrics.TotalReturnPercent, 7.59, 1e-9)

	// Ensure a rerun reproduces the result bit for bit.
	rerun, err := engine.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, rerun, result)
}

func TestWriteTradesCSV(t *testing.T) {
	trades := []shared.CompletedTrade{{
		Symbol:      "AAPL",
		Direction:   shared.Long,
		Shares:      50,
		EntryPrice:  100,
		EntryDate:   day(12),
		ExitPrice:   112,
		ExitDate:    day(14),
		PNL:         600,
		PNLPercent:  12,
		HoldingDays: 2,
		ExitReason:  shared.TakeProfit,
	}}

	path := filepath.Join(t.TempDir(), "trades.csv")
	err := WriteTradesCSV(trades, path)
	assert.NoError(t, err)

	data, err := os.ReadFile(path)
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, len(lines), 2)
	assert.Equal(t, lines[0], strings.Join(tradeHeader, ","))
	assert.Equal(t, lines[1], "AAPL,long,50,100,2025-01-13T00:00:00Z,112,2025-01-14T00:00:00Z,600,12,2,take profit")
}
