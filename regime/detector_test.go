package regime

import (
	"strings"
	"testing"
	"time"

	"github.com/kalebr/tradeassist/shared"
	"github.com/peterldowns/testy/assert"
)

// flatCandles returns n identical candles priced at price.
func flatCandles(n int, price float64) []shared.Candle {
	candles := make([]shared.Candle, n)
	for i := range candles {
		candles[i] = shared.Candle{
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
			Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		}
	}

	return candles
}

// trendingCandles returns n candles stepping up one point per bar.
func trendingCandles(n int) []shared.Candle {
	candles := make([]shared.Candle, n)
	for i := range candles {
		candles[i] = shared.Candle{
			Open:   float64(i),
			High:   float64(i + 1),
			Low:    float64(i),
			Close:  float64(i) + 0.5,
			Volume: 1000,
			Date:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		}
	}

	return candles
}

func TestDetectorConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *DetectorConfig)
		wantErr string
	}{
		{
			name:    "default config",
			mutate:  func(cfg *DetectorConfig) {},
			wantErr: "",
		},
		{
			name:    "non positive adx period",
			mutate:  func(cfg *DetectorConfig) { cfg.ADXPeriod = 0 },
			wantErr: "adx period",
		},
		{
			name:    "non positive rsi period",
			mutate:  func(cfg *DetectorConfig) { cfg.RSIPeriod = -1 },
			wantErr: "rsi period",
		},
		{
			name: "fast sma not below slow sma",
			mutate: func(cfg *DetectorConfig) {
				cfg.FastSMAPeriod = 50
				cfg.SlowSMAPeriod = 20
				cfg.LookbackDays = 60
			},
			wantErr: "sma periods",
		},
		{
			name:    "adx threshold out of range",
			mutate:  func(cfg *DetectorConfig) { cfg.ADXThreshold = 100 },
			wantErr: "adx threshold",
		},
		{
			name:    "lookback below slow sma",
			mutate:  func(cfg *DetectorConfig) { cfg.LookbackDays = 30 },
			wantErr: "lookback days",
		},
	}

	for _, test := range tests {
		cfg := DefaultDetectorConfig()
		test.mutate(cfg)

		err := cfg.Validate()
		if test.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", test.name, err)
			}
			continue
		}

		if err == nil || !strings.Contains(err.Error(), test.wantErr) {
			t.Errorf("%s: expected error containing %q, got %v", test.name, test.wantErr, err)
		}
	}
}

func TestDetectShortHistory(t *testing.T) {
	detector, err := NewDetector(DefaultDetectorConfig())
	assert.NoError(t, err)

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Ensure short histories classify sideways with fallback confidence.
	analysis := detector.Detect("AAPL", flatCandles(10, 100), now)
	assert.Equal(t, analysis.Regime, shared.Sideways)
	assert.Equal(t, analysis.Confidence, float64(fallbackConfidence))
	assert.Equal(t, analysis.TrendStrength, shared.Weak)
	assert.Equal(t, analysis.ADX, float64(0))
	assert.Equal(t, analysis.CreatedOn, now)
}

func TestDetectSideways(t *testing.T) {
	detector, err := NewDetector(DefaultDetectorConfig())
	assert.NoError(t, err)

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Ensure a flat market classifies sideways, with confidence growing as
	// the directional index falls below the threshold.
	analysis := detector.Detect("AAPL", flatCandles(60, 100), now)
	assert.Equal(t, analysis.Regime, shared.Sideways)
	assert.Equal(t, analysis.ADX, float64(0))
	assert.Equal(t, analysis.Confidence, float64(90))
	assert.Equal(t, analysis.TrendStrength, shared.Weak)
	assert.Equal(t, analysis.BollingerPosition, 0.5)
}

func TestDetectUptrend(t *testing.T) {
	detector, err := NewDetector(DefaultDetectorConfig())
	assert.NoError(t, err)

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Ensure a persistent uptrend classifies with full agreement between
	// the directional lines, the moving averages and price.
	analysis := detector.Detect("AAPL", trendingCandles(60), now)
	assert.Equal(t, analysis.Regime, shared.Uptrend)
	assert.Equal(t, analysis.Confidence, float64(95))
	assert.Equal(t, analysis.TrendStrength, shared.Strong)
	assert.GreaterThan(t, analysis.PlusDI, analysis.MinusDI)
	assert.GreaterThan(t, analysis.FastSMA, analysis.SlowSMA)
	assert.GreaterThan(t, analysis.Price, analysis.FastSMA)
}

func TestDetectPartialAgreement(t *testing.T) {
	detector, err := NewDetector(DefaultDetectorConfig())
	assert.NoError(t, err)

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Break the final bar of an uptrend hard enough to flip the
	// directional lines while the moving averages still disagree.
	candles := trendingCandles(60)
	last := &candles[59]
	last.Open = 58.5
	last.High = 58.5
	last.Low = 30
	last.Close = 31

	analysis := detector.Detect("AAPL", candles, now)

	// Ensure partial agreement trims confidence to the capped band.
	assert.Equal(t, analysis.Regime, shared.Downtrend)
	assert.Equal(t, analysis.Confidence, float64(70))
	assert.GreaterThan(t, analysis.MinusDI, analysis.PlusDI)
	assert.GreaterThan(t, analysis.FastSMA, analysis.SlowSMA)
}
