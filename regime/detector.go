package regime

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kalebr/tradeassist/indicator"
	"github.com/kalebr/tradeassist/shared"
)

const (
	// fallbackConfidence is the confidence reported when the history is
	// too short to classify.
	fallbackConfidence = 30

	// Trend strength cutoffs on the average directional index.
	strongTrendADX   = 40
	moderateTrendADX = 30
)

// DetectorConfig represents the market regime detector configuration.
type DetectorConfig struct {
	// LookbackDays is the minimum history required to classify a regime.
	LookbackDays int
	// ADXThreshold separates trending regimes from sideways ones.
	ADXThreshold float64
	// ADXPeriod is the directional index smoothing period.
	ADXPeriod int
	// RSIPeriod is the relative strength index period.
	RSIPeriod int
	// FastSMAPeriod is the fast simple moving average period.
	FastSMAPeriod int
	// SlowSMAPeriod is the slow simple moving average period.
	SlowSMAPeriod int
	// BollingerPeriod is the bollinger band period.
	BollingerPeriod int
	// BollingerMultiplier is the bollinger band deviation multiplier.
	BollingerMultiplier float64
}

// DefaultDetectorConfig returns the stock detector configuration.
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		LookbackDays:        50,
		ADXThreshold:        25,
		ADXPeriod:           14,
		RSIPeriod:           14,
		FastSMAPeriod:       20,
		SlowSMAPeriod:       50,
		BollingerPeriod:     20,
		BollingerMultiplier: 2,
	}
}

// Validate asserts the detector config is well formed.
func (cfg *DetectorConfig) Validate() error {
	var errs error

	if cfg.ADXPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("adx period must be positive, got %d", cfg.ADXPeriod))
	}
	if cfg.RSIPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("rsi period must be positive, got %d", cfg.RSIPeriod))
	}
	if cfg.FastSMAPeriod <= 0 || cfg.SlowSMAPeriod <= cfg.FastSMAPeriod {
		errs = errors.Join(errs, fmt.Errorf("sma periods must satisfy 0 < fast (%d) < slow (%d)",
			cfg.FastSMAPeriod, cfg.SlowSMAPeriod))
	}
	if cfg.BollingerPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("bollinger period must be positive, got %d", cfg.BollingerPeriod))
	}
	if cfg.BollingerMultiplier <= 0 {
		errs = errors.Join(errs, fmt.Errorf("bollinger multiplier must be positive, got %.2f", cfg.BollingerMultiplier))
	}
	if cfg.ADXThreshold <= 0 || cfg.ADXThreshold >= 100 {
		errs = errors.Join(errs, fmt.Errorf("adx threshold must be in range 0-100, got %.2f", cfg.ADXThreshold))
	}
	if cfg.LookbackDays < cfg.SlowSMAPeriod {
		errs = errors.Join(errs, fmt.Errorf("lookback days %d cannot be shorter than the slow sma period %d",
			cfg.LookbackDays, cfg.SlowSMAPeriod))
	}
	if cfg.LookbackDays < cfg.RSIPeriod+1 {
		errs = errors.Join(errs, fmt.Errorf("lookback days %d cannot be shorter than the rsi period %d plus one",
			cfg.LookbackDays, cfg.RSIPeriod))
	}

	return errs
}

// Detector classifies the prevailing market regime for a symbol from its
// candle history.
type Detector struct {
	cfg *DetectorConfig
}

// NewDetector initializes a market regime detector.
func NewDetector(cfg *DetectorConfig) (*Detector, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating detector config: %w", err)
	}

	return &Detector{cfg: cfg}, nil
}

// Detect classifies the market regime for the provided candle history,
// oldest candle first. Histories shorter than the configured lookback
// classify as sideways with fallback confidence.
func (d *Detector) Detect(symbol string, candles []shared.Candle, now time.Time) shared.RegimeAnalysis {
	analysis := shared.RegimeAnalysis{
		Symbol:            symbol,
		Regime:            shared.Sideways,
		Confidence:        fallbackConfidence,
		TrendStrength:     shared.Weak,
		BollingerPosition: 0.5,
		CreatedOn:         now,
	}

	if len(candles) < d.cfg.LookbackDays {
		return analysis
	}

	closes := shared.Closes(candles)
	price := closes[len(closes)-1]
	analysis.Price = price

	di := indicator.ADX(shared.Highs(candles), shared.Lows(candles), closes, d.cfg.ADXPeriod)
	analysis.ADX = di.ADX
	analysis.PlusDI = di.PlusDI
	analysis.MinusDI = di.MinusDI

	if rsi, ok := indicator.RSI(closes, d.cfg.RSIPeriod); ok {
		analysis.RSI = rsi
	}

	fastSMA, _ := indicator.SMA(closes, d.cfg.FastSMAPeriod)
	slowSMA, _ := indicator.SMA(closes, d.cfg.SlowSMAPeriod)
	analysis.FastSMA = fastSMA
	analysis.SlowSMA = slowSMA
	if fastSMA != 0 {
		analysis.PriceVsFastSMA = (price - fastSMA) / fastSMA * 100
	}
	if slowSMA != 0 {
		analysis.PriceVsSlowSMA = (price - slowSMA) / slowSMA * 100
	}

	bands, bandsOK := indicator.BollingerBands(closes, d.cfg.BollingerPeriod, d.cfg.BollingerMultiplier)
	if bandsOK {
		if width := bands.Upper - bands.Lower; width > 0 {
			analysis.BollingerPosition = math.Min(1, math.Max(0, (price-bands.Lower)/width))
		}
	}

	switch bullish := di.PlusDI > di.MinusDI; {
	case di.ADX >= d.cfg.ADXThreshold && bullish && fastSMA > slowSMA && price > fastSMA:
		analysis.Regime = shared.Uptrend
		analysis.Confidence = math.Min(95, 50+di.ADX+10)
	case di.ADX >= d.cfg.ADXThreshold && !bullish && fastSMA < slowSMA && price < fastSMA:
		analysis.Regime = shared.Downtrend
		analysis.Confidence = math.Min(95, 50+di.ADX+10)
	case di.ADX >= d.cfg.ADXThreshold && bullish:
		analysis.Regime = shared.Uptrend
		analysis.Confidence = math.Min(70, 40+di.ADX*0.5)
	case di.ADX >= d.cfg.ADXThreshold:
		analysis.Regime = shared.Downtrend
		analysis.Confidence = math.Min(70, 40+di.ADX*0.5)
	default:
		analysis.Regime = shared.Sideways
		analysis.Confidence = math.Min(90, 50+(d.cfg.ADXThreshold-di.ADX)*2)
	}

	analysis.TrendStrength = trendStrength(analysis.Regime, di.ADX)

	return analysis
}

// trendStrength grades the trend strength of a classification. Sideways
// regimes always grade weak.
func trendStrength(regime shared.Regime, adx float64) shared.TrendStrength {
	if regime == shared.Sideways {
		return shared.Weak
	}

	switch {
	case adx >= strongTrendADX:
		return shared.Strong
	case adx >= moderateTrendADX:
		return shared.Moderate
	default:
		return shared.Weak
	}
}
