package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kalebr/tradeassist/indicator"
	"github.com/kalebr/tradeassist/shared"
)

// Bias represents the directions a strategy is allowed to trade.
type Bias int

const (
	BothDirections Bias = iota
	LongOnly
	ShortOnly
)

// String stringifies the provided bias.
func (b Bias) String() string {
	switch b {
	case BothDirections:
		return "both"
	case LongOnly:
		return "long"
	case ShortOnly:
		return "short"
	default:
		return "unknown"
	}
}

// ParseBias converts the provided string to a bias.
func ParseBias(bias string) (Bias, error) {
	switch bias {
	case "both":
		return BothDirections, nil
	case "long":
		return LongOnly, nil
	case "short":
		return ShortOnly, nil
	default:
		return 0, fmt.Errorf("unknown strategy bias: %s", bias)
	}
}

// Config represents the signal generator configuration.
type Config struct {
	// Bias restricts the directions signals may take.
	Bias Bias
	// MinConfidence is the confidence a signal must accumulate to fire.
	MinConfidence float64
	// RSIOversold and RSIOverbought bound the rsi extremes.
	RSIOversold   float64
	RSIOverbought float64
	// TakeProfitPercent and StopLossPercent set signal exits relative to
	// the entry price.
	TakeProfitPercent float64
	StopLossPercent   float64

	// Indicator periods.
	RSIPeriod           int
	FastSMAPeriod       int
	MACDFastPeriod      int
	MACDSlowPeriod      int
	MACDSignalPeriod    int
	BollingerPeriod     int
	BollingerMultiplier float64
}

// DefaultConfig returns the stock signal generator configuration.
func DefaultConfig() *Config {
	return &Config{
		Bias:                BothDirections,
		MinConfidence:       50,
		RSIOversold:         30,
		RSIOverbought:       70,
		TakeProfitPercent:   10,
		StopLossPercent:     5,
		RSIPeriod:           14,
		FastSMAPeriod:       20,
		MACDFastPeriod:      12,
		MACDSlowPeriod:      26,
		MACDSignalPeriod:    9,
		BollingerPeriod:     20,
		BollingerMultiplier: 2,
	}
}

// Validate asserts the signal generator config is well formed.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		errs = errors.Join(errs, fmt.Errorf("minimum confidence must be in range 0-100, got %.2f", cfg.MinConfidence))
	}
	if cfg.RSIOversold < 0 || cfg.RSIOverbought > 100 || cfg.RSIOversold >= cfg.RSIOverbought {
		errs = errors.Join(errs, fmt.Errorf("rsi bounds must satisfy 0 <= oversold (%.2f) < overbought (%.2f) <= 100",
			cfg.RSIOversold, cfg.RSIOverbought))
	}
	if cfg.TakeProfitPercent <= 0 {
		errs = errors.Join(errs, fmt.Errorf("take profit percent must be positive, got %.2f", cfg.TakeProfitPercent))
	}
	if cfg.StopLossPercent <= 0 {
		errs = errors.Join(errs, fmt.Errorf("stop loss percent must be positive, got %.2f", cfg.StopLossPercent))
	}
	if cfg.RSIPeriod <= 0 || cfg.FastSMAPeriod <= 0 || cfg.BollingerPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("indicator periods must be positive"))
	}
	if cfg.MACDFastPeriod <= 0 || cfg.MACDSlowPeriod <= cfg.MACDFastPeriod || cfg.MACDSignalPeriod <= 0 {
		errs = errors.Join(errs, fmt.Errorf("macd periods must satisfy 0 < fast (%d) < slow (%d) with a positive signal period (%d)",
			cfg.MACDFastPeriod, cfg.MACDSlowPeriod, cfg.MACDSignalPeriod))
	}
	if cfg.BollingerMultiplier <= 0 {
		errs = errors.Join(errs, fmt.Errorf("bollinger multiplier must be positive, got %.2f", cfg.BollingerMultiplier))
	}

	return errs
}

// snapshot represents the indicator readings a signal is scored from.
type snapshot struct {
	price   float64
	rsi     float64
	rsiOK   bool
	fastSMA float64
	fastOK  bool
	macd    indicator.MACDResult
	macdOK  bool
	bands   indicator.Bands
	bandsOK bool
}

// Generator scores advisory trade signals from candle history and the
// prevailing market regime.
type Generator struct {
	cfg *Config
}

// NewGenerator initializes a signal generator.
func NewGenerator(cfg *Config) (*Generator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating strategy config: %w", err)
	}

	return &Generator{cfg: cfg}, nil
}

// allowsLong indicates whether the strategy may signal long entries.
func (g *Generator) allowsLong() bool {
	return g.cfg.Bias != ShortOnly
}

// allowsShort indicates whether the strategy may signal short entries.
func (g *Generator) allowsShort() bool {
	return g.cfg.Bias != LongOnly
}

// Generate scores a trade signal for the provided candle history, oldest
// candle first, under the provided regime classification. It returns nil
// when no setup accumulates enough confidence.
func (g *Generator) Generate(symbol string, candles []shared.Candle, analysis shared.RegimeAnalysis, now time.Time) *shared.TradeSignal {
	if len(candles) == 0 {
		return nil
	}

	closes := shared.Closes(candles)

	snap := snapshot{price: closes[len(closes)-1]}
	snap.rsi, snap.rsiOK = indicator.RSI(closes, g.cfg.RSIPeriod)
	snap.fastSMA, snap.fastOK = indicator.SMA(closes, g.cfg.FastSMAPeriod)
	snap.macd, snap.macdOK = indicator.MACD(closes, g.cfg.MACDFastPeriod, g.cfg.MACDSlowPeriod, g.cfg.MACDSignalPeriod)
	snap.bands, snap.bandsOK = indicator.BollingerBands(closes, g.cfg.BollingerPeriod, g.cfg.BollingerMultiplier)

	switch analysis.Regime {
	case shared.Uptrend:
		if !g.allowsLong() {
			return nil
		}
		return g.trendPullback(symbol, snap, analysis, now)
	case shared.Downtrend:
		return g.trendRally(symbol, snap, analysis, now)
	case shared.Sideways:
		return g.meanReversion(symbol, snap, analysis, now)
	default:
		return nil
	}
}

// trendPullback scores a long entry on a pullback within an uptrend.
func (g *Generator) trendPullback(symbol string, snap snapshot, analysis shared.RegimeAnalysis, now time.Time) *shared.TradeSignal {
	var confidence float64
	var reasons []string

	if snap.rsiOK && snap.rsi >= g.cfg.RSIOversold && snap.rsi <= g.cfg.RSIOversold+10 {
		confidence += 30
		reasons = append(reasons, fmt.Sprintf("rsi %.1f pulled back near oversold", snap.rsi))
	}
	if snap.fastOK && snap.price >= snap.fastSMA*0.98 && snap.price <= snap.fastSMA*1.01 {
		confidence += 25
		reasons = append(reasons, "price consolidating at the fast sma")
	}
	if snap.macdOK && snap.macd.Histogram > 0 && snap.macd.Line > snap.macd.Signal {
		confidence += 25
		reasons = append(reasons, "macd momentum positive")
	}
	if snap.bandsOK && snap.price <= snap.bands.Lower*1.01 {
		confidence += 30
		reasons = append(reasons, "price at the lower bollinger band")
	}

	if confidence < g.cfg.MinConfidence {
		return nil
	}

	return g.signal(symbol, shared.Long, confidence, snap.price, analysis, reasons, now)
}

// trendRally scores a short entry on a rally within a downtrend, falling
// back to a contrarian long at extremes when no short fires.
func (g *Generator) trendRally(symbol string, snap snapshot, analysis shared.RegimeAnalysis, now time.Time) *shared.TradeSignal {
	if g.allowsShort() {
		var confidence float64
		var reasons []string

		if snap.rsiOK && snap.rsi >= g.cfg.RSIOverbought-10 && snap.rsi <= g.cfg.RSIOverbought {
			confidence += 30
			reasons = append(reasons, fmt.Sprintf("rsi %.1f rallied near overbought", snap.rsi))
		}
		if snap.fastOK && snap.price >= snap.fastSMA*0.99 && snap.price <= snap.fastSMA*1.02 {
			confidence += 25
			reasons = append(reasons, "price rallied into the fast sma")
		}
		if snap.macdOK && snap.macd.Histogram < 0 && snap.macd.Line < snap.macd.Signal {
			confidence += 25
			reasons = append(reasons, "macd momentum negative")
		}
		if snap.bandsOK && snap.price >= snap.bands.Upper*0.99 {
			confidence += 30
			reasons = append(reasons, "price at the upper bollinger band")
		}

		if confidence >= g.cfg.MinConfidence {
			return g.signal(symbol, shared.Short, confidence, snap.price, analysis, reasons, now)
		}
	}

	if !g.allowsLong() {
		return nil
	}

	// Contrarian longs against the trend demand extra confidence.
	var confidence float64
	var reasons []string

	if snap.rsiOK && snap.rsi < g.cfg.RSIOversold {
		confidence += 20
		reasons = append(reasons, fmt.Sprintf("rsi %.1f deeply oversold", snap.rsi))
	}
	if snap.bandsOK && snap.price < snap.bands.Lower {
		confidence += 20
		reasons = append(reasons, "price below the lower bollinger band")
	}

	if confidence < g.cfg.MinConfidence+10 {
		return nil
	}

	return g.signal(symbol, shared.Long, confidence, snap.price, analysis, reasons, now)
}

// meanReversion scores band fade entries within a sideways market.
func (g *Generator) meanReversion(symbol string, snap snapshot, analysis shared.RegimeAnalysis, now time.Time) *shared.TradeSignal {
	if !snap.bandsOK {
		return nil
	}

	switch {
	case g.allowsLong() && snap.price <= snap.bands.Lower*1.005:
		confidence := float64(35)
		reasons := []string{"price faded to the lower bollinger band"}
		if snap.rsiOK && snap.rsi < g.cfg.RSIOversold {
			confidence += 25
			reasons = append(reasons, fmt.Sprintf("rsi %.1f oversold", snap.rsi))
		}
		if confidence < g.cfg.MinConfidence {
			return nil
		}
		return g.signal(symbol, shared.Long, confidence, snap.price, analysis, reasons, now)

	case g.allowsShort() && snap.price >= snap.bands.Upper*0.995:
		confidence := float64(35)
		reasons := []string{"price stretched to the upper bollinger band"}
		if snap.rsiOK && snap.rsi > g.cfg.RSIOverbought {
			confidence += 25
			reasons = append(reasons, fmt.Sprintf("rsi %.1f overbought", snap.rsi))
		}
		if confidence < g.cfg.MinConfidence {
			return nil
		}
		return g.signal(symbol, shared.Short, confidence, snap.price, analysis, reasons, now)

	default:
		return nil
	}
}

// signal assembles a trade signal with exits set off the entry price.
func (g *Generator) signal(symbol string, direction shared.Direction, confidence, price float64, analysis shared.RegimeAnalysis, reasons []string, now time.Time) *shared.TradeSignal {
	sig := &shared.TradeSignal{
		Symbol:     symbol,
		Direction:  direction,
		Confidence: math.Min(confidence, 100),
		Entry:      price,
		Regime:     analysis.Regime,
		Reasons:    reasons,
		CreatedOn:  now,
	}

	switch direction {
	case shared.Long:
		sig.StopLoss = price * (1 - g.cfg.StopLossPercent/100)
		sig.Target = price * (1 + g.cfg.TakeProfitPercent/100)
	case shared.Short:
		sig.StopLoss = price * (1 + g.cfg.StopLossPercent/100)
		sig.Target = price * (1 - g.cfg.TakeProfitPercent/100)
	}

	return sig
}
