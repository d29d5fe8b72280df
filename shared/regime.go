package shared

import "time"

// Regime represents the prevailing market regime for a symbol.
type Regime int

const (
	Unknown Regime = iota
	Uptrend
	Downtrend
	Sideways
)

// String stringifies the provided regime.
func (r Regime) String() string {
	switch r {
	case Uptrend:
		return "uptrend"
	case Downtrend:
		return "downtrend"
	case Sideways:
		return "sideways"
	default:
		return "unknown"
	}
}

// TrendStrength represents the strength of the prevailing trend.
type TrendStrength int

const (
	Weak TrendStrength = iota
	Moderate
	Strong
)

// String stringifies the provided trend strength.
func (t TrendStrength) String() string {
	switch t {
	case Weak:
		return "weak"
	case Moderate:
		return "moderate"
	case Strong:
		return "strong"
	default:
		return "unknown"
	}
}

// RegimeAnalysis represents a market regime classification for a symbol,
// with the indicator readings that produced it.
type RegimeAnalysis struct {
	Symbol        string
	Regime        Regime
	Confidence    float64
	TrendStrength TrendStrength

	// Indicator readings backing the classification.
	ADX               float64
	PlusDI            float64
	MinusDI           float64
	RSI               float64
	FastSMA           float64
	SlowSMA           float64
	PriceVsFastSMA    float64
	PriceVsSlowSMA    float64
	BollingerPosition float64
	Price             float64

	CreatedOn time.Time
}
