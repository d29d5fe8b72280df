package shared

import "time"

// PatternKind represents a candlestick pattern.
type PatternKind int

const (
	Hammer PatternKind = iota
	ShootingStar
	BullishEngulfing
	BearishEngulfing
	Doji
	MorningStar
	EveningStar
)

// String stringifies the provided pattern kind.
func (k PatternKind) String() string {
	switch k {
	case Hammer:
		return "hammer"
	case ShootingStar:
		return "shooting star"
	case BullishEngulfing:
		return "bullish engulfing"
	case BearishEngulfing:
		return "bearish engulfing"
	case Doji:
		return "doji"
	case MorningStar:
		return "morning star"
	case EveningStar:
		return "evening star"
	default:
		return "unknown"
	}
}

// Sentiment returns the sentiment expressed by the pattern kind.
func (k PatternKind) Sentiment() Sentiment {
	switch k {
	case Hammer, BullishEngulfing, MorningStar:
		return Bullish
	case ShootingStar, BearishEngulfing, EveningStar:
		return Bearish
	default:
		return Neutral
	}
}

// PatternMatch represents a candlestick pattern flagged on a candle window.
type PatternMatch struct {
	Symbol     string
	Kind       PatternKind
	Sentiment  Sentiment
	Confidence float64
	Price      float64
	Volume     float64
	Date       time.Time
}
