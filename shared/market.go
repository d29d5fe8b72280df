package shared

// Direction represents the direction of a position.
type Direction int

const (
	Long Direction = iota
	Short
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Sentiment represents the market sentiment expressed by a candle pattern.
type Sentiment int

const (
	Neutral Sentiment = iota
	Bullish
	Bearish
)

// String stringifies the provided sentiment.
func (s Sentiment) String() string {
	switch s {
	case Neutral:
		return "neutral"
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "unknown"
	}
}

// OrderAction represents the order action taken by a rule execution or fill.
type OrderAction int

const (
	Buy OrderAction = iota
	Sell
	SellShort
	Cover
)

// String stringifies the provided order action.
func (a OrderAction) String() string {
	switch a {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	case SellShort:
		return "short"
	case Cover:
		return "cover"
	default:
		return "unknown"
	}
}

// Entry indicates whether the action opens or adds to a position.
func (a OrderAction) Entry() bool {
	return a == Buy || a == SellShort
}

// PositionDirection returns the direction of the position the action
// opens or closes.
func (a OrderAction) PositionDirection() Direction {
	switch a {
	case Buy, Sell:
		return Long
	default:
		return Short
	}
}
