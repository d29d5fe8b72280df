package shared

import "time"

// TradeSignal represents an advisory entry signal produced for a symbol.
type TradeSignal struct {
	Symbol     string
	Direction  Direction
	Confidence float64
	Entry      float64
	StopLoss   float64
	Target     float64
	Regime     Regime
	Reasons    []string
	CreatedOn  time.Time
}
