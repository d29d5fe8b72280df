package shared

import "time"

// PositionStatus represents the lifecycle status of a position.
type PositionStatus int

const (
	Open PositionStatus = iota
	Closed
)

// String stringifies the provided position status.
func (s PositionStatus) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ExitReason represents the reason a position was closed.
type ExitReason int

const (
	TakeProfit ExitReason = iota
	StopLoss
	TrailingStop
	TimeStop
	RegimeChange
	Manual
	EndOfData
)

// String stringifies the provided exit reason.
func (r ExitReason) String() string {
	switch r {
	case TakeProfit:
		return "take profit"
	case StopLoss:
		return "stop loss"
	case TrailingStop:
		return "trailing stop"
	case TimeStop:
		return "time stop"
	case RegimeChange:
		return "regime change"
	case Manual:
		return "manual"
	case EndOfData:
		return "end of data"
	default:
		return "unknown"
	}
}

// RiskParams represents the exit thresholds attached to a position when it
// is opened. Zero values disable the corresponding predicate.
type RiskParams struct {
	TakeProfitPercent   float64
	StopLossPercent     float64
	TrailingStopPercent float64
	MaxHoldingDays      int
}

// Position represents an open market position for a symbol.
type Position struct {
	ID        string
	RuleID    string
	Symbol    string
	Direction Direction
	Status    PositionStatus

	Shares     float64
	EntryPrice float64
	EntryDate  time.Time

	// Price tracking fields, refreshed on every price update.
	CurrentPrice float64
	HighestPrice float64
	LowestPrice  float64

	// Regime the position was opened under, used by the regime change
	// exit predicate.
	OriginRegime Regime

	Risk RiskParams
}
