package shared

import "time"

// CompletedTrade represents a fully closed round trip on a symbol.
type CompletedTrade struct {
	ID         string
	PositionID string
	RuleID     string
	Symbol     string
	Direction  Direction

	Shares     float64
	EntryPrice float64
	EntryDate  time.Time
	ExitPrice  float64
	ExitDate   time.Time

	PNL         float64
	PNLPercent  float64
	HoldingDays int
	ExitReason  ExitReason
}

// Fill represents a single executed order against the portfolio.
type Fill struct {
	ID        string
	RuleID    string
	Symbol    string
	Action    OrderAction
	Shares    float64
	Price     float64
	CreatedOn time.Time
}

// ExecutionStatus represents the outcome of a rule execution attempt.
type ExecutionStatus int

const (
	Executed ExecutionStatus = iota
	Failed
)

// String stringifies the provided execution status.
func (s ExecutionStatus) String() string {
	switch s {
	case Executed:
		return "executed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExecutionRecord represents the journaled outcome of a rule execution
// attempt, successful or not.
type ExecutionRecord struct {
	ID        string
	RuleID    string
	Symbol    string
	Action    OrderAction
	Status    ExecutionStatus
	Reason    string
	Shares    float64
	Price     float64
	CreatedOn time.Time
}
