package shared

import (
	"errors"
	"fmt"
	"time"
)

// TriggerKind represents the kind of market event a trading rule matches on.
type TriggerKind int

const (
	PatternTrigger TriggerKind = iota
	CrossoverTrigger
)

// String stringifies the provided trigger kind.
func (k TriggerKind) String() string {
	switch k {
	case PatternTrigger:
		return "pattern"
	case CrossoverTrigger:
		return "crossover"
	default:
		return "unknown"
	}
}

// CrossKind represents an indicator crossover event.
type CrossKind int

const (
	MACDBullishCross CrossKind = iota
	MACDBearishCross
	GoldenCross
	DeathCross
)

// String stringifies the provided cross kind.
func (k CrossKind) String() string {
	switch k {
	case MACDBullishCross:
		return "macd bullish cross"
	case MACDBearishCross:
		return "macd bearish cross"
	case GoldenCross:
		return "golden cross"
	case DeathCross:
		return "death cross"
	default:
		return "unknown"
	}
}

// TradingRule represents a persisted if-this-then-that trading rule binding
// a market trigger for a symbol to an order action.
type TradingRule struct {
	ID      string
	Symbol  string
	Action  OrderAction
	Enabled bool

	// AutoTrade executes matched rules against the portfolio. When unset
	// a matched rule only raises an alert.
	AutoTrade bool

	Trigger   TriggerKind
	Pattern   PatternKind
	Crossover CrossKind

	// Gating criteria.
	MinConfidence   float64
	CooldownMinutes int
	MinVolume       float64
	RSIMin          float64
	RSIMax          float64

	// Sizing criteria. Entry rules set exactly one of AmountDollars or
	// PositionSizePercent. Exit rules liquidate SellPercent of the held
	// shares, with zero meaning the full holding.
	AmountDollars       float64
	PositionSizePercent float64
	SellPercent         float64
	Fractional          bool

	Risk RiskParams

	LastExecutedAt time.Time
	CreatedOn      time.Time
	SchemaVersion  int
}

// TriggerName returns a stable name for the rule's market trigger.
func (r *TradingRule) TriggerName() string {
	if r.Trigger == CrossoverTrigger {
		return r.Crossover.String()
	}

	return r.Pattern.String()
}

// Validate asserts the trading rule is well formed.
func (r *TradingRule) Validate() error {
	var errs error

	if r.ID == "" {
		errs = errors.Join(errs, fmt.Errorf("rule id cannot be an empty string"))
	}
	if r.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("rule symbol cannot be an empty string"))
	}
	if r.MinConfidence < 0 || r.MinConfidence > 100 {
		errs = errors.Join(errs, fmt.Errorf("rule minimum confidence must be in range 0-100, got %.2f", r.MinConfidence))
	}
	if r.CooldownMinutes < 0 {
		errs = errors.Join(errs, fmt.Errorf("rule cooldown cannot be negative, got %d", r.CooldownMinutes))
	}
	if r.RSIMin > r.RSIMax {
		errs = errors.Join(errs, fmt.Errorf("rule rsi filter minimum %.2f exceeds maximum %.2f", r.RSIMin, r.RSIMax))
	}

	if r.Action.Entry() {
		switch {
		case r.AmountDollars <= 0 && r.PositionSizePercent <= 0:
			errs = errors.Join(errs, fmt.Errorf("entry rule requires a dollar amount or a position size percent"))
		case r.AmountDollars > 0 && r.PositionSizePercent > 0:
			errs = errors.Join(errs, fmt.Errorf("entry rule cannot set both a dollar amount and a position size percent"))
		case r.PositionSizePercent > 100:
			errs = errors.Join(errs, fmt.Errorf("entry rule position size percent cannot exceed 100, got %.2f", r.PositionSizePercent))
		}
	}

	if !r.Action.Entry() && (r.SellPercent < 0 || r.SellPercent > 100) {
		errs = errors.Join(errs, fmt.Errorf("exit rule sell percent must be in range 0-100, got %.2f", r.SellPercent))
	}

	return errs
}
