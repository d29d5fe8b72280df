package rules

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalebr/tradeassist/shared"
)

// RiskProfile bundles the exit thresholds and entry gates shared by rules
// built from it.
type RiskProfile struct {
	// Name identifies the profile.
	Name string
	// Risk is the exit parameter set attached to opened positions.
	Risk shared.RiskParams
	// CooldownMinutes is the minimum spacing between rule executions.
	CooldownMinutes int
	// MinConfidence is the minimum trigger confidence accepted.
	MinConfidence float64
	// MinVolume gates entries on the trigger candle's traded volume.
	MinVolume float64
	// RSIMin and RSIMax bound the RSI accepted for entries. Both zero
	// disables the filter.
	RSIMin float64
	RSIMax float64
}

// ConservativeProfile returns a preset favoring small, well confirmed moves
// with tight stops and long cooldowns.
func ConservativeProfile() RiskProfile {
	return RiskProfile{
		Name: "conservative",
		Risk: shared.RiskParams{
			TakeProfitPercent:   5,
			StopLossPercent:     2,
			TrailingStopPercent: 2,
			MaxHoldingDays:      10,
		},
		CooldownMinutes: 240,
		MinConfidence:   75,
		MinVolume:       500000,
		RSIMin:          30,
		RSIMax:          70,
	}
}

// BalancedProfile returns a preset balancing trade frequency against risk.
func BalancedProfile() RiskProfile {
	return RiskProfile{
		Name: "balanced",
		Risk: shared.RiskParams{
			TakeProfitPercent:   10,
			StopLossPercent:     5,
			TrailingStopPercent: 3,
			MaxHoldingDays:      20,
		},
		CooldownMinutes: 120,
		MinConfidence:   65,
		MinVolume:       250000,
		RSIMin:          20,
		RSIMax:          80,
	}
}

// AggressiveProfile returns a preset accepting lower confidence triggers
// with wide stops and short cooldowns.
func AggressiveProfile() RiskProfile {
	return RiskProfile{
		Name: "aggressive",
		Risk: shared.RiskParams{
			TakeProfitPercent:   20,
			StopLossPercent:     8,
			TrailingStopPercent: 5,
			MaxHoldingDays:      30,
		},
		CooldownMinutes: 30,
		MinConfidence:   50,
	}
}

// ParseProfile returns the named risk profile preset.
func ParseProfile(name string) (RiskProfile, error) {
	switch name {
	case "conservative":
		return ConservativeProfile(), nil
	case "balanced":
		return BalancedProfile(), nil
	case "aggressive":
		return AggressiveProfile(), nil
	default:
		return RiskProfile{}, fmt.Errorf("unknown risk profile: %s", name)
	}
}

// NewPatternRule builds an enabled auto-trading rule from the provided
// profile, triggered by the provided candlestick pattern. Entry rules are
// sized with the provided dollar amount. Exit rules ignore the amount and
// liquidate the full holding.
func NewPatternRule(profile RiskProfile, symbol string, action shared.OrderAction, kind shared.PatternKind, amountDollars float64) *shared.TradingRule {
	rule := baseRule(profile, symbol, action, amountDollars)
	rule.Trigger = shared.PatternTrigger
	rule.Pattern = kind

	return rule
}

// NewCrossoverRule builds an enabled auto-trading rule from the provided
// profile, triggered by the provided indicator crossover.
func NewCrossoverRule(profile RiskProfile, symbol string, action shared.OrderAction, kind shared.CrossKind, amountDollars float64) *shared.TradingRule {
	rule := baseRule(profile, symbol, action, amountDollars)
	rule.Trigger = shared.CrossoverTrigger
	rule.Crossover = kind

	return rule
}

// baseRule builds the trigger-agnostic parts of a rule from the provided
// profile.
func baseRule(profile RiskProfile, symbol string, action shared.OrderAction, amountDollars float64) *shared.TradingRule {
	rule := &shared.TradingRule{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Action:          action,
		Enabled:         true,
		AutoTrade:       true,
		MinConfidence:   profile.MinConfidence,
		CooldownMinutes: profile.CooldownMinutes,
		MinVolume:       profile.MinVolume,
		RSIMin:          profile.RSIMin,
		RSIMax:          profile.RSIMax,
		Fractional:      true,
		Risk:            profile.Risk,
		CreatedOn:       time.Now().UTC(),
	}

	if action.Entry() {
		rule.AmountDollars = amountDollars
	}

	return rule
}
