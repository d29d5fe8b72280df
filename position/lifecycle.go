package position

import (
	"time"

	"github.com/kalebr/tradeassist/shared"
)

// EvaluateExit applies the exit predicates to the provided position
// snapshot at the provided price, in precedence order: take profit, stop
// loss, trailing stop, time stop, regime change. The first predicate to
// fire wins. Thresholds are inclusive. Callers must refresh the position's
// price extremes before evaluating. A liveRegime of shared.Unknown skips
// the regime change predicate.
func EvaluateExit(pos *shared.Position, price float64, now time.Time, liveRegime shared.Regime) (shared.ExitReason, bool) {
	if tp := pos.Risk.TakeProfitPercent; tp > 0 {
		switch pos.Direction {
		case shared.Long:
			if price >= pos.EntryPrice*(1+tp/100) {
				return shared.TakeProfit, true
			}
		case shared.Short:
			if price <= pos.EntryPrice*(1-tp/100) {
				return shared.TakeProfit, true
			}
		}
	}

	if sl := pos.Risk.StopLossPercent; sl > 0 {
		switch pos.Direction {
		case shared.Long:
			if price <= pos.EntryPrice*(1-sl/100) {
				return shared.StopLoss, true
			}
		case shared.Short:
			if price >= pos.EntryPrice*(1+sl/100) {
				return shared.StopLoss, true
			}
		}
	}

	// The trailing stop only arms after the position has moved favorably
	// past its entry.
	if tr := pos.Risk.TrailingStopPercent; tr > 0 {
		switch pos.Direction {
		case shared.Long:
			if pos.HighestPrice > pos.EntryPrice && price <= pos.HighestPrice*(1-tr/100) {
				return shared.TrailingStop, true
			}
		case shared.Short:
			if pos.LowestPrice < pos.EntryPrice && price >= pos.LowestPrice*(1+tr/100) {
				return shared.TrailingStop, true
			}
		}
	}

	if days := pos.Risk.MaxHoldingDays; days > 0 {
		if now.Sub(pos.EntryDate) >= time.Duration(days)*24*time.Hour {
			return shared.TimeStop, true
		}
	}

	if liveRegime != shared.Unknown {
		switch {
		case pos.Direction == shared.Long && pos.OriginRegime == shared.Uptrend && liveRegime == shared.Downtrend:
			return shared.RegimeChange, true
		case pos.Direction == shared.Short && pos.OriginRegime == shared.Downtrend && liveRegime == shared.Uptrend:
			return shared.RegimeChange, true
		}
	}

	return 0, false
}

// UnrealizedPNL returns the open profit or loss of the provided position at
// price, in dollars and as a percentage of its cost basis.
func UnrealizedPNL(pos *shared.Position, price float64) (float64, float64) {
	var pnl float64
	switch pos.Direction {
	case shared.Short:
		pnl = (pos.EntryPrice - price) * pos.Shares
	default:
		pnl = (price - pos.EntryPrice) * pos.Shares
	}

	cost := pos.EntryPrice * pos.Shares
	if cost == 0 {
		return pnl, 0
	}

	return pnl, pnl / cost * 100
}
