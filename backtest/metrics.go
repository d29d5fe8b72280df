package backtest

import (
	"math"
	"time"

	"github.com/kalebr/tradeassist/shared"
)

// EquityPoint is a snapshot of total portfolio value after one replayed
// candle.
type EquityPoint struct {
	Date   time.Time
	Equity float64
}

// Metrics summarizes the performance of a set of completed trades.
type Metrics struct {
	// TotalTrades is the number of completed trades.
	TotalTrades int
	// Wins is the number of trades closed at a profit.
	Wins int
	// Losses is the number of trades closed at a loss.
	Losses int
	// WinRate is the percentage of trades closed at a profit.
	WinRate float64
	// GrossProfit is the summed profit of all winning trades.
	GrossProfit float64
	// GrossLoss is the summed loss of all losing trades, as a positive
	// magnitude.
	GrossLoss float64
	// ProfitFactor is the ratio of gross profit to gross loss. It is
	// positive infinity when there are profits but no losses.
	ProfitFactor float64
	// AverageWin is the mean profit of the winning trades.
	AverageWin float64
	// AverageLoss is the mean loss magnitude of the losing trades.
	AverageLoss float64
	// MaxDrawdown is the largest peak to trough equity decline in dollars.
	MaxDrawdown float64
	// MaxDrawdownPercent is the largest peak to trough equity decline as a
	// percentage of the peak.
	MaxDrawdownPercent float64
	// AverageHoldingDays is the mean holding period of the trades in days.
	AverageHoldingDays float64
	// TotalReturn is the change in portfolio value over the run.
	TotalReturn float64
	// TotalReturnPercent is the change in portfolio value as a percentage
	// of the starting capital.
	TotalReturnPercent float64
}

// ComputeMetrics derives performance metrics from the provided trades and
// equity curve.
func ComputeMetrics(trades []shared.CompletedTrade, curve []EquityPoint, initialCapital, finalCapital float64) Metrics {
	metrics := Metrics{
		TotalTrades: len(trades),
		TotalReturn: finalCapital - initialCapital,
	}

	if initialCapital > 0 {
		metrics.TotalReturnPercent = metrics.TotalReturn / initialCapital * 100
	}

	var holdingDays int
	for _, trade := range trades {
		holdingDays += trade.HoldingDays

		switch {
		case trade.PNL > 0:
			metrics.Wins++
			metrics.GrossProfit += trade.PNL
		case trade.PNL < 0:
			metrics.Losses++
			metrics.GrossLoss += -trade.PNL
		}
	}

	if metrics.TotalTrades > 0 {
		metrics.WinRate = float64(metrics.Wins) / float64(metrics.TotalTrades) * 100
		metrics.AverageHoldingDays = float64(holdingDays) / float64(metrics.TotalTrades)
	}
	if metrics.Wins > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.Wins)
	}
	if metrics.Losses > 0 {
		metrics.AverageLoss = metrics.GrossLoss / float64(metrics.Losses)
	}

	switch {
	case metrics.GrossLoss > 0:
		metrics.ProfitFactor = metrics.GrossProfit / metrics.GrossLoss
	case metrics.GrossProfit > 0:
		metrics.ProfitFactor = math.Inf(1)
	}

	metrics.MaxDrawdown, metrics.MaxDrawdownPercent = maxDrawdown(curve)

	return metrics
}

// maxDrawdown returns the largest peak to trough equity decline of the
// provided curve, in dollars and as a percentage of the peak. The dollar
// and percentage maxima are tracked independently since they can occur at
// different troughs.
func maxDrawdown(curve []EquityPoint) (float64, float64) {
	if len(curve) == 0 {
		return 0, 0
	}

	peak := curve[0].Equity
	var drawdown, drawdownPercent float64
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}

		decline := peak - point.Equity
		if decline > drawdown {
			drawdown = decline
		}
		if peak > 0 {
			pct := decline / peak * 100
			if pct > drawdownPercent {
				drawdownPercent = pct
			}
		}
	}

	return drawdown, drawdownPercent
}
