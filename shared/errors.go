package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited indicates the market data provider rejected a request
	// because of rate limiting.
	ErrRateLimited = errors.New("market data provider rate limited the request")
	// ErrProviderUnavailable indicates the market data provider could not
	// be reached or returned a server error.
	ErrProviderUnavailable = errors.New("market data provider unavailable")
)

// InsufficientDataError indicates a symbol does not have enough historical
// rows for the requested analysis.
type InsufficientDataError struct {
	Symbol   string
	Rows     int
	Minimum  int
	Interval Interval
}

// Error satisfies the error interface.
func (e *InsufficientDataError) Error() string {
	if e.Rows == 0 {
		return fmt.Sprintf("no historical data available for %s", e.Symbol)
	}

	unit := "days"
	if e.Interval.Intraday() {
		unit = "bars"
	}

	return fmt.Sprintf("insufficient historical data for %s: %d %s available, need at least %d",
		e.Symbol, e.Rows, unit, e.Minimum)
}

// InsufficientBalanceError indicates the portfolio lacks the cash to fund
// an order.
type InsufficientBalanceError struct {
	Symbol string
	Need   float64
	Have   float64
}

// Error satisfies the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s order: need %.2f, have %.2f", e.Symbol, e.Need, e.Have)
}

// InsufficientSharesError indicates the portfolio lacks the shares to fund
// a liquidation.
type InsufficientSharesError struct {
	Symbol string
	Need   float64
	Have   float64
}

// Error satisfies the error interface.
func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares of %s: need %.4f, have %.4f", e.Symbol, e.Need, e.Have)
}
