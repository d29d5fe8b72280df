package shared

import (
	"errors"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestInsufficientDataError(t *testing.T) {
	// Ensure the zero row message names the symbol.
	err := &InsufficientDataError{Symbol: "AAPL", Rows: 0, Minimum: 10, Interval: OneDay}
	assert.Equal(t, err.Error(), "no historical data available for AAPL")

	// Ensure the short history message names the available row count.
	err = &InsufficientDataError{Symbol: "AAPL", Rows: 5, Minimum: 10, Interval: OneDay}
	assert.Equal(t, err.Error(), "insufficient historical data for AAPL: 5 days available, need at least 10")

	// Ensure intraday rows are reported as bars.
	err = &InsufficientDataError{Symbol: "AAPL", Rows: 12, Minimum: 20, Interval: FiveMinute}
	assert.Equal(t, err.Error(), "insufficient historical data for AAPL: 12 bars available, need at least 20")
}

func TestBalanceAndShareErrors(t *testing.T) {
	// Ensure balance errors surface the shortfall.
	balanceErr := &InsufficientBalanceError{Symbol: "AAPL", Need: 500, Have: 100}
	assert.Equal(t, balanceErr.Error(), "insufficient balance for AAPL order: need 500.00, have 100.00")

	sharesErr := &InsufficientSharesError{Symbol: "AAPL", Need: 10, Have: 2.5}
	assert.Equal(t, sharesErr.Error(), "insufficient shares of AAPL: need 10.0000, have 2.5000")

	// Ensure typed errors can be matched with errors.As.
	var target *InsufficientBalanceError
	assert.True(t, errors.As(error(balanceErr), &target))
}

func TestProviderSentinels(t *testing.T) {
	// Ensure sentinel errors match through wrapping.
	wrapped := errors.Join(errors.New("fetching candles"), ErrRateLimited)
	assert.True(t, errors.Is(wrapped, ErrRateLimited))
	assert.False(t, errors.Is(wrapped, ErrProviderUnavailable))
}
