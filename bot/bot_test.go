package bot

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"

	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/rules"
	"github.com/kalebr/tradeassist/shared"
)

// stubSource is a scripted market source for bot tests.
type stubSource struct {
	candles  []shared.Candle
	fetchErr error
	quote    float64
	quoteErr error
}

func (s *stubSource) FetchCandles(ctx context.Context, symbol string, interval shared.Interval, limit int) ([]shared.Candle, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	return s.candles, nil
}

func (s *stubSource) FetchQuote(ctx context.Context, symbol string) (float64, error) {
	if s.quoteErr != nil {
		return 0, s.quoteErr
	}

	return s.quote, nil
}

// day returns a date idx days from the test epoch.
func day(idx int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, idx)
}

// flat returns n copies of price.
func flat(n int, price float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = price
	}

	return values
}

// dailyCandles builds flat daily candles from the provided closes.
func dailyCandles(closes ...float64) []shared.Candle {
	candles := make([]shared.Candle, 0, len(closes))
	for idx, price := range closes {
		candles = append(candles, shared.Candle{
			Open:     price,
			Low:      price,
			High:     price,
			Close:    price,
			Volume:   1000000,
			Date:     day(idx),
			Symbol:   "AAPL",
			Interval: shared.OneDay,
		})
	}

	return candles
}

// newTestStore builds a portfolio store with the provided starting capital.
func newTestStore(t *testing.T, capital float64) *portfolio.Store {
	t.Helper()

	store, err := portfolio.NewStore(&portfolio.StoreConfig{InitialCapital: capital})
	assert.NoError(t, err)

	return store
}

// newTestEngine builds a rule engine over the provided store.
func newTestEngine(t *testing.T, store *portfolio.Store) *rules.Engine {
	t.Helper()

	logger := zerolog.Nop()
	engine, err := rules.NewEngine(&rules.EngineConfig{Store: store, Logger: &logger})
	assert.NoError(t, err)

	return engine
}
