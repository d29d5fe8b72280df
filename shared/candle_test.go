package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

func TestParseCandles(t *testing.T) {
	loc, err := time.LoadLocation(NewYorkLocation)
	assert.NoError(t, err)

	// Ensure intraday candle data can be parsed.
	intraday := `[{"open":10,"close":12,"high":15,"low":8,"volume":5,"date":"2025-02-04 15:05:00"}]`
	candles, err := ParseCandles(gjson.Parse(intraday).Array(), "AAPL", FiveMinute, loc)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 1)
	assert.Equal(t, candles[0].Open, float64(10))
	assert.Equal(t, candles[0].Close, float64(12))
	assert.Equal(t, candles[0].High, float64(15))
	assert.Equal(t, candles[0].Low, float64(8))
	assert.Equal(t, candles[0].Volume, float64(5))
	assert.Equal(t, candles[0].Symbol, "AAPL")
	assert.Equal(t, candles[0].Date.Hour(), 15)

	// Ensure daily candle data can be parsed.
	daily := `[{"open":10,"close":12,"high":15,"low":8,"volume":5,"date":"2025-02-04"}]`
	candles, err = ParseCandles(gjson.Parse(daily).Array(), "AAPL", OneDay, loc)
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 1)
	assert.Equal(t, candles[0].Date.Day(), 4)
	assert.Equal(t, candles[0].Interval, OneDay)

	// Ensure malformed dates error.
	malformed := `[{"open":10,"close":12,"high":15,"low":8,"volume":5,"date":"04/02/2025"}]`
	_, err = ParseCandles(gjson.Parse(malformed).Array(), "AAPL", OneDay, loc)
	assert.Error(t, err)
}

func TestSortCandles(t *testing.T) {
	loc, err := time.LoadLocation(NewYorkLocation)
	assert.NoError(t, err)

	day := func(d int) time.Time {
		return time.Date(2025, 2, d, 0, 0, 0, 0, loc)
	}

	candles := []Candle{
		{Close: 3, Date: day(3)},
		{Close: 1, Date: day(1)},
		{Close: 2, Date: day(2)},
	}

	// Ensure candles sort oldest first.
	SortCandles(candles)
	assert.Equal(t, candles[0].Close, float64(1))
	assert.Equal(t, candles[1].Close, float64(2))
	assert.Equal(t, candles[2].Close, float64(3))

	// Ensure series helpers preserve order.
	closes := Closes(candles)
	assert.Equal(t, closes, []float64{1, 2, 3})
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		want     Interval
		wantErr  bool
	}{
		{
			"daily",
			"1day",
			OneDay,
			false,
		},
		{
			"hourly",
			"1hour",
			OneHour,
			false,
		},
		{
			"five minute",
			"5min",
			FiveMinute,
			false,
		},
		{
			"unknown",
			"3week",
			0,
			true,
		},
	}

	for _, test := range tests {
		interval, err := ParseInterval(test.interval)
		if (err != nil) != test.wantErr {
			t.Errorf("%s: unexpected error status, got %v", test.name, err)
		}
		if err == nil && interval != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, interval)
		}
	}
}

func TestIntervalIntraday(t *testing.T) {
	// Ensure only the daily interval is not intraday.
	assert.False(t, OneDay.Intraday())
	assert.True(t, OneHour.Intraday())
	assert.True(t, FiveMinute.Intraday())
}
