package shared

import (
	"fmt"
	"slices"
	"time"

	"github.com/tidwall/gjson"
)

// Interval represents the sampling interval of a candle series.
type Interval int

const (
	OneDay Interval = iota
	OneHour
	ThirtyMinute
	FiveMinute
	OneMinute
)

// String stringifies the provided interval.
func (i Interval) String() string {
	switch i {
	case OneDay:
		return "1day"
	case OneHour:
		return "1hour"
	case ThirtyMinute:
		return "30min"
	case FiveMinute:
		return "5min"
	case OneMinute:
		return "1min"
	default:
		return "unknown"
	}
}

// ParseInterval converts the provided string to an interval.
func ParseInterval(interval string) (Interval, error) {
	switch interval {
	case "1day", "daily":
		return OneDay, nil
	case "1hour":
		return OneHour, nil
	case "30min":
		return ThirtyMinute, nil
	case "5min":
		return FiveMinute, nil
	case "1min":
		return OneMinute, nil
	default:
		return 0, fmt.Errorf("unknown interval: %s", interval)
	}
}

// Intraday indicates whether the interval samples within a single session.
func (i Interval) Intraday() bool {
	return i != OneDay
}

// Candle represents a unit OHLCV bar for a symbol.
type Candle struct {
	Open   float64
	Low    float64
	High   float64
	Close  float64
	Volume float64
	Date   time.Time

	// Metadata fields.
	Symbol   string
	Interval Interval
}

// candleDateLayouts are the provider date formats, intraday and daily.
var candleDateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

// ParseCandles decodes provider candle data of the form
// [{"date":...,"open":...,"high":...,"low":...,"close":...,"volume":...}]
// into candles for the provided symbol.
func ParseCandles(data []gjson.Result, symbol string, interval Interval, loc *time.Location) ([]Candle, error) {
	candles := make([]Candle, 0, len(data))
	for idx := range data {
		entry := data[idx]

		dateStr := entry.Get("date").String()
		var date time.Time
		var err error
		for _, layout := range candleDateLayouts {
			date, err = time.ParseInLocation(layout, dateStr, loc)
			if err == nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("parsing candle date '%s': %w", dateStr, err)
		}

		candle := Candle{
			Open:     entry.Get("open").Float(),
			High:     entry.Get("high").Float(),
			Low:      entry.Get("low").Float(),
			Close:    entry.Get("close").Float(),
			Volume:   entry.Get("volume").Float(),
			Date:     date,
			Symbol:   symbol,
			Interval: interval,
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// SortCandles orders the provided candles by date, oldest first.
func SortCandles(candles []Candle) {
	slices.SortFunc(candles, func(a, b Candle) int {
		return a.Date.Compare(b.Date)
	})
}

// Closes returns the close series of the provided candles.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for idx := range candles {
		closes[idx] = candles[idx].Close
	}

	return closes
}

// Highs returns the high series of the provided candles.
func Highs(candles []Candle) []float64 {
	highs := make([]float64, len(candles))
	for idx := range candles {
		highs[idx] = candles[idx].High
	}

	return highs
}

// Lows returns the low series of the provided candles.
func Lows(candles []Candle) []float64 {
	lows := make([]float64, len(candles))
	for idx := range candles {
		lows[idx] = candles[idx].Low
	}

	return lows
}

// Volumes returns the volume series of the provided candles.
func Volumes(candles []Candle) []float64 {
	volumes := make([]float64, len(candles))
	for idx := range candles {
		volumes[idx] = candles[idx].Volume
	}

	return volumes
}
