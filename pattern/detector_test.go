package pattern

import (
	"testing"
	"time"

	"github.com/kalebr/tradeassist/shared"
	"github.com/peterldowns/testy/assert"
)

// candle builds a test candle for the provided prices.
func candle(open, high, low, close float64) shared.Candle {
	return shared.Candle{
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: 1000,
		Symbol: "AAPL",
		Date:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

// kinds extracts the pattern kinds of the provided matches.
func kinds(matches []shared.PatternMatch) []shared.PatternKind {
	found := make([]shared.PatternKind, len(matches))
	for i := range matches {
		found[i] = matches[i].Kind
	}

	return found
}

func TestDetectHammer(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(105, 105, 99, 100),
		candle(100, 101.2, 95, 101),
	}

	// Ensure a long lower tail after a down candle flags a hammer with a
	// dominance bonus.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.Hammer})
	assert.Equal(t, matches[0].Sentiment, shared.Bullish)
	assert.Equal(t, matches[0].Confidence, float64(75))
	assert.Equal(t, matches[0].Symbol, "AAPL")
	assert.Equal(t, matches[0].Price, float64(101))
}

func TestDetectShootingStar(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(100, 105, 99.5, 105),
		candle(105, 110, 103.8, 104),
	}

	// Ensure a long upper tail after an up candle flags a shooting star.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.ShootingStar})
	assert.Equal(t, matches[0].Sentiment, shared.Bearish)
	assert.Equal(t, matches[0].Confidence, float64(75))
}

func TestDetectBullishEngulfing(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(102, 102.5, 99.5, 100),
		candle(99.8, 103.5, 99.5, 103),
	}

	// Ensure an up candle engulfing the prior down body flags with a
	// strength bonus.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.BullishEngulfing})
	assert.Equal(t, matches[0].Confidence, float64(85))
}

func TestDetectBearishEngulfing(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(100, 102.5, 99.5, 102),
		candle(102.2, 102.5, 98.5, 99),
	}

	// Ensure a down candle engulfing the prior up body flags.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.BearishEngulfing})
	assert.Equal(t, matches[0].Sentiment, shared.Bearish)
}

func TestDetectDoji(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(100, 101, 99, 100.05),
	}

	// Ensure a sliver body flags a doji with neutral sentiment.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.Doji})
	assert.Equal(t, matches[0].Sentiment, shared.Neutral)
	assert.Equal(t, matches[0].Confidence, float64(60))
}

func TestDetectMorningStar(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(110, 110.5, 99.5, 100),
		candle(99, 100, 98.5, 99.5),
		candle(100, 109.5, 99.8, 109),
	}

	// Ensure the three candle reversal closing above the anchor midpoint
	// flags a morning star.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.MorningStar})
	assert.Equal(t, matches[0].Confidence, float64(70))
}

func TestDetectEveningStar(t *testing.T) {
	detector := NewDetector(Config{})

	window := []shared.Candle{
		candle(100, 110.5, 99.5, 110),
		candle(111, 111.5, 110.5, 110.8),
		candle(110, 110.2, 100.5, 101),
	}

	// Ensure the mirrored reversal closing below the anchor midpoint
	// flags an evening star.
	matches := detector.DetectPatterns(window)
	assert.Equal(t, kinds(matches), []shared.PatternKind{shared.EveningStar})
	assert.Equal(t, matches[0].Sentiment, shared.Bearish)
}

func TestDetectPatternsEdgeWindows(t *testing.T) {
	detector := NewDetector(Config{})

	// Ensure empty windows flag nothing.
	assert.Equal(t, len(detector.DetectPatterns(nil)), 0)

	// Ensure flat candles flag nothing.
	matches := detector.DetectPatterns([]shared.Candle{candle(100, 100, 100, 100)})
	assert.Equal(t, len(matches), 0)
}
