package pattern

import (
	"math"

	"github.com/kalebr/tradeassist/shared"
)

const (
	// longBodyRatio is the body to range ratio above which a candle reads
	// as a long candle.
	longBodyRatio = 0.6
	// smallBodyRatio is the star body to anchor body ratio below which the
	// middle candle reads as indecision.
	smallBodyRatio = 0.4
	// minWickBodyRatio is the minimum wick to body ratio for hammer and
	// shooting star tails.
	minWickBodyRatio = 2.0
	// maxCounterWickRatio is the maximum opposite wick to body ratio for
	// hammer and shooting star candles.
	maxCounterWickRatio = 0.3
	// strongWickBodyRatio is the wick to body ratio granting a confidence
	// bonus on hammer and shooting star candles.
	strongWickBodyRatio = 3.0
	// strongCandleRatio is the closing body to anchor body ratio granting
	// a confidence bonus on star patterns.
	strongCandleRatio = 1.2
	// strongEngulfRatio is the engulfing body to prior body ratio granting
	// a confidence bonus.
	strongEngulfRatio = 1.5

	// Base confidences per pattern family.
	singleCandleConfidence = 65
	starConfidence         = 70
	engulfingConfidence    = 75
	dojiConfidence         = 60
	confidenceBonus        = 10
)

// Config represents the candlestick pattern detector configuration.
type Config struct {
	// MinBodyPercent is the minimum engulfing body size as a percentage
	// of price.
	MinBodyPercent float64
	// DojiBodyPercent is the body to range percentage below which a
	// candle reads as a doji.
	DojiBodyPercent float64
}

// Detector flags candlestick patterns completing on the most recent candle
// of a window.
type Detector struct {
	cfg Config
}

// NewDetector initializes a pattern detector, backfilling config defaults.
func NewDetector(cfg Config) *Detector {
	if cfg.MinBodyPercent <= 0 {
		cfg.MinBodyPercent = 0.5
	}
	if cfg.DojiBodyPercent <= 0 {
		cfg.DojiBodyPercent = 10
	}

	return &Detector{cfg: cfg}
}

// body returns the absolute candle body size.
func body(c shared.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

// upperWick returns the upper wick size of the provided candle.
func upperWick(c shared.Candle) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// lowerWick returns the lower wick size of the provided candle.
func lowerWick(c shared.Candle) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// bullish indicates whether the candle closed above its open.
func bullish(c shared.Candle) bool {
	return c.Close > c.Open
}

// bearish indicates whether the candle closed below its open.
func bearish(c shared.Candle) bool {
	return c.Close < c.Open
}

// DetectPatterns flags candlestick patterns completing on the final candle
// of the provided window, oldest candle first. It satisfies
// shared.PatternDetector.
func (d *Detector) DetectPatterns(candles []shared.Candle) []shared.PatternMatch {
	var matches []shared.PatternMatch

	n := len(candles)
	if n == 0 {
		return matches
	}

	cur := candles[n-1]
	var prev *shared.Candle
	if n > 1 {
		prev = &candles[n-2]
	}

	record := func(kind shared.PatternKind, confidence float64) {
		matches = append(matches, shared.PatternMatch{
			Symbol:     cur.Symbol,
			Kind:       kind,
			Sentiment:  kind.Sentiment(),
			Confidence: math.Min(confidence, 100),
			Price:      cur.Close,
			Volume:     cur.Volume,
			Date:       cur.Date,
		})
	}

	if ok, confidence := d.hammer(cur, prev); ok {
		record(shared.Hammer, confidence)
	}
	if ok, confidence := d.shootingStar(cur, prev); ok {
		record(shared.ShootingStar, confidence)
	}
	if ok, confidence := d.doji(cur); ok {
		record(shared.Doji, confidence)
	}

	if n > 1 {
		if ok, confidence := d.bullishEngulfing(*prev, cur); ok {
			record(shared.BullishEngulfing, confidence)
		}
		if ok, confidence := d.bearishEngulfing(*prev, cur); ok {
			record(shared.BearishEngulfing, confidence)
		}
	}

	if n > 2 {
		first := candles[n-3]
		middle := candles[n-2]
		if ok, confidence := d.morningStar(first, middle, cur); ok {
			record(shared.MorningStar, confidence)
		}
		if ok, confidence := d.eveningStar(first, middle, cur); ok {
			record(shared.EveningStar, confidence)
		}
	}

	return matches
}

// hammer checks for a hammer, a long lower tail after a down candle.
func (d *Detector) hammer(cur shared.Candle, prev *shared.Candle) (bool, float64) {
	if cur.High-cur.Low == 0 {
		return false, 0
	}

	b := body(cur)
	if lowerWick(cur) < b*minWickBodyRatio {
		return false, 0
	}
	if upperWick(cur) > b*maxCounterWickRatio {
		return false, 0
	}
	if prev != nil && !bearish(*prev) {
		return false, 0
	}

	confidence := float64(singleCandleConfidence)
	if lowerWick(cur) >= b*strongWickBodyRatio {
		confidence += confidenceBonus
	}

	return true, confidence
}

// shootingStar checks for a shooting star, a long upper tail after an up
// candle.
func (d *Detector) shootingStar(cur shared.Candle, prev *shared.Candle) (bool, float64) {
	if cur.High-cur.Low == 0 {
		return false, 0
	}

	b := body(cur)
	if upperWick(cur) < b*minWickBodyRatio {
		return false, 0
	}
	if lowerWick(cur) > b*maxCounterWickRatio {
		return false, 0
	}
	if prev != nil && !bullish(*prev) {
		return false, 0
	}

	confidence := float64(singleCandleConfidence)
	if upperWick(cur) >= b*strongWickBodyRatio {
		confidence += confidenceBonus
	}

	return true, confidence
}

// doji checks for a doji, a candle whose body is a sliver of its range.
func (d *Detector) doji(cur shared.Candle) (bool, float64) {
	candleRange := cur.High - cur.Low
	if candleRange == 0 {
		return false, 0
	}

	if body(cur) > candleRange*(d.cfg.DojiBodyPercent/100) {
		return false, 0
	}

	return true, dojiConfidence
}

// bullishEngulfing checks for an up candle fully engulfing the prior down
// candle's body.
func (d *Detector) bullishEngulfing(prev, cur shared.Candle) (bool, float64) {
	if !bearish(prev) || !bullish(cur) {
		return false, 0
	}
	if cur.Open > prev.Close || cur.Close < prev.Open {
		return false, 0
	}
	if body(cur) < cur.Close*(d.cfg.MinBodyPercent/100) {
		return false, 0
	}

	confidence := float64(engulfingConfidence)
	if body(cur) >= body(prev)*strongEngulfRatio {
		confidence += confidenceBonus
	}

	return true, confidence
}

// bearishEngulfing checks for a down candle fully engulfing the prior up
// candle's body.
func (d *Detector) bearishEngulfing(prev, cur shared.Candle) (bool, float64) {
	if !bullish(prev) || !bearish(cur) {
		return false, 0
	}
	if cur.Open < prev.Close || cur.Close > prev.Open {
		return false, 0
	}
	if body(cur) < cur.Close*(d.cfg.MinBodyPercent/100) {
		return false, 0
	}

	confidence := float64(engulfingConfidence)
	if body(cur) >= body(prev)*strongEngulfRatio {
		confidence += confidenceBonus
	}

	return true, confidence
}

// morningStar checks for a long down candle, an indecision candle and a
// long up candle closing above the first candle's midpoint.
func (d *Detector) morningStar(first, middle, cur shared.Candle) (bool, float64) {
	if !bearish(first) || body(first) < (first.High-first.Low)*longBodyRatio {
		return false, 0
	}
	if body(middle) > body(first)*smallBodyRatio {
		return false, 0
	}
	if !bullish(cur) || body(cur) < (cur.High-cur.Low)*longBodyRatio {
		return false, 0
	}

	midpoint := (first.Open + first.Close) / 2
	if cur.Close < midpoint {
		return false, 0
	}

	confidence := float64(starConfidence)
	if body(cur) > body(first)*strongCandleRatio {
		confidence += confidenceBonus
	}

	return true, confidence
}

// eveningStar checks for a long up candle, an indecision candle and a long
// down candle closing below the first candle's midpoint.
func (d *Detector) eveningStar(first, middle, cur shared.Candle) (bool, float64) {
	if !bullish(first) || body(first) < (first.High-first.Low)*longBodyRatio {
		return false, 0
	}
	if body(middle) > body(first)*smallBodyRatio {
		return false, 0
	}
	if !bearish(cur) || body(cur) < (cur.High-cur.Low)*longBodyRatio {
		return false, 0
	}

	midpoint := (first.Open + first.Close) / 2
	if cur.Close > midpoint {
		return false, 0
	}

	confidence := float64(starConfidence)
	if body(cur) > body(first)*strongCandleRatio {
		confidence += confidenceBonus
	}

	return true, confidence
}
