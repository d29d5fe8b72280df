package indicator

import (
	"math"
)

const (
	// NeutralADX is the trend strength reported for series too short to
	// smooth a directional index from.
	NeutralADX = 20
)

// Cross represents a crossover between an indicator line and its reference.
type Cross int

const (
	NoCross Cross = iota
	BullishCross
	BearishCross
)

// String stringifies the provided cross.
func (c Cross) String() string {
	switch c {
	case BullishCross:
		return "bullish cross"
	case BearishCross:
		return "bearish cross"
	default:
		return "no cross"
	}
}

// SMA returns the simple moving average of the trailing period values. The
// second return is false when the series is too short.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}

	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}

	return sum / float64(period), true
}

// emaSeries returns the exponential moving average series of the provided
// values, seeded with the simple average of the first period values. The
// first entry corresponds to index period-1 of the input.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)

	series := make([]float64, 0, len(values)-period+1)
	series = append(series, seed)

	multiplier := 2 / (float64(period) + 1)
	ema := seed
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
		series = append(series, ema)
	}

	return series
}

// EMA returns the exponential moving average of the provided values. The
// second return is false when the series is too short.
func EMA(values []float64, period int) (float64, bool) {
	series := emaSeries(values, period)
	if len(series) == 0 {
		return 0, false
	}

	return series[len(series)-1], true
}

// RSI returns the Wilder smoothed relative strength index of the provided
// values. The second return is false when the series is shorter than
// period+1 samples.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		switch {
		case change > 0:
			avgGain += change
		case change < 0:
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		var gain, loss float64
		switch {
		case change > 0:
			gain = change
		case change < 0:
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACDResult represents a moving average convergence divergence reading.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// macdSeries returns the macd line series of the provided values, aligned
// to the slow moving average tail.
func macdSeries(values []float64, fast, slow int) []float64 {
	fastSeries := emaSeries(values, fast)
	slowSeries := emaSeries(values, slow)
	if len(fastSeries) == 0 || len(slowSeries) == 0 || fast >= slow {
		return nil
	}

	offset := len(fastSeries) - len(slowSeries)
	series := make([]float64, len(slowSeries))
	for idx := range slowSeries {
		series[idx] = fastSeries[idx+offset] - slowSeries[idx]
	}

	return series
}

// MACD returns the moving average convergence divergence of the provided
// values. The signal line is the exponential moving average of the macd
// line series. The second return is false when the series is too short to
// smooth a signal line from.
func MACD(values []float64, fast, slow, signal int) (MACDResult, bool) {
	series := macdSeries(values, fast, slow)
	signalSeries := emaSeries(series, signal)
	if len(signalSeries) == 0 {
		return MACDResult{}, false
	}

	line := series[len(series)-1]
	sig := signalSeries[len(signalSeries)-1]

	return MACDResult{Line: line, Signal: sig, Histogram: line - sig}, true
}

// crossover classifies the transition between consecutive line and
// reference readings.
func crossover(prevLine, prevRef, curLine, curRef float64) Cross {
	switch {
	case prevLine < prevRef && curLine > curRef:
		return BullishCross
	case prevLine > prevRef && curLine < curRef:
		return BearishCross
	default:
		return NoCross
	}
}

// MACDCrossover reports whether the macd line crossed its signal line on
// the most recent sample. The second return is false when the series is too
// short to compare consecutive readings.
func MACDCrossover(values []float64, fast, slow, signal int) (Cross, bool) {
	series := macdSeries(values, fast, slow)
	signalSeries := emaSeries(series, signal)
	if len(signalSeries) < 2 {
		return NoCross, false
	}

	curLine := series[len(series)-1]
	prevLine := series[len(series)-2]
	curSig := signalSeries[len(signalSeries)-1]
	prevSig := signalSeries[len(signalSeries)-2]

	return crossover(prevLine, prevSig, curLine, curSig), true
}

// SMACrossover reports whether the fast simple moving average crossed the
// slow one on the most recent sample.
func SMACrossover(values []float64, fast, slow int) (Cross, bool) {
	if fast >= slow || len(values) < slow+1 {
		return NoCross, false
	}

	curFast, _ := SMA(values, fast)
	curSlow, _ := SMA(values, slow)

	prev := values[:len(values)-1]
	prevFast, _ := SMA(prev, fast)
	prevSlow, _ := SMA(prev, slow)

	return crossover(prevFast, prevSlow, curFast, curSlow), true
}

// DirectionalIndex represents a Wilder smoothed directional movement
// reading.
type DirectionalIndex struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// trueRange returns the true range of a bar given the prior close.
func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if hc := math.Abs(high - prevClose); hc > tr {
		tr = hc
	}
	if lc := math.Abs(low - prevClose); lc > tr {
		tr = lc
	}

	return tr
}

// ADX returns the Wilder smoothed average directional index of the provided
// series. Series shorter than twice the period return a neutral reading of
// ADX 20 with zeroed directional lines.
func ADX(highs, lows, closes []float64, period int) DirectionalIndex {
	neutral := DirectionalIndex{ADX: NeutralADX}

	n := len(closes)
	if period <= 0 || len(highs) != n || len(lows) != n || n < 2*period {
		return neutral
	}

	trs := make([]float64, n-1)
	plusDMs := make([]float64, n-1)
	minusDMs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		highDiff := highs[i] - highs[i-1]
		lowDiff := lows[i-1] - lows[i]
		if highDiff > lowDiff && highDiff > 0 {
			plusDMs[i-1] = highDiff
		}
		if lowDiff > highDiff && lowDiff > 0 {
			minusDMs[i-1] = lowDiff
		}
		trs[i-1] = trueRange(highs[i], lows[i], closes[i-1])
	}

	var smoothTR, smoothPlus, smoothMinus float64
	for i := 0; i < period; i++ {
		smoothTR += trs[i]
		smoothPlus += plusDMs[i]
		smoothMinus += minusDMs[i]
	}

	var plusDI, minusDI float64
	dxs := make([]float64, 0, n-period)
	recordDX := func() {
		plusDI, minusDI = 0, 0
		if smoothTR != 0 {
			plusDI = 100 * smoothPlus / smoothTR
			minusDI = 100 * smoothMinus / smoothTR
		}

		var dx float64
		if diSum := plusDI + minusDI; diSum != 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / diSum
		}
		dxs = append(dxs, dx)
	}

	recordDX()
	for i := period; i < n-1; i++ {
		smoothTR = smoothTR - smoothTR/float64(period) + trs[i]
		smoothPlus = smoothPlus - smoothPlus/float64(period) + plusDMs[i]
		smoothMinus = smoothMinus - smoothMinus/float64(period) + minusDMs[i]
		recordDX()
	}

	var adx float64
	for _, dx := range dxs[:period] {
		adx += dx
	}
	adx /= float64(period)
	for _, dx := range dxs[period:] {
		adx = (adx*float64(period-1) + dx) / float64(period)
	}

	return DirectionalIndex{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
}

// Bands represents a Bollinger band reading.
type Bands struct {
	Upper     float64
	Middle    float64
	Lower     float64
	Bandwidth float64
}

// BollingerBands returns the Bollinger bands of the provided values, with
// the middle band being the simple moving average and the outer bands
// offset by multiplier population standard deviations. Bandwidth is the
// band spread as a percentage of the middle band.
func BollingerBands(values []float64, period int, multiplier float64) (Bands, bool) {
	middle, ok := SMA(values, period)
	if !ok {
		return Bands{}, false
	}

	var variance float64
	for _, v := range values[len(values)-period:] {
		diff := v - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	bands := Bands{
		Upper:  middle + multiplier*stdDev,
		Middle: middle,
		Lower:  middle - multiplier*stdDev,
	}
	if middle != 0 {
		bands.Bandwidth = (bands.Upper - bands.Lower) / middle * 100
	}

	return bands, true
}

// ATR returns the Wilder smoothed average true range of the provided
// series. The second return is false when the series is shorter than
// period+1 samples.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || len(highs) != n || len(lows) != n || n < period+1 {
		return 0, false
	}

	trs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		trs[i-1] = trueRange(highs[i], lows[i], closes[i-1])
	}

	var atr float64
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}

	return atr, true
}

// AverageVolume returns the average of the trailing period volumes, using
// the full series when it is shorter than the period.
func AverageVolume(volumes []float64, period int) float64 {
	if len(volumes) == 0 || period <= 0 {
		return 0
	}
	if len(volumes) < period {
		period = len(volumes)
	}

	var sum float64
	for _, v := range volumes[len(volumes)-period:] {
		sum += v
	}

	return sum / float64(period)
}
