package condition

import "github.com/bhargavap21/tradeforge/market"

// smaAt computes the simple moving average of bars[:idx+1]'s last `period`
// closes, or ok=false if fewer than period bars are available up to idx.
// Used for crossover detection, where the evaluator needs both the current
// and the prior bar's SMA — values the incremental indicator.Engine does
// not retain history of — computed here directly and purely from History.
func smaAt(bars []market.Bar, idx, period int) (float64, bool) {
	if idx+1 < period {
		return 0, false
	}
	sum := 0.0
	for i := idx - period + 1; i <= idx; i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), true
}

// emaSeries computes the exponential moving average of bars' closes over
// the given span, seeded with a simple average of the first `span` closes
// (standard EMA seeding), returning one value per bar once the seed window
// is available and a parallel "ready" slice.
func emaSeries(bars []market.Bar, span int) ([]float64, []bool) {
	n := len(bars)
	values := make([]float64, n)
	ready := make([]bool, n)
	if n < span {
		return values, ready
	}
	seed := 0.0
	for i := 0; i < span; i++ {
		seed += bars[i].Close
	}
	seed /= float64(span)
	values[span-1] = seed
	ready[span-1] = true
	k := 2.0 / (float64(span) + 1)
	prev := seed
	for i := span; i < n; i++ {
		v := bars[i].Close*k + prev*(1-k)
		values[i] = v
		ready[i] = true
		prev = v
	}
	return values, ready
}

// macdSeries computes MACD line, signal line, and histogram for every bar,
// using fixed 12/26/9 periods (spec.md §4.2, §4.5), purely from History —
// needed so the MACD evaluator can compare the current bar's relation
// against the prior bar's to detect a crossover.
func macdSeries(bars []market.Bar) (macd, signal []float64, ready []bool) {
	n := len(bars)
	fast, fastReady := emaSeries(bars, 12)
	slow, slowReady := emaSeries(bars, 26)
	macd = make([]float64, n)
	for i := 0; i < n; i++ {
		if fastReady[i] && slowReady[i] {
			macd[i] = fast[i] - slow[i]
		}
	}

	signal = make([]float64, n)
	ready = make([]bool, n)
	firstMACD := -1
	for i := 0; i < n; i++ {
		if fastReady[i] && slowReady[i] {
			firstMACD = i
			break
		}
	}
	if firstMACD < 0 {
		return macd, signal, ready
	}

	span := 9
	count := 0
	sum := 0.0
	k := 2.0 / (float64(span) + 1)
	var prev float64
	havePrev := false
	for i := firstMACD; i < n; i++ {
		if !havePrev {
			sum += macd[i]
			count++
			if count == span {
				prev = sum / float64(span)
				havePrev = true
				signal[i] = prev
				ready[i] = true
			}
			continue
		}
		prev = macd[i]*k + prev*(1-k)
		signal[i] = prev
		ready[i] = true
	}
	return macd, signal, ready
}

// twentyBarHigh returns the highest high over the trailing 20 bars ending
// at idx (exclusive of the current bar, per spec.md §4.5 "breakout matches
// when close > 20-bar high").
func twentyBarHigh(bars []market.Bar, idx int) (float64, bool) {
	const period = 20
	if idx < period {
		return 0, false
	}
	high := bars[idx-period].High
	for i := idx - period + 1; i < idx; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
	}
	return high, true
}
