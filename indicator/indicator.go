// Package indicator keeps, per symbol, every OHLCV bar it has been fed,
// updates EMA and MACD incrementally on each new bar, and computes RSI and
// SMA from the stored bars when asked (spec.md §4.2). Dispatch-by-kind and "unavailable, not a sentinel" idiom
// are grounded on the teacher's decision/localfunc.go algo dispatch and its
// insistence on explicit pass/fail reporting rather than silent defaults.
package indicator

import (
	"sync"

	"github.com/bhargavap21/tradeforge/market"
)

// Value wraps a computed indicator so "insufficient data" is an explicit
// state, never a sentinel number a caller might mistake for a real reading
// (spec.md §4.2).
type Value struct {
	Ready bool
	V     float64
}

func unavailable() Value { return Value{Ready: false} }
func ready(v float64) Value { return Value{Ready: true, V: v} }

// Engine maintains rolling per-symbol state. Safe for concurrent use across
// symbols (each symbol's mutation is owned by the single goroutine feeding
// it bars — the backtest core and the live tick chain both guarantee this
// — but the map itself is guarded for callers that inspect it from a
// reporting goroutine).
type Engine struct {
	mu      sync.RWMutex
	windows map[string]*window
}

func NewEngine() *Engine {
	return &Engine{windows: make(map[string]*window)}
}

type window struct {
	bars []market.Bar

	rsiPeriod int
	smaPeriod int
	emaSpan   int

	emaValue    Value
	macdFast    *ema
	macdSlow    *ema
	macdSignal  *ema
	lastMACD    Value
	lastSignal  Value
	lastHist    Value
}

// OnBar feeds a new bar for symbol into its rolling window, incrementally
// updating every configured indicator. Bars for a symbol must arrive in
// nondecreasing timestamp order (spec.md §5).
func (e *Engine) OnBar(symbol string, bar market.Bar) {
	e.mu.Lock()
	w, ok := e.windows[symbol]
	if !ok {
		w = &window{rsiPeriod: 14, smaPeriod: 20, emaSpan: 20}
		w.macdFast = newEMA(12)
		w.macdSlow = newEMA(26)
		w.macdSignal = newEMA(9)
		e.windows[symbol] = w
	}
	e.mu.Unlock()

	w.bars = append(w.bars, bar)

	if w.emaValue.Ready {
		w.emaValue = ready(emaNext(w.emaValue.V, bar.Close, w.emaSpan))
	} else if len(w.bars) >= w.emaSpan {
		w.emaValue = ready(smaOf(w.bars, w.emaSpan))
	}

	fast := w.macdFast.next(bar.Close)
	slow := w.macdSlow.next(bar.Close)
	if fast.Ready && slow.Ready {
		macd := fast.V - slow.V
		w.lastMACD = ready(macd)
		sig := w.macdSignal.next(macd)
		w.lastSignal = sig
		if sig.Ready {
			w.lastHist = ready(macd - sig.V)
		}
	}
}

// RSI returns the Relative Strength Index over `period` bars (default 14
// when period <= 0), reporting Ready=false — value 50 — until period+1 bars
// have been observed (spec.md §4.2: "initial value 50 if fewer than
// period+1 bars").
func (e *Engine) RSI(symbol string, period int) Value {
	w := e.get(symbol)
	if w == nil {
		return unavailable()
	}
	if period <= 0 {
		period = w.rsiPeriod
	}
	if len(w.bars) < period+1 {
		return Value{Ready: false, V: 50}
	}

	var gainSum, lossSum float64
	start := len(w.bars) - period
	for i := start; i < len(w.bars); i++ {
		delta := w.bars[i].Close - w.bars[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	if avgLoss == 0 {
		return ready(100)
	}
	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	return ready(rsi)
}

// SMA returns the simple moving average over `period` bars.
func (e *Engine) SMA(symbol string, period int) Value {
	w := e.get(symbol)
	if w == nil || period <= 0 || len(w.bars) < period {
		return unavailable()
	}
	return ready(smaOf(w.bars, period))
}

// EMA returns the exponential moving average over the configured span.
func (e *Engine) EMA(symbol string) Value {
	w := e.get(symbol)
	if w == nil {
		return unavailable()
	}
	return w.emaValue
}

// MACD returns (macd, signal, histogram) using fixed 12/26/9 periods
// (spec.md §4.2).
func (e *Engine) MACD(symbol string) (macd, signal, histogram Value) {
	w := e.get(symbol)
	if w == nil {
		return unavailable(), unavailable(), unavailable()
	}
	return w.lastMACD, w.lastSignal, w.lastHist
}

// History returns the bars observed so far for symbol, oldest first.
func (e *Engine) History(symbol string) []market.Bar {
	w := e.get(symbol)
	if w == nil {
		return nil
	}
	out := make([]market.Bar, len(w.bars))
	copy(out, w.bars)
	return out
}

func (e *Engine) get(symbol string) *window {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.windows[symbol]
}

func smaOf(bars []market.Bar, period int) float64 {
	sum := 0.0
	start := len(bars) - period
	for i := start; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

func emaNext(prev, price float64, span int) float64 {
	k := 2.0 / (float64(span) + 1)
	return price*k + prev*(1-k)
}

// ema is a standalone incremental exponential moving average accumulator,
// used internally by MACD's fast/slow/signal lines.
type ema struct {
	span  int
	value Value
	seed  []float64
}

func newEMA(span int) *ema { return &ema{span: span} }

func (m *ema) next(price float64) Value {
	if m.value.Ready {
		m.value = ready(emaNext(m.value.V, price, m.span))
		return m.value
	}
	m.seed = append(m.seed, price)
	if len(m.seed) < m.span {
		return unavailable()
	}
	sum := 0.0
	for _, v := range m.seed {
		sum += v
	}
	m.value = ready(sum / float64(len(m.seed)))
	return m.value
}
