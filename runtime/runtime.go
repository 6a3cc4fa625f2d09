package runtime

import (
	"math"
	"sort"
	"time"

	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/indicator"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/strategy"
)

// OpenPosition is the minimal position shape GenerateSignals needs from
// whatever broker is driving it (spec.md §3 "Position").
type OpenPosition struct {
	Quantity      float64
	AvgEntryPrice float64
}

// Runtime is the stateful host of one validated strategy (spec.md §4.3).
// Initialize sets parameters from the spec; GenerateSignals is called once
// per date with the current bar per symbol and the caller's current
// positions, and is a pure function of those inputs plus the history/
// indicator state the runtime itself accumulates bar over bar.
type Runtime struct {
	spec       *strategy.Spec
	indicators *indicator.Engine
	history    map[string][]market.Bar

	// Two-phase exit bookkeeping (spec.md §4.5 "partial-exit strategy"),
	// keyed by symbol — exactly the state condition.Evaluate is kept
	// deliberately ignorant of.
	partialExited    map[string]bool
	peakSincePartial map[string]float64

	Sentiment condition.SentimentLookup
	News      condition.NewsLookup
}

func New(spec *strategy.Spec) *Runtime {
	return &Runtime{
		spec:             spec,
		indicators:       indicator.NewEngine(),
		history:          make(map[string][]market.Bar),
		partialExited:    make(map[string]bool),
		peakSincePartial: make(map[string]float64),
	}
}

// Initialize is a no-op placeholder for parameter setup called once before
// the first GenerateSignals call — the spec's Spec is already fully
// resolved by strategy.Normalize, so there is nothing left to derive here,
// but the method is kept to preserve the initialize()/generate_signals()
// two-call shape spec.md §4.3 requires of every strategy object.
func (r *Runtime) Initialize() {}

// Indicators exposes the runtime's indicator engine so a caller (the
// backtest core's additional_info builder) can read the same values the
// runtime acted on.
func (r *Runtime) Indicators() *indicator.Engine { return r.indicators }

// History returns the accumulated bar history for symbol.
func (r *Runtime) History(symbol string) []market.Bar { return r.history[symbol] }

// HasPartialExited reports whether symbol's two-phase exit has already
// fired its partial sell.
func (r *Runtime) HasPartialExited(symbol string) bool { return r.partialExited[symbol] }

// GenerateSignals feeds the current bars into history/indicators, then
// evaluates exit conditions for symbols with an open position and entry
// conditions for symbols without one (spec.md §4.3, §4.5).
func (r *Runtime) GenerateSignals(date time.Time, bars map[string]market.Bar, positions map[string]*OpenPosition) []Signal {
	// Symbols are processed in sorted order, never map order: signals fill
	// against one shared cash balance, so application order must be
	// identical across runs for backtests to be deterministic.
	symbols := make([]string, 0, len(bars))
	for symbol := range bars {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var out []Signal
	for _, symbol := range symbols {
		bar := bars[symbol]
		r.indicators.OnBar(symbol, bar)
		r.history[symbol] = append(r.history[symbol], bar)

		pos := positions[symbol]
		if pos != nil && pos.Quantity > 0 {
			if sig, ok := r.evaluateExit(symbol, date, bar, pos); ok {
				out = append(out, sig)
				continue
			}
		} else {
			// A fully closed position releases its two-phase exit state so a
			// later re-entry starts the partial/trailing ladder fresh.
			delete(r.partialExited, symbol)
			delete(r.peakSincePartial, symbol)
			if sig, ok := r.evaluateEntry(symbol, date, bar); ok {
				out = append(out, sig)
				continue
			}
		}
	}
	return out
}

func (r *Runtime) conditionInput(symbol string, bar market.Bar, date time.Time, c strategy.Condition) condition.Input {
	return condition.Input{
		Condition: c,
		Bar:       bar,
		History:   r.history[symbol],
		Indicator: r.indicators,
		Date:      date,
		Symbol:    symbol,
		Sentiment: r.Sentiment,
		News:      r.News,
	}
}

func (r *Runtime) entryConditions() []strategy.Condition {
	if len(r.spec.EntryConditions) > 0 {
		return r.spec.EntryConditions
	}
	return []strategy.Condition{{Kind: r.spec.EntrySignal, Parameters: r.spec.EntryParameters}}
}

func (r *Runtime) evaluateEntry(symbol string, date time.Time, bar market.Bar) (Signal, bool) {
	for _, c := range r.entryConditions() {
		res := condition.Evaluate(r.conditionInput(symbol, bar, date, c))
		if res.Matched {
			return Signal{Symbol: symbol, Action: ActionBuy, Reason: res.Reason}, true
		}
	}
	return Signal{}, false
}

// evaluateExit implements spec.md §4.5's exit priority: custom exit
// conditions first, then stop-loss, then take-profit — at most one exit
// per bar. A partial-exit strategy sells exactly
// round(entry_shares * take_profit_pct_shares) once; subsequent
// take-profit matches do not re-trigger on the remainder, and a configured
// trailing stop governs it instead — the "no cascading partial exit"
// property of spec.md §8.
func (r *Runtime) evaluateExit(symbol string, date time.Time, bar market.Bar, pos *OpenPosition) (Signal, bool) {
	for _, c := range r.spec.ExitConditions {
		in := r.conditionInput(symbol, bar, date, c)
		in.Position = &condition.PositionState{EntryPrice: pos.AvgEntryPrice, Quantity: pos.Quantity}
		res := condition.Evaluate(in)
		if res.Matched {
			exitType := "custom_exit"
			if c.Kind != strategy.SignalCustom {
				exitType = string(c.Kind) + "_exit"
			}
			return r.sellAll(symbol, pos, exitType, res.Reason), true
		}
	}

	pnlPct := 0.0
	if pos.AvgEntryPrice > 0 {
		pnlPct = (bar.Close - pos.AvgEntryPrice) / pos.AvgEntryPrice
	}

	if r.partialExited[symbol] {
		// Remainder is governed solely by the trailing stop, never by a
		// repeat take-profit match (no cascading partial exit).
		if r.spec.Exit.HasTrailingStop {
			peak := r.peakSincePartial[symbol]
			if bar.Close > peak {
				peak = bar.Close
				r.peakSincePartial[symbol] = peak
			}
			stopLoss := valueOr(r.spec.Exit.StopLoss, 0)
			if stopLoss > 0 && peak > 0 && bar.Close <= peak*(1-stopLoss) {
				return r.sellAll(symbol, pos, "trailing_stop", "trailing stop triggered on remainder"), true
			}
		}
		return Signal{}, false
	}

	if stopLoss := r.spec.Exit.StopLoss; stopLoss != nil && *stopLoss > 0 && pnlPct <= -*stopLoss {
		return r.sellAll(symbol, pos, "stop_loss", "stop-loss threshold breached"), true
	}

	if takeProfit := r.spec.Exit.TakeProfit; takeProfit != nil && *takeProfit > 0 && pnlPct >= *takeProfit {
		if r.spec.Exit.TakeProfitPctShares < 1 {
			qty := math.Round(pos.Quantity * r.spec.Exit.TakeProfitPctShares)
			if qty <= 0 {
				qty = pos.Quantity
			}
			r.partialExited[symbol] = true
			r.peakSincePartial[symbol] = bar.Close
			return Signal{Symbol: symbol, Action: ActionSell, Quantity: &qty, Reason: "partial take-profit", ExitType: "partial_exit"}, true
		}
		return r.sellAll(symbol, pos, "take_profit", "take-profit threshold reached"), true
	}

	return Signal{}, false
}

func (r *Runtime) sellAll(symbol string, pos *OpenPosition, exitType, reason string) Signal {
	qty := pos.Quantity
	return Signal{Symbol: symbol, Action: ActionSell, Quantity: &qty, Reason: reason, ExitType: exitType}
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
