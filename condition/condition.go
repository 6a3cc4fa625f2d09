// Package condition implements the signal evaluation contract of spec.md
// §4.5: a pure dispatch from a declarative condition (kind + parameter bag)
// to a matched/reason verdict. This replaces the "long if/elif ladder"
// pattern spec.md §9 calls out, with a tagged-union dispatch table —
// grounded on the teacher's decision/engine.go parseFullDecisionResponse /
// validateDecision dispatch-by-field-presence style, generalized into an
// explicit kind→evaluator map.
package condition

import (
	"fmt"
	"time"

	"github.com/bhargavap21/tradeforge/indicator"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/strategy"
)

// PositionState is the subset of an open broker position an evaluator
// needs — entry price/date to compute pnl_pct for exits (spec.md §4.5
// "Exit priority").
type PositionState struct {
	EntryPrice float64
	EntryDate  time.Time
	Quantity   float64
}

// SentimentLookup resolves a sentiment scalar for (symbol, source, date);
// nil means "no data" (spec.md §4.5 "sentiment ... only matches when data
// is present — missing data never synthesizes a signal").
type SentimentLookup func(symbol, source string, date time.Time) (*float64, error)

// NewsItem is a per-day news bundle (spec.md §4.5 "news").
type NewsItem struct {
	Headline string
	Label    string // "positive" | "negative" | "neutral"
}

// NewsLookup resolves the news bundle for (symbol, date); ok=false means no
// news was published that day.
type NewsLookup func(symbol string, date time.Time) (NewsItem, bool)

// Input bundles everything an evaluator needs. Evaluate is a pure function
// of Input — no evaluator call mutates Input or retains state across calls
// (spec.md §4.5 "a pure function of (condition_spec, current_bar,
// bar_history, indicators, current_date, symbol, broker_state)").
type Input struct {
	Condition strategy.Condition
	Bar       market.Bar
	History   []market.Bar // includes Bar as the last element, oldest first
	Indicator *indicator.Engine
	Date      time.Time
	Symbol    string
	Position  *PositionState // nil when no position is open

	Sentiment SentimentLookup
	News      NewsLookup
}

// Result is the evaluator's verdict.
type Result struct {
	Matched bool
	Reason  string
	// Warning is set when Kind was unrecognized — surfaced to the caller,
	// never silently treated as a match (spec.md §4.5 "unknown condition is
	// surfaced as a warning, never as a silent match").
	Warning string
}

type evaluatorFunc func(Input) Result

var evaluators = map[strategy.EntrySignal]evaluatorFunc{
	strategy.SignalRSI:       evalRSI,
	strategy.SignalMACD:      evalMACD,
	strategy.SignalSMA:       evalSMA,
	strategy.SignalSentiment: evalSentiment,
	strategy.SignalNews:      evalNews,
	strategy.SignalPrice:     evalPrice,
}

// Evaluate dispatches in.Condition.Kind to its evaluator. An unrecognized
// or custom kind is the deterministic conservative default: no match, but
// a warning so the caller can surface it (spec.md §4.5 "custom/unknown").
func Evaluate(in Input) Result {
	fn, ok := evaluators[in.Condition.Kind]
	if !ok {
		return Result{
			Matched: false,
			Warning: fmt.Sprintf("unknown or custom condition kind %q: no signal emitted", in.Condition.Kind),
		}
	}
	return fn(in)
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func paramInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
