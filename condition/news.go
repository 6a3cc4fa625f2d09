package condition

import "fmt"

// evalNews implements spec.md §4.5's `news` condition: a per-day news
// bundle produces a signal only when its label is positive/negative;
// missing news never synthesizes a signal.
func evalNews(in Input) Result {
	if in.News == nil {
		return Result{Matched: false, Reason: "no news resolver configured"}
	}
	want := paramString(in.Condition.Parameters, "label", "positive")

	item, ok := in.News(in.Symbol, in.Date)
	if !ok || item.Label == "" || item.Label == "neutral" {
		return Result{Matched: false, Reason: "no actionable news for this date"}
	}
	if item.Label == want {
		return Result{Matched: true, Reason: fmt.Sprintf("news label %q matched: %q", item.Label, item.Headline)}
	}
	return Result{Matched: false, Reason: fmt.Sprintf("news label %q did not match expected %q", item.Label, want)}
}
