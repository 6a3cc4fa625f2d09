package condition

import "fmt"

// evalPrice implements spec.md §4.5's `price` condition: `trigger=any`
// always matches; `breakout` matches when the close exceeds the trailing
// 20-bar high.
func evalPrice(in Input) Result {
	trigger := paramString(in.Condition.Parameters, "trigger", "any")

	switch trigger {
	case "breakout":
		idx := len(in.History) - 1
		high, ok := twentyBarHigh(in.History, idx)
		if !ok {
			return Result{Matched: false, Reason: "insufficient history for 20-bar breakout"}
		}
		if in.Bar.Close > high {
			return Result{Matched: true, Reason: fmt.Sprintf("close %.2f broke out above 20-bar high %.2f", in.Bar.Close, high)}
		}
		return Result{Matched: false, Reason: fmt.Sprintf("close %.2f did not break out above 20-bar high %.2f", in.Bar.Close, high)}
	default: // "any"
		return Result{Matched: true, Reason: "price trigger=any always matches"}
	}
}
