package condition

import "fmt"

// evalRSI implements spec.md §4.5's `rsi` condition: threshold +
// comparison ∈ {below, above}; matched when the indicator is available and
// the relation holds.
func evalRSI(in Input) Result {
	period := paramInt(in.Condition.Parameters, "period", 14)
	threshold := paramFloat(in.Condition.Parameters, "threshold", 30)
	comparison := paramString(in.Condition.Parameters, "comparison", "below")

	v := in.Indicator.RSI(in.Symbol, period)
	if !v.Ready {
		return Result{Matched: false, Reason: "rsi not yet available"}
	}

	switch comparison {
	case "above":
		if v.V > threshold {
			return Result{Matched: true, Reason: fmt.Sprintf("rsi %.2f above threshold %.2f", v.V, threshold)}
		}
	default: // "below"
		if v.V < threshold {
			return Result{Matched: true, Reason: fmt.Sprintf("rsi %.2f below threshold %.2f", v.V, threshold)}
		}
	}
	return Result{Matched: false, Reason: fmt.Sprintf("rsi %.2f did not satisfy %s %.2f", v.V, comparison, threshold)}
}
