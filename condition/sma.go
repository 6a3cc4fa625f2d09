package condition

import "fmt"

// evalSMA implements spec.md §4.5's `sma` condition: matched when the fast
// SMA crosses above the slow SMA (period pair configurable).
func evalSMA(in Input) Result {
	fastPeriod := paramInt(in.Condition.Parameters, "fast_period", 10)
	slowPeriod := paramInt(in.Condition.Parameters, "slow_period", 30)

	idx := len(in.History) - 1
	if idx < 1 {
		return Result{Matched: false, Reason: "insufficient history for sma crossover"}
	}

	currFast, ok1 := smaAt(in.History, idx, fastPeriod)
	currSlow, ok2 := smaAt(in.History, idx, slowPeriod)
	prevFast, ok3 := smaAt(in.History, idx-1, fastPeriod)
	prevSlow, ok4 := smaAt(in.History, idx-1, slowPeriod)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Result{Matched: false, Reason: "sma not yet available"}
	}

	if prevFast <= prevSlow && currFast > currSlow {
		return Result{Matched: true, Reason: fmt.Sprintf("sma(%d) crossed above sma(%d): %.2f > %.2f", fastPeriod, slowPeriod, currFast, currSlow)}
	}
	return Result{Matched: false, Reason: "no sma crossover"}
}
