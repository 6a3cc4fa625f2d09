package condition

import "fmt"

// evalMACD implements spec.md §4.5's `macd` condition: matched on a
// bullish or bearish crossover of the MACD line against the signal line,
// per the `crossover` parameter.
func evalMACD(in Input) Result {
	crossover := paramString(in.Condition.Parameters, "crossover", "bullish")

	idx := len(in.History) - 1
	if idx < 1 {
		return Result{Matched: false, Reason: "insufficient history for macd crossover"}
	}
	macd, signal, ready := macdSeries(in.History)
	if !ready[idx] || !ready[idx-1] {
		return Result{Matched: false, Reason: "macd not yet available"}
	}

	prevDiff := macd[idx-1] - signal[idx-1]
	currDiff := macd[idx] - signal[idx]

	switch crossover {
	case "bearish":
		if prevDiff >= 0 && currDiff < 0 {
			return Result{Matched: true, Reason: fmt.Sprintf("macd bearish crossover: %.4f -> %.4f", prevDiff, currDiff)}
		}
	default: // "bullish"
		if prevDiff <= 0 && currDiff > 0 {
			return Result{Matched: true, Reason: fmt.Sprintf("macd bullish crossover: %.4f -> %.4f", prevDiff, currDiff)}
		}
	}
	return Result{Matched: false, Reason: "no macd crossover"}
}
