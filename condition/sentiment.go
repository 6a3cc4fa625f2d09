package condition

import "fmt"

// evalSentiment implements spec.md §4.5's `sentiment` condition: the
// resolved sentiment scalar is compared against threshold; missing data
// never synthesizes a signal (spec.md §8 "source strictness" and the
// dataset cache contract in §4.6 govern what "resolved" means upstream —
// this evaluator only ever sees the already-resolved value or nil).
func evalSentiment(in Input) Result {
	if in.Sentiment == nil {
		return Result{Matched: false, Reason: "no sentiment resolver configured"}
	}
	source := paramString(in.Condition.Parameters, "source", "news")
	threshold := paramFloat(in.Condition.Parameters, "threshold", 0.2)
	comparison := paramString(in.Condition.Parameters, "comparison", "above")

	score, err := in.Sentiment(in.Symbol, source, in.Date)
	if err != nil || score == nil {
		return Result{Matched: false, Reason: fmt.Sprintf("no %s sentiment for %s on %s", source, in.Symbol, in.Date.Format("2006-01-02"))}
	}

	switch comparison {
	case "below":
		if *score < threshold {
			return Result{Matched: true, Reason: fmt.Sprintf("%s sentiment %.2f below threshold %.2f", source, *score, threshold)}
		}
	default: // "above"
		if *score > threshold {
			return Result{Matched: true, Reason: fmt.Sprintf("%s sentiment %.2f above threshold %.2f", source, *score, threshold)}
		}
	}
	return Result{Matched: false, Reason: fmt.Sprintf("%s sentiment %.2f did not satisfy %s %.2f", source, *score, comparison, threshold)}
}
