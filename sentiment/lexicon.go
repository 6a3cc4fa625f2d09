package sentiment

import (
	"math"
	"strings"
)

// positiveWords/negativeWords are a small hand-curated lexicon, standing in
// for a VADER-style compound scorer (spec.md §4.6 "a pluggable text-
// sentiment function (default: a classic lexicon/VADER-style compound
// score in [-1, 1])"). Intensity weights are deliberately coarse; this is
// a default, not a research-grade model — callers needing better accuracy
// supply their own TextSentimentFunc.
var (
	positiveWords = map[string]float64{
		"bullish": 2, "beat": 1.5, "beats": 1.5, "surge": 2, "surged": 2,
		"rally": 1.5, "record": 1, "upgrade": 1.5, "upgraded": 1.5,
		"strong": 1, "growth": 1, "profit": 1, "profits": 1, "gain": 1,
		"gains": 1, "outperform": 1.5, "buy": 1, "good": 1, "great": 1.5,
		"positive": 1, "soar": 2, "soared": 2, "win": 1, "wins": 1,
	}
	negativeWords = map[string]float64{
		"bearish": -2, "miss": -1.5, "missed": -1.5, "plunge": -2,
		"plunged": -2, "crash": -2.5, "downgrade": -1.5, "downgraded": -1.5,
		"weak": -1, "loss": -1, "losses": -1, "decline": -1, "declines": -1,
		"underperform": -1.5, "sell": -1, "bad": -1, "negative": -1,
		"sink": -1.5, "sank": -1.5, "lawsuit": -1.5, "fraud": -2.5,
		"investigation": -1.5, "recall": -1.5,
	}
	negators = map[string]bool{"not": true, "no": true, "never": true, "n't": true}
)

// LexiconSentiment is the default TextSentimentFunc: a bag-of-words
// compound score normalized into [-1, 1] via the same tanh-style
// normalization VADER uses to keep long texts from saturating the scale.
func LexiconSentiment(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	sum := 0.0
	negateNext := false
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if negators[w] {
			negateNext = true
			continue
		}
		score := 0.0
		if v, ok := positiveWords[w]; ok {
			score = v
		} else if v, ok := negativeWords[w]; ok {
			score = v
		} else {
			continue
		}
		if negateNext {
			score = -score
			negateNext = false
		}
		sum += score
	}
	if sum == 0 {
		return 0
	}
	// VADER-style normalization: x / sqrt(x^2 + alpha).
	const alpha = 15.0
	return sum / math.Sqrt(sum*sum+alpha)
}
