package workflow

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bhargavap21/tradeforge/strategy"
)

var paramPatterns = []struct {
	key string
	re  *regexp.Regexp
}{
	// "RSI below 28", "RSI under 30", "RSI of 25"
	{"rsi_threshold", regexp.MustCompile(`(?i)rsi\s*(?:below|under|above|over|of|at)?\s*(\d+(?:\.\d+)?)`)},
	{"take_profit", regexp.MustCompile(`(?i)take[\s-]?profit\s*(?:of|at)?\s*(\d+(?:\.\d+)?)\s*%?`)},
	{"stop_loss", regexp.MustCompile(`(?i)stop[\s-]?loss\s*(?:of|at)?\s*(\d+(?:\.\d+)?)\s*%?`)},
}

// extractProtectedParams scans the user's literal query for explicitly
// stated thresholds so they can never be silently overwritten by a later
// refinement (spec.md §4.7: "RSI thresholds, take-profit %, stop-loss %").
func extractProtectedParams(userQuery string) map[string]any {
	out := make(map[string]any)
	for _, p := range paramPatterns {
		m := p.re.FindStringSubmatch(userQuery)
		if len(m) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if p.key == "take_profit" || p.key == "stop_loss" {
			// Mirror strategy.Normalize's percentage rule so a literal "10%"
			// compares equal to the normalized fraction 0.10 the generator's
			// spec will carry.
			if math.Abs(v) > 1 {
				v = v / 100
			}
		}
		out[p.key] = v
	}
	return out
}

// applyProtection restores any protected value a generator's new spec tried
// to change and returns a recommendation string per downgraded field
// (spec.md §4.7: "downgraded to a recommendation text and the parameter
// value is left unchanged").
func applyProtection(spec *strategy.Spec, protected map[string]any) []string {
	var downgraded []string
	if len(protected) == 0 {
		return downgraded
	}

	if want, ok := protected["rsi_threshold"].(float64); ok && spec.EntryParameters != nil {
		if cur, ok := spec.EntryParameters["threshold"]; ok && !floatsEqual(cur, want) {
			spec.EntryParameters["threshold"] = want
			downgraded = append(downgraded, "rsi threshold is user-protected at "+formatFloat(want))
		}
	}
	if want, ok := protected["take_profit"].(float64); ok && spec.Exit.TakeProfit != nil {
		if !floatsEqual(*spec.Exit.TakeProfit, want) {
			v := want
			spec.Exit.TakeProfit = &v
			downgraded = append(downgraded, "take_profit is user-protected at "+formatFloat(want))
		}
	}
	if want, ok := protected["stop_loss"].(float64); ok && spec.Exit.StopLoss != nil {
		if !floatsEqual(*spec.Exit.StopLoss, want) {
			v := want
			spec.Exit.StopLoss = &v
			downgraded = append(downgraded, "stop_loss is user-protected at "+formatFloat(want))
		}
	}
	return downgraded
}

func floatsEqual(a any, b float64) bool {
	var av float64
	switch v := a.(type) {
	case float64:
		av = v
	case int:
		av = float64(v)
	default:
		return false
	}
	const eps = 1e-9
	diff := av - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
