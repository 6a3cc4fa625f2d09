package agents

import (
	"math"
	"sort"

	"github.com/bhargavap21/tradeforge/backtest"
)

// Stats summarizes one indicator series observed across a backtest's
// additional_info rows.
type Stats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
}

// Recommend turns a backtest Result's additional_info into the data_insights
// bundle the next generator call receives (spec.md §4.7 step 5: "too few
// trades: loosen thresholds toward the observed distribution rather than
// guessing blind"). It is deterministic and LLM-free — a statistics pass,
// not another agent call.
func Recommend(result *backtest.Result) map[string]any {
	series := make(map[string][]float64)
	for _, row := range result.AdditionalInfo {
		for name, v := range row.Indicators {
			series[name] = append(series[name], v)
		}
	}

	stats := make(map[string]Stats, len(series))
	for name, values := range series {
		stats[name] = computeStats(values)
	}

	out := map[string]any{
		"indicator_stats": stats,
		"total_trades":    result.Summary.TotalTrades,
	}
	if result.Summary.TotalTrades < 10 {
		out["note"] = "fewer than 10 trades were generated; consider loosening entry thresholds toward the observed indicator distribution"
	}
	return out
}

func computeStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	return Stats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  mean,
		P25:   percentile(sorted, 0.25),
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
	}
}

// percentile expects sorted ascending input and uses linear interpolation
// between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
