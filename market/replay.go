package market

import (
	"context"
	"sort"
	"time"
)

// ReplayProvider serves a fixed, in-memory bar set — used by the backtest
// core's deterministic replay and by tests that need reproducible data
// without a network call.
type ReplayProvider struct {
	bars map[string][]Bar
}

func NewReplayProvider() *ReplayProvider {
	return &ReplayProvider{bars: make(map[string][]Bar)}
}

// Seed installs a symbol's bar stream. Bars are sorted by timestamp on
// insert so GetBars can assume nondecreasing order (spec.md §5 ordering
// guarantee).
func (p *ReplayProvider) Seed(symbol string, bars []Bar) {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	p.bars[Normalize(symbol)] = sorted
}

func (p *ReplayProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	all, ok := p.bars[Normalize(symbol)]
	if !ok {
		return nil, &ErrNoData{Symbol: symbol}
	}
	out := make([]Bar, 0, len(all))
	for _, b := range all {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, &ErrNoData{Symbol: symbol}
	}
	return out, nil
}

func (p *ReplayProvider) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	all, ok := p.bars[Normalize(symbol)]
	if !ok || len(all) == 0 {
		return 0, &ErrNoData{Symbol: symbol}
	}
	return all[len(all)-1].Close, nil
}
