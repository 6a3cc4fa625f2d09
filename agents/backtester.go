package agents

import (
	"context"
	"time"

	"github.com/bhargavap21/tradeforge/backtest"
	"github.com/bhargavap21/tradeforge/condition"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/strategy"
)

// Backtester is the thin agent wrapper around the backtest core (spec.md
// §4.7 step 3 "Call the backtest core"). It exists as its own agent only so
// the workflow engine can emit backtest_start/backtest_complete events
// around a uniform call shape, same as the other three agents.
type Backtester struct {
	Provider market.Provider
	Sentiment condition.SentimentLookup
	News      condition.NewsLookup
	// LookbackDays is how many calendar days of history to replay when the
	// workflow doesn't pin an explicit range (default 180).
	LookbackDays int
}

func (b *Backtester) Run(ctx context.Context, spec *strategy.Spec, initialCapital float64) (*backtest.Result, error) {
	lookback := b.LookbackDays
	if lookback <= 0 {
		lookback = 180
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookback)

	return backtest.Run(ctx, spec, b.Provider, backtest.Options{
		Start:           start,
		End:             end,
		InitialCapital:  initialCapital,
		SentimentLookup: b.Sentiment,
		NewsLookup:      b.News,
	})
}
