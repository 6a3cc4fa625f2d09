package backtest

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/sentiment"
	"github.com/bhargavap21/tradeforge/strategy"
)

func mustNormalize(t *testing.T, raw map[string]any) *strategy.Spec {
	t.Helper()
	spec, verr := strategy.Normalize(raw)
	require.Nil(t, verr)
	return spec
}

func barsFromCloses(symbol string, start time.Time, closes []float64) []market.Bar {
	bars := make([]market.Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, market.Bar{
			Symbol: symbol, Timestamp: start.AddDate(0, 0, i),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1000,
		})
	}
	return bars
}

// Seed scenario 1 (spec §8): RSI mean reversion on AAPL over a fixed
// window produces at least one buy/sell round trip and exactly one equity
// curve entry per trading day.
func TestRSIMeanReversion(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)

	days := int(end.Sub(start).Hours()/24) + 1
	closes := make([]float64, 0, days)
	for i := 0; i < days; i++ {
		closes = append(closes, 100+15*math.Sin(float64(i)/5.0))
	}
	provider := market.NewReplayProvider()
	provider.Seed("AAPL", barsFromCloses("AAPL", start, closes))

	spec := mustNormalize(t, map[string]any{
		"name":   "rsi mean reversion",
		"assets": []any{"AAPL"},
		"entry_signal": "rsi",
		"entry_conditions": []any{
			map[string]any{"kind": "rsi", "parameters": map[string]any{"threshold": 40, "comparison": "below"}},
		},
		"exit_conditions": []any{
			map[string]any{"kind": "rsi", "parameters": map[string]any{"threshold": 60, "comparison": "above"}},
		},
		"risk": map[string]any{"position_size": 0.2, "max_positions": 1},
	})

	result, err := Run(context.Background(), spec, provider, Options{
		Start: start, End: end, InitialCapital: 100_000,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.Summary.TotalTrades, 1)
	require.NotEmpty(t, result.Trades)
	for _, tr := range result.Trades {
		assert.Greater(t, tr.EntryPrice, 0.0)
		assert.Greater(t, tr.ExitPrice, 0.0)
	}

	// Exactly one equity-curve entry per seeded trading day.
	assert.Len(t, result.PortfolioHistory, days)
	for i := 1; i < len(result.PortfolioHistory); i++ {
		assert.True(t, result.PortfolioHistory[i].Date.After(result.PortfolioHistory[i-1].Date))
	}
}

// Seed scenario 2 (spec §8): a partial-exit strategy sells exactly half at
// take-profit once, then the trailing stop closes the remainder — never a
// third sell (no cascading partial exit).
func TestPartialExitTrailingStop(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	// 15 declining bars push RSI to the floor and trigger entry at 99.0;
	// the rise to +6% fires the partial; the drop through peak×0.98 fires
	// the trailing stop on the remainder.
	closes := make([]float64, 0, 18)
	price := 120.0
	for i := 0; i < 15; i++ {
		closes = append(closes, price)
		price -= 1.5
	}
	entryPrice := closes[len(closes)-1] // 99.0
	closes = append(closes, entryPrice*1.03)
	closes = append(closes, entryPrice*1.06) // partial exit here
	closes = append(closes, entryPrice*0.98) // trailing stop here

	provider := market.NewReplayProvider()
	provider.Seed("AAPL", barsFromCloses("AAPL", start, closes))

	spec := mustNormalize(t, map[string]any{
		"name":   "two phase exit",
		"assets": []any{"AAPL"},
		"entry_signal": "rsi",
		"entry_conditions": []any{
			map[string]any{"kind": "rsi", "parameters": map[string]any{"threshold": 30, "comparison": "below"}},
		},
		"exit": map[string]any{
			"take_profit":            0.05,
			"take_profit_pct_shares": 0.5,
			"stop_loss":              0.02,
		},
		"risk": map[string]any{"position_size": 0.5, "max_positions": 1},
	})
	require.True(t, spec.Exit.HasTrailingStop)

	result, err := Run(context.Background(), spec, provider, Options{
		Start: start, End: start.AddDate(0, 0, len(closes)), InitialCapital: 100_000,
	})
	require.NoError(t, err)

	require.Len(t, result.Trades, 2, "exactly one partial exit and one trailing-stop exit")

	partial := result.Trades[0]
	assert.Equal(t, "partial_exit", partial.ExitType)
	assert.False(t, partial.Closed)
	assert.InDelta(t, 0.06, partial.PnLPct, 0.01)

	remainder := result.Trades[1]
	assert.Equal(t, "trailing_stop", remainder.ExitType)
	assert.True(t, remainder.Closed)

	// Half the entry shares went out in the partial, the rest after.
	assert.InDelta(t, partial.Shares, remainder.Shares, 1.0)

	assert.Equal(t, 1, result.ExitConditionAnalysis["partial_exit"])
	assert.Equal(t, 1, result.ExitConditionAnalysis["trailing_stop"])
}

// Seed scenario 3 (spec §8): a reddit-sourced sentiment strategy finds no
// data when the cache only holds a news row — no cell is populated and no
// signal fires off foreign-source data.
func TestSentimentSourceStrictness(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 102, 101, 100, 99, 100, 101, 102, 103}

	provider := market.NewReplayProvider()
	provider.Seed("AAPL", barsFromCloses("AAPL", start, closes))

	cache := sentiment.NewMemCache()
	require.NoError(t, cache.Upsert(sentiment.Row{
		Ticker: "AAPL", DataSource: sentiment.SourceNews,
		Start: start, End: start.AddDate(0, 0, len(closes)),
		Data: map[string]sentiment.CacheEntry{"2024-08-03": {Sentiment: 0.95}},
	}))
	adapter := sentiment.NewAdapter(cache)

	spec := mustNormalize(t, map[string]any{
		"name":   "reddit sentiment long",
		"assets": []any{"AAPL"},
		"entry_signal": "sentiment",
		"entry_conditions": []any{
			map[string]any{"kind": "sentiment", "parameters": map[string]any{"source": "reddit", "threshold": 0.2}},
		},
		"risk": map[string]any{"position_size": 0.2, "max_positions": 1},
	})

	result, err := Run(context.Background(), spec, provider, Options{
		Start: start, End: start.AddDate(0, 0, len(closes)), InitialCapital: 100_000,
		SentimentLookup: adapter.AsLookup(),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Summary.TotalTrades)
	assert.Empty(t, result.Trades)
	for _, row := range result.AdditionalInfo {
		assert.NotContains(t, row.Sentiment, "reddit")
		assert.NotContains(t, row.Sentiment, "news")
	}
}

// Two identical runs produce byte-identical metrics, trade lists, and
// per-day rows (spec §8 "Determinism").
func TestDeterminism(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	days := 60

	// Two symbols with offset phases: both regularly signal on the same
	// date and compete for the same cash balance, so any map-order
	// dependence in signal application shows up as diverging trade lists.
	closesFor := func(phase float64) []float64 {
		closes := make([]float64, 0, days)
		for i := 0; i < days; i++ {
			closes = append(closes, 100+12*math.Sin(float64(i)/4.0+phase))
		}
		return closes
	}

	run := func() *Result {
		provider := market.NewReplayProvider()
		provider.Seed("AAPL", barsFromCloses("AAPL", start, closesFor(0)))
		provider.Seed("MSFT", barsFromCloses("MSFT", start, closesFor(0.5)))
		spec := mustNormalize(t, map[string]any{
			"name":   "deterministic",
			"assets": []any{"AAPL", "MSFT"},
			"entry_signal": "rsi",
			"entry_conditions": []any{
				map[string]any{"kind": "rsi", "parameters": map[string]any{"threshold": 40, "comparison": "below"}},
			},
			"exit": map[string]any{"take_profit": 0.04, "stop_loss": 0.03},
			"risk": map[string]any{"position_size": 0.6, "max_positions": 2},
		})
		result, err := Run(context.Background(), spec, provider, Options{
			Start: start, End: start.AddDate(0, 0, days), InitialCapital: 100_000,
		})
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	assert.True(t, reflect.DeepEqual(a.Summary, b.Summary))
	assert.True(t, reflect.DeepEqual(a.Trades, b.Trades))
	assert.True(t, reflect.DeepEqual(a.AdditionalInfo, b.AdditionalInfo))
	assert.True(t, reflect.DeepEqual(a.PortfolioHistory, b.PortfolioHistory))
}

// final_equity ≈ initial_equity × (1 + total_return/100) within 1e-6
// relative error (spec §8 "Conservation").
func TestConservation(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	days := 90
	closes := make([]float64, 0, days)
	for i := 0; i < days; i++ {
		closes = append(closes, 100+15*math.Sin(float64(i)/5.0))
	}
	provider := market.NewReplayProvider()
	provider.Seed("AAPL", barsFromCloses("AAPL", start, closes))

	spec := mustNormalize(t, map[string]any{
		"name":   "conservation",
		"assets": []any{"AAPL"},
		"entry_signal": "rsi",
		"entry_conditions": []any{
			map[string]any{"kind": "rsi", "parameters": map[string]any{"threshold": 45, "comparison": "below"}},
		},
		"exit": map[string]any{"take_profit": 0.05, "stop_loss": 0.04},
		"risk": map[string]any{"position_size": 0.3, "max_positions": 1},
	})

	result, err := Run(context.Background(), spec, provider, Options{
		Start: start, End: start.AddDate(0, 0, days), InitialCapital: 100_000,
	})
	require.NoError(t, err)

	expected := result.Summary.InitialEquity * (1 + result.Summary.TotalReturnPct/100)
	assert.InEpsilon(t, expected, result.Summary.FinalEquity, 1e-6)

	// Daily conservation: portfolio value = cash + positions value.
	for _, p := range result.PortfolioHistory {
		assert.InDelta(t, p.PortfolioValue, p.Cash+p.PositionsValue, 1e-6)
	}
}

// An open position at the final date is force-closed with a synthetic
// end_of_period trade (spec §4.5 step 5).
func TestEndOfPeriodForceClose(t *testing.T) {
	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	// Decline into an RSI entry, then hold flat so no exit fires.
	closes := make([]float64, 0, 20)
	price := 120.0
	for i := 0; i < 15; i++ {
		closes = append(closes, price)
		price -= 1.5
	}
	for i := 0; i < 5; i++ {
		closes = append(closes, price)
	}

	provider := market.NewReplayProvider()
	provider.Seed("AAPL", barsFromCloses("AAPL", start, closes))

	spec := mustNormalize(t, map[string]any{
		"name":   "hold to end",
		"assets": []any{"AAPL"},
		"entry_signal": "rsi",
		"entry_conditions": []any{
			map[string]any{"kind": "rsi", "parameters": map[string]any{"threshold": 30, "comparison": "below"}},
		},
		"risk": map[string]any{"position_size": 0.2, "max_positions": 1},
	})

	result, err := Run(context.Background(), spec, provider, Options{
		Start: start, End: start.AddDate(0, 0, len(closes)), InitialCapital: 100_000,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Trades)
	last := result.Trades[len(result.Trades)-1]
	assert.Equal(t, "end_of_period", last.ExitType)
	assert.True(t, last.Closed)
	assert.Equal(t, 1, result.ExitConditionAnalysis["end_of_period"])
}
