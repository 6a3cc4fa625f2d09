package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/store"
)

const alwaysBuyStrategy = `{
	"name": "always-buy",
	"assets": ["AAPL"],
	"entry_signal": "price",
	"entry_conditions": [{"kind": "price", "parameters": {"trigger": "any"}}],
	"exit": {"take_profit": 0.05},
	"risk": {"position_size": 0.1, "max_positions": 1}
}`

func newTestEngine(t *testing.T, prices map[string]float64) (*Engine, *store.Store, *broker.Simulated) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sim := broker.NewSimulated(1_000_000)
	provider := market.NewReplayProvider()
	for symbol, price := range prices {
		sim.SetPrice(symbol, price)
		bars := make([]market.Bar, 0, 30)
		base := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 30; i++ {
			bars = append(bars, market.Bar{
				Symbol: symbol, Timestamp: base.AddDate(0, 0, i),
				Open: price, High: price, Low: price, Close: price, Volume: 1000,
			})
		}
		provider.Seed(symbol, bars)
	}

	e := New(st, sim, provider)
	e.LookbackDays = 36500 // test bars are fixed in 2024; never age them out
	return e, st, sim
}

func seedDeployment(t *testing.T, st *store.Store, id string, capital float64, maxPos *float64) *store.Deployment {
	t.Helper()
	bot := &store.Bot{ID: "bot-" + id, UserID: "u1", SessionID: "sess-" + id,
		Name: "always-buy", Strategy: alwaysBuyStrategy, Backtest: "{}", Insights: "{}"}
	require.NoError(t, st.Bot().Create(bot))

	d := &store.Deployment{
		ID: id, UserID: "u1", BotID: bot.ID, Status: store.StatusRunning,
		InitialCapital: capital, CurrentCapital: capital,
		ExecutionFrequency: "5m", MaxPositionSize: maxPos,
	}
	require.NoError(t, st.Deployment().Create(d))
	return d
}

// Two deployments sharing one broker account each buy 10 shares of AAPL at
// $100. The broker aggregate is 20 shares, but each deployment's virtual
// position reports quantity 10 and its virtual cash drops by exactly 1000
// (spec.md §8 seed scenario 5).
func TestVirtualPortfolioIsolation(t *testing.T) {
	e, st, sim := newTestEngine(t, map[string]float64{"AAPL": 100})

	maxPos := 1000.0
	d1 := seedDeployment(t, st, "d1", 10_000, &maxPos)
	d2 := seedDeployment(t, st, "d2", 10_000, &maxPos)

	require.NoError(t, e.tick(d1))
	require.NoError(t, e.tick(d2))

	agg, ok, err := sim.GetPosition("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, agg.Quantity)

	for _, id := range []string{"d1", "d2"} {
		pos, ok, err := st.Position().Get(id, "AAPL")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 10.0, pos.Quantity)
		assert.Equal(t, 100.0, pos.AvgEntryPrice)

		trades, err := st.Trade().List(id)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, 1000.0, trades[0].Notional)

		positions, err := st.Position().List(id)
		require.NoError(t, err)
		snap := Reconstruct(10_000, trades, positions, map[string]float64{"AAPL": 100})
		assert.InDelta(t, 9_000, snap.VirtualCash, 1e-9)
		assert.InDelta(t, 10_000, snap.PortfolioValue, 1e-9)
	}
}

// Virtual cash + Σ position quantity × price must equal the virtual
// portfolio value after every tick (spec.md §8 "Conservation").
func TestReconstructConservation(t *testing.T) {
	trades := []*store.DeploymentTrade{
		{Side: "buy", Status: "filled", Notional: 1000},
		{Side: "buy", Status: "filled", Notional: 550},
		{Side: "sell", Status: "filled", Notional: 600, RealizedPnL: 50},
		{Side: "buy", Status: "pending", Notional: 9999}, // unfilled rows are excluded
	}
	positions := []*store.DeploymentPosition{
		{Symbol: "AAPL", Quantity: 5, AvgEntryPrice: 100},
		{Symbol: "MSFT", Quantity: 2, AvgEntryPrice: 275},
	}
	prices := map[string]float64{"AAPL": 110, "MSFT": 280}

	snap := Reconstruct(10_000, trades, positions, prices)

	assert.InDelta(t, 10_000-1000-550+600, snap.VirtualCash, 1e-9)
	assert.InDelta(t, 5*110+2*280, snap.PositionsValue, 1e-9)
	assert.InDelta(t, snap.VirtualCash+snap.PositionsValue, snap.PortfolioValue, 1e-9)
	assert.InDelta(t, 50, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 5*10+2*5, snap.UnrealizedPnL, 1e-9)
}

func TestTickUpdatesDeploymentAggregates(t *testing.T) {
	e, st, _ := newTestEngine(t, map[string]float64{"AAPL": 100})
	maxPos := 1000.0
	d := seedDeployment(t, st, "d1", 10_000, &maxPos)

	require.NoError(t, e.tick(d))

	got, err := st.Deployment().GetByID("d1")
	require.NoError(t, err)
	assert.InDelta(t, 10_000, got.CurrentCapital, 1e-9)
	require.NotNil(t, got.LastExecutionAt)

	snaps, err := st.Metric().List("d1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.InDelta(t, 9_000, snaps[0].Cash, 1e-9)
	assert.Equal(t, 1, snaps[0].PositionsCount)
}

// A tick that cannot even load its bot is a deployment failure: status
// flips to error with stopped_at stamped, and the active set shrinks —
// without touching other deployments (spec.md §4.8 "Failure handling").
func TestTickFailureTransitionsToError(t *testing.T) {
	e, st, _ := newTestEngine(t, map[string]float64{"AAPL": 100})

	d := &store.Deployment{ID: "broken", UserID: "u1", BotID: "missing-bot",
		Status: store.StatusRunning, InitialCapital: 10_000, CurrentCapital: 10_000,
		ExecutionFrequency: "1m"}
	require.NoError(t, st.Deployment().Create(d))

	err := e.tick(d)
	require.Error(t, err)
	e.failDeployment(d.ID, err)

	got, err := st.Deployment().GetByID("broken")
	require.NoError(t, err)
	assert.Equal(t, store.StatusError, got.Status)
	require.NotNil(t, got.StoppedAt)
}

func TestSyncOnceTracksStatusChanges(t *testing.T) {
	e, st, _ := newTestEngine(t, map[string]float64{"AAPL": 100})
	seedDeployment(t, st, "d1", 10_000, nil)

	e.syncOnce()
	assert.Equal(t, 1, e.ActiveCount())

	// Re-sync is idempotent.
	e.syncOnce()
	assert.Equal(t, 1, e.ActiveCount())

	require.NoError(t, st.Deployment().UpdateStatus("d1", store.StatusPaused))
	e.syncOnce()
	assert.Equal(t, 0, e.ActiveCount())

	// paused → running brings it back.
	require.NoError(t, st.Deployment().UpdateStatus("d1", store.StatusRunning))
	e.syncOnce()
	assert.Equal(t, 1, e.ActiveCount())

	require.NoError(t, st.Deployment().UpdateStatus("d1", store.StatusStopped))
	e.syncOnce()
	assert.Equal(t, 0, e.ActiveCount())
	e.wg.Wait()
}

func TestIsMarketOpen(t *testing.T) {
	// Wednesday 2024-08-07.
	open := time.Date(2024, 8, 7, 14, 0, 0, 0, time.UTC)    // 10:00 ET
	early := time.Date(2024, 8, 7, 13, 0, 0, 0, time.UTC)   // 9:00 ET
	late := time.Date(2024, 8, 7, 21, 0, 0, 0, time.UTC)    // 17:00 ET
	weekend := time.Date(2024, 8, 10, 14, 0, 0, 0, time.UTC) // Saturday

	assert.True(t, IsMarketOpen(open))
	assert.False(t, IsMarketOpen(early))
	assert.False(t, IsMarketOpen(late))
	assert.False(t, IsMarketOpen(weekend))
}

func TestFrequencyDuration(t *testing.T) {
	assert.Equal(t, time.Minute, frequencyDuration("1m"))
	assert.Equal(t, time.Hour, frequencyDuration("1h"))
	assert.Equal(t, 5*time.Minute, frequencyDuration("unknown"))
}
