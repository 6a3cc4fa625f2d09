package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhargavap21/tradeforge/sentiment"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeploymentLifecycle(t *testing.T) {
	s := openTestStore(t)

	d := &Deployment{
		ID:                 uuid.NewString(),
		UserID:             "u1",
		BotID:              "b1",
		Status:             StatusRunning,
		InitialCapital:     10000,
		CurrentCapital:     10000,
		ExecutionFrequency: "5m",
	}
	require.NoError(t, s.Deployment().Create(d))

	got, err := s.Deployment().Get("u1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.StoppedAt)

	running, err := s.Deployment().ListByStatus(StatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)

	// paused ↔ running is reversible; stopped stamps stopped_at.
	require.NoError(t, s.Deployment().UpdateStatus(d.ID, StatusPaused))
	require.NoError(t, s.Deployment().UpdateStatus(d.ID, StatusRunning))
	require.NoError(t, s.Deployment().UpdateStatus(d.ID, StatusStopped))

	got, err = s.Deployment().Get("u1", d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, got.Status)
	require.NotNil(t, got.StoppedAt)

	running, err = s.Deployment().ListByStatus(StatusRunning)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestDeploymentOwnerScoping(t *testing.T) {
	s := openTestStore(t)

	d := &Deployment{ID: "d1", UserID: "u1", BotID: "b1", Status: StatusRunning,
		InitialCapital: 5000, CurrentCapital: 5000, ExecutionFrequency: "1m"}
	require.NoError(t, s.Deployment().Create(d))

	_, err := s.Deployment().Get("someone-else", "d1")
	assert.Error(t, err)
}

func TestPositionUpsertAndDelete(t *testing.T) {
	s := openTestStore(t)

	p := &DeploymentPosition{DeploymentID: "d1", Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}
	require.NoError(t, s.Position().Upsert(p))

	// Weighted-average add replaces the row via the same logical key.
	p.Quantity = 20
	p.AvgEntryPrice = 105
	require.NoError(t, s.Position().Upsert(p))

	got, ok, err := s.Position().Get("d1", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20.0, got.Quantity)
	assert.Equal(t, 105.0, got.AvgEntryPrice)

	list, err := s.Position().List("d1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Position().Delete("d1", "AAPL"))
	_, ok, err = s.Position().Get("d1", "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPositionsAreScopedPerDeployment(t *testing.T) {
	s := openTestStore(t)

	// Two deployments sharing one broker account hold independent rows for
	// the same symbol.
	require.NoError(t, s.Position().Upsert(&DeploymentPosition{DeploymentID: "d1", Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}))
	require.NoError(t, s.Position().Upsert(&DeploymentPosition{DeploymentID: "d2", Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}))

	p1, ok, err := s.Position().Get("d1", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	p2, ok, err := s.Position().Get("d2", "AAPL")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, 10.0, p1.Quantity)
	assert.Equal(t, 10.0, p2.Quantity)
}

func TestTradeLedger(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.Trade().Insert(&DeploymentTrade{
		ID: "t1", DeploymentID: "d1", Symbol: "AAPL", Side: "buy",
		Quantity: 10, Price: 100, Notional: 1000, Status: "filled", ExecutedAt: now,
	}))
	require.NoError(t, s.Trade().Insert(&DeploymentTrade{
		ID: "t2", DeploymentID: "d1", Symbol: "AAPL", Side: "sell",
		Quantity: 10, Price: 110, Notional: 1100, Status: "filled", RealizedPnL: 100,
		ExecutedAt: now.Add(time.Minute),
	}))

	trades, err := s.Trade().List("d1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "buy", trades[0].Side)
	assert.Equal(t, "sell", trades[1].Side)
	assert.Equal(t, 100.0, trades[1].RealizedPnL)

	other, err := s.Trade().List("d2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDatasetUpsertMergesEntries(t *testing.T) {
	s := openTestStore(t)

	start := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Dataset().Upsert(sentiment.Row{
		Ticker: "AAPL", DataSource: sentiment.SourceReddit, Start: start, End: end,
		Data:      map[string]sentiment.CacheEntry{"2024-08-05": {Sentiment: 0.4}},
		SessionID: "sess-1",
	}))
	// Second upsert on the same logical key merges, not overwrites.
	require.NoError(t, s.Dataset().Upsert(sentiment.Row{
		Ticker: "AAPL", DataSource: sentiment.SourceReddit, Start: start, End: end,
		Data: map[string]sentiment.CacheEntry{"2024-08-06": {Sentiment: -0.2}},
	}))

	entry, ok := s.Dataset().Lookup("AAPL", sentiment.SourceReddit, time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, 0.4, entry.Sentiment, 1e-9)

	entry, ok = s.Dataset().Lookup("AAPL", sentiment.SourceReddit, time.Date(2024, 8, 6, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.InDelta(t, -0.2, entry.Sentiment, 1e-9)

	// Covering range, but no entry for the day → miss.
	_, ok = s.Dataset().Lookup("AAPL", sentiment.SourceReddit, time.Date(2024, 8, 7, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestDatasetSourceStrictness(t *testing.T) {
	s := openTestStore(t)

	day := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Dataset().Upsert(sentiment.Row{
		Ticker: "AAPL", DataSource: sentiment.SourceNews, Start: day, End: day,
		Data: map[string]sentiment.CacheEntry{"2024-08-05": {Sentiment: 0.9}},
	}))

	// A reddit request never matches a news row (spec §8 source strictness).
	_, ok := s.Dataset().Lookup("AAPL", sentiment.SourceReddit, day)
	assert.False(t, ok)
}

func TestDatasetAssociateSession(t *testing.T) {
	s := openTestStore(t)

	day := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Dataset().Upsert(sentiment.Row{
		Ticker: "AAPL", DataSource: sentiment.SourceReddit, Start: day, End: day,
		Data:      map[string]sentiment.CacheEntry{"2024-08-05": {Sentiment: 0.1}},
		SessionID: "sess-1",
	}))

	require.NoError(t, s.Dataset().AssociateSession("sess-1", "bot-42"))

	rows, err := s.Dataset().ListBySession("sess-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bot-42", rows[0].BotID)
}

func TestBotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	b := &Bot{
		ID: "b1", UserID: "u1", SessionID: "sess-1", Name: "rsi-dip-buyer",
		Strategy: `{"name":"rsi-dip-buyer","assets":["AAPL"]}`,
		Backtest: `{}`, Insights: `{}`,
	}
	require.NoError(t, s.Bot().Create(b))

	got, err := s.Bot().Get("u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)

	raw, err := got.ParseStrategy()
	require.NoError(t, err)
	assert.Equal(t, "rsi-dip-buyer", raw["name"])

	list, err := s.Bot().List("u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUserPasswordHash(t *testing.T) {
	s := openTestStore(t)

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, s.User().Create(&User{ID: "u1", Email: "a@b.c", PasswordHash: hash}))

	u, err := s.User().GetByEmail("a@b.c")
	require.NoError(t, err)
	assert.True(t, u.VerifyPassword("hunter2"))
	assert.False(t, u.VerifyPassword("wrong"))
}
