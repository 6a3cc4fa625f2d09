package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhargavap21/tradeforge/agents"
	"github.com/bhargavap21/tradeforge/broker"
	"github.com/bhargavap21/tradeforge/live"
	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/market"
	"github.com/bhargavap21/tradeforge/store"
	"github.com/bhargavap21/tradeforge/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seedBars(provider *market.ReplayProvider, symbol string, days int) {
	bars := make([]market.Bar, 0, days)
	start := time.Now().UTC().AddDate(0, 0, -days)
	price := 100.0
	for i := 0; i < days; i++ {
		price += 2 * math.Sin(float64(i)/3.0)
		bars = append(bars, market.Bar{Symbol: symbol, Timestamp: start.AddDate(0, 0, i),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000})
	}
	provider.Seed(symbol, bars)
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	provider := market.NewReplayProvider()
	seedBars(provider, "AAPL", 90)

	oracle := &llm.LocalFuncClient{Respond: func(system, user string) (string, error) {
		// One canned response per agent, keyed by a prompt fragment.
		if bytes.Contains([]byte(system), []byte("performance reviewer")) {
			return `{"analysis": "fine", "issues": [], "suggestions": [],
				"needs_refinement": false, "should_continue": true}`, nil
		}
		if bytes.Contains([]byte(system), []byte("visualization")) {
			return `{"config": {"charts": ["equity_curve"]}}`, nil
		}
		return `{"strategy": {"name": "RSI dip buyer", "assets": ["AAPL"], "entry_signal": "rsi",
			"entry_parameters": {"threshold": 45, "comparison": "below"},
			"exit": {"take_profit": 5, "stop_loss": -3},
			"risk": {"position_size": 0.2, "max_positions": 3}},
			"changes_made": ["initial strategy"]}`, nil
	}}

	engine := workflow.NewEngine(
		&agents.Generator{Client: oracle},
		&agents.Backtester{Provider: provider, LookbackDays: 90},
		&agents.Analyst{Client: oracle},
		&agents.Insights{Client: oracle},
	)
	engine.MaxIterations = 2
	engine.MaxWallTime = time.Minute

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sim := broker.NewSimulated(1_000_000)
	sim.SetPrice("AAPL", 100)
	liveEngine := live.New(st, sim, provider)

	server := NewServer(Options{
		Engine:    engine,
		Live:      liveEngine,
		Store:     st,
		Provider:  provider,
		JWTSecret: "test-secret",
	})
	return server, st
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

type polledEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func pollEvents(t *testing.T, s *Server, sessionID string, from int) ([]polledEvent, int) {
	t.Helper()
	w := doJSON(t, s, http.MethodGet, "/api/events/"+sessionID+"?from="+strconv.Itoa(from), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []polledEvent `json:"events"`
		Total  int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Events, resp.Total
}

// Session lifecycle through the transport: create → start → poll to the
// terminal event → fetch result. Reconnect-by-poll observes the suffix
// without duplicates or gaps (spec.md §8 seed scenario 4).
func TestSessionWorkflowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/sessions", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	w = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.SessionID+"/start",
		gin.H{"strategy_description": "buy AAPL when RSI below 45"})
	require.Equal(t, http.StatusOK, w.Code)

	// Starting twice is rejected (one workflow per session).
	w = doJSON(t, server, http.MethodPost, "/api/sessions/"+created.SessionID+"/start",
		gin.H{"strategy_description": "buy AAPL when RSI below 45"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Poll in two phases with a simulated disconnect in between; indexes
	// guarantee the suffix concatenates without duplicates.
	deadline := time.Now().Add(10 * time.Second)
	var all []polledEvent
	from := 0
	terminal := ""
	for terminal == "" && time.Now().Before(deadline) {
		events, total := pollEvents(t, server, created.SessionID, from)
		all = append(all, events...)
		from = total
		for _, evt := range events {
			if evt.Type == "complete" || evt.Type == "error" {
				terminal = evt.Type
			}
		}
		if terminal == "" {
			time.Sleep(50 * time.Millisecond)
		}
	}
	require.Equal(t, "complete", terminal)
	assert.Equal(t, "ready", all[0].Type)
	assert.Equal(t, "complete", all[len(all)-1].Type)

	// Result is fetchable after completion.
	w = doJSON(t, server, http.MethodGet, "/api/result/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result workflow.SessionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotNil(t, result.BacktestResult)

	// Unknown session → not found.
	w = doJSON(t, server, http.MethodGet, "/api/result/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeploymentEndpoints(t *testing.T) {
	server, st := newTestServer(t)

	require.NoError(t, st.Bot().Create(&store.Bot{
		ID: "bot-1", UserID: "u1", Name: "always-buy",
		Strategy: `{"name":"always-buy","assets":["AAPL"],"entry_signal":"price"}`,
		Backtest: "{}", Insights: "{}",
	}))

	w := doJSON(t, server, http.MethodPost, "/api/deployments", gin.H{
		"bot_id": "bot-1", "initial_capital": 10000.0, "execution_frequency": "5m",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		ID    string `json:"id"`
		Token string `json:"deployment_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	depID, err := verifyDeploymentToken([]byte("test-secret"), created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, depID)

	// pause → resume → stop; stop is terminal.
	w = doJSON(t, server, http.MethodPost, "/api/deployments/"+created.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, server, http.MethodPost, "/api/deployments/"+created.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, server, http.MethodPost, "/api/deployments/"+created.ID+"/stop", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, server, http.MethodPost, "/api/deployments/"+created.ID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, server, http.MethodGet, "/api/deployments/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d store.Deployment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, store.StatusStopped, d.Status)
	assert.NotNil(t, d.StoppedAt)

	// Sub-resources exist and start empty.
	for _, sub := range []string{"trades", "metrics", "positions"} {
		w = doJSON(t, server, http.MethodGet, "/api/deployments/"+created.ID+"/"+sub, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// Invalid frequency is rejected.
	w = doJSON(t, server, http.MethodPost, "/api/deployments", gin.H{
		"bot_id": "bot-1", "initial_capital": 10000.0, "execution_frequency": "2m",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBacktestEndpointAutoSavesBot(t *testing.T) {
	server, st := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/backtest", gin.H{
		"strategy": gin.H{
			"name": "RSI dip buyer", "assets": []string{"AAPL"}, "entry_signal": "rsi",
			"entry_parameters": gin.H{"threshold": 45, "comparison": "below"},
			"exit":             gin.H{"take_profit": 5, "stop_loss": -3},
			"risk":             gin.H{"position_size": 0.2, "max_positions": 3},
		},
		"days": 90, "initial_capital": 50000.0,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Contains(t, result, "summary")
	assert.Contains(t, result, "portfolio_history")

	bots, err := st.Bot().List("u1")
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "RSI dip buyer", bots[0].Name)
}

func TestBacktestEndpointRejectsInvalidStrategy(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/api/backtest", gin.H{
		"strategy": gin.H{"assets": []string{"AAPL"}}, // no name
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
