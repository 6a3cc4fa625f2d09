package workflow

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhargavap21/tradeforge/agents"
	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/market"
)

func seedOscillatingBars(provider *market.ReplayProvider, symbol string, days int) {
	bars := make([]market.Bar, 0, days)
	start := time.Now().UTC().AddDate(0, 0, -days)
	price := 100.0
	for i := 0; i < days; i++ {
		price += 2 * math.Sin(float64(i)/3.0)
		ts := start.AddDate(0, 0, i)
		bars = append(bars, market.Bar{Symbol: symbol, Timestamp: ts, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000})
	}
	provider.Seed(symbol, bars)
}

func newTestEngine(t *testing.T) *Engine {
	provider := market.NewReplayProvider()
	seedOscillatingBars(provider, "AAPL", 90)

	genResponses := []string{
		`{"strategy": {"name": "RSI dip buyer", "assets": ["AAPL"], "entry_signal": "rsi",
		  "entry_parameters": {"threshold": 40, "comparison": "below"},
		  "exit": {"take_profit": 5, "stop_loss": -3},
		  "risk": {"position_size": 0.2, "max_positions": 3, "allocation": "equal"}},
		 "changes_made": ["initial strategy"]}`,
		`{"strategy": {"name": "RSI dip buyer v2", "assets": ["AAPL"], "entry_signal": "rsi",
		  "entry_parameters": {"threshold": 45, "comparison": "below"},
		  "exit": {"take_profit": 5, "stop_loss": -3},
		  "risk": {"position_size": 0.2, "max_positions": 3, "allocation": "equal"}},
		 "changes_made": ["loosened RSI threshold"]}`,
	}
	call := 0
	gen := &agents.Generator{Client: &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			idx := call
			if idx >= len(genResponses) {
				idx = len(genResponses) - 1
			}
			call++
			return genResponses[idx], nil
		},
	}}

	bt := &agents.Backtester{Provider: provider, LookbackDays: 90}

	analystCall := 0
	analyst := &agents.Analyst{Client: &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			analystCall++
			if analystCall == 1 {
				return `{"analysis": "too few trades", "issues": ["low trade count"],
				  "suggestions": ["loosen threshold"], "needs_refinement": true, "should_continue": true}`, nil
			}
			return `{"analysis": "acceptable", "issues": [], "suggestions": [],
			  "needs_refinement": false, "should_continue": true}`, nil
		},
	}}

	insights := &agents.Insights{Client: &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return `{"config": {"charts": ["equity_curve"]}}`, nil
		},
	}}

	eng := NewEngine(gen, bt, analyst, insights)
	eng.MaxIterations = 3
	eng.MaxWallTime = time.Minute
	eng.InitialCapital = 50000
	return eng
}

func TestEngine_RunsToCompletion(t *testing.T) {
	eng := newTestEngine(t)
	s := eng.CreateSession("buy AAPL when RSI below 40, take profit 5%, stop loss 3%")

	err := eng.StartWorkflow(context.Background(), s.ID)
	require.NoError(t, err)

	var types []EventType
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				break loop
			}
			types = append(types, evt.Type)
			if evt.Type == EventComplete || evt.Type == EventError {
				// drain a little longer to observe the close
			}
		case <-timeout:
			t.Fatal("workflow did not complete within timeout")
		}
	}

	require.NotEmpty(t, types)
	assert.Equal(t, EventReady, types[0])
	last := types[len(types)-1]
	assert.Equal(t, EventComplete, last, fmt.Sprintf("all events: %v", types))

	result, ok := eng.Result(s.ID)
	require.True(t, ok)
	assert.NotNil(t, result.BacktestResult)
	assert.NotEmpty(t, result.Spec)
}

func TestEngine_UserProtectedRSIThresholdSurvivesRefinement(t *testing.T) {
	eng := newTestEngine(t)
	s := eng.CreateSession("buy AAPL when RSI below 40")

	require.NoError(t, eng.StartWorkflow(context.Background(), s.ID))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				goto done
			}
			_ = evt
		case <-timeout:
			t.Fatal("workflow did not complete within timeout")
		}
	}
done:
	result, ok := eng.Result(s.ID)
	require.True(t, ok)
	spec := result.Spec
	entryParams, _ := spec["entry_parameters"].(map[string]any)
	require.NotNil(t, entryParams)
	assert.Equal(t, 40.0, entryParams["threshold"])
}
