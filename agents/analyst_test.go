package agents

import (
	"context"
	"testing"

	"github.com/bhargavap21/tradeforge/backtest"
	"github.com/bhargavap21/tradeforge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyst_Analyze(t *testing.T) {
	client := &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return `{
				"analysis": "decent Sharpe, low trade count",
				"issues": ["too few trades"],
				"suggestions": ["loosen RSI threshold"],
				"needs_refinement": true,
				"should_continue": true
			}`, nil
		},
	}
	analyst := &Analyst{Client: client}

	out, err := analyst.Analyze(context.Background(), AnalystInput{
		Result:        &backtest.Result{Summary: backtest.Summary{TotalTrades: 2}},
		UserQuery:     "buy low sell high",
		Iteration:     1,
		MaxIterations: 5,
	})
	require.NoError(t, err)
	assert.True(t, out.NeedsRefinement)
	assert.True(t, out.ShouldContinue)
	assert.Contains(t, out.Issues, "too few trades")
}

func TestAnalyst_Analyze_ForcesStopAtMaxIterations(t *testing.T) {
	client := &llm.LocalFuncClient{
		Respond: func(system, user string) (string, error) {
			return `{"analysis": "fine", "issues": [], "suggestions": [], "needs_refinement": false, "should_continue": true}`, nil
		},
	}
	analyst := &Analyst{Client: client}

	out, err := analyst.Analyze(context.Background(), AnalystInput{
		Result:        &backtest.Result{},
		Iteration:     5,
		MaxIterations: 5,
	})
	require.NoError(t, err)
	assert.False(t, out.ShouldContinue)
}
