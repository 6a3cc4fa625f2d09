package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bhargavap21/tradeforge/backtest"
	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/strategy"
)

// AnalystInput bundles what the analyst agent judges (spec.md §4.7 step 4
// "Call the analyst").
type AnalystInput struct {
	Result    *backtest.Result
	Spec      *strategy.Spec
	UserQuery string
	Iteration int
	MaxIterations int
}

// AnalystOutput is the analyst's verdict, used both for user-facing
// narrative and to decide whether the workflow keeps iterating.
type AnalystOutput struct {
	Analysis        string   `json:"analysis"`
	Issues          []string `json:"issues"`
	Suggestions     []string `json:"suggestions"`
	NeedsRefinement bool     `json:"needs_refinement"`
	ShouldContinue  bool     `json:"should_continue"`
}

// Analyst wraps an llm.Client to turn a Summary/Trades bundle into a
// judgement call — grounded on the teacher's decision/engine.go
// evaluateOutcome pattern of feeding structured trade data back to the
// model for a critique rather than hand-coding a threshold rulebook.
type Analyst struct {
	Client llm.Client
}

func (a *Analyst) Analyze(ctx context.Context, in AnalystInput) (*AnalystOutput, error) {
	system := "You are a trading strategy performance reviewer. Given a backtest summary and trade " +
		"history, respond with JSON: " +
		`{"analysis": "...", "issues": ["..."], "suggestions": ["..."], "needs_refinement": bool, "should_continue": bool}. ` +
		"needs_refinement should be true only when a concrete, actionable change would plausibly improve " +
		"the strategy. should_continue should be false once results are satisfactory or further " +
		"iteration is unlikely to help."

	summary, _ := json.Marshal(in.Result.Summary)
	user := fmt.Sprintf(
		"User's original request: %s\nIteration %d of %d.\nSummary: %s\nTotal trades: %d\nWarnings: %v\n",
		in.UserQuery, in.Iteration, in.MaxIterations, string(summary), in.Result.Summary.TotalTrades, in.Result.Warnings,
	)

	var out AnalystOutput
	if err := llm.CompleteJSON(ctx, a.Client, system, user, &out); err != nil {
		return nil, fmt.Errorf("analyst agent failed: %w", err)
	}
	if in.Iteration >= in.MaxIterations {
		out.ShouldContinue = false
	}
	return &out, nil
}
