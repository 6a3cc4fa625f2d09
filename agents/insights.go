package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/strategy"
)

// InsightsOutput is an opaque visualization-config bag handed to the
// frontend verbatim (spec.md §4.7 step 4 "request an insights config from
// the insights agent"). The shape is intentionally loose — this core
// never interprets chart config, it only passes through what the model
// produced.
type InsightsOutput struct {
	Config map[string]any `json:"config"`
}

// Insights wraps an llm.Client to turn a freshly-generated strategy into a
// chart/dashboard configuration for the session's front end. It is called
// in parallel with the backtest on iteration 1 (spec.md §4.7 step 4), so it
// only ever sees the strategy the generator just produced, not backtest
// output.
type Insights struct {
	Client llm.Client
	// Timeout bounds the call; spec.md §4.7 step 4 gives insights generation
	// a 30s budget and tolerates a timeout without failing the iteration.
	Timeout time.Duration
}

func (i *Insights) Generate(ctx context.Context, spec *strategy.Spec) (*InsightsOutput, error) {
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system := "You produce a JSON visualization config for a trading strategy dashboard. Respond with " +
		`{"config": {...}}. Include chart suggestions (equity curve, drawdown, relevant indicator panels, ` +
		"trade markers) as keys under config, tailored to the strategy's entry/exit signal kinds; do not " +
		"include prose outside the JSON object."

	strat, _ := json.Marshal(spec)
	user := fmt.Sprintf("Strategy: %s\n", string(strat))

	var out InsightsOutput
	if err := llm.CompleteJSON(ctx, i.Client, system, user, &out); err != nil {
		// Insights are best-effort: a timeout or malformed response degrades
		// to an empty config rather than failing the whole iteration.
		logger.Warnf("insights agent degraded to empty config: %v", err)
		return &InsightsOutput{Config: map[string]any{}}, nil
	}
	return &out, nil
}
