// Package agents implements the four cooperating agents the workflow
// engine drives each iteration (spec.md §2 "Agents", §4.7): generator
// (LLM → normalized strategy spec), backtester (wraps the backtest core),
// analyst (LLM judgement over a backtest), and insights (LLM → viz
// config). Prompt-building idiom is grounded on the teacher's
// decision/engine.go BuildSystemPrompt/BuildUserPrompt (variant-aware
// prompt assembly); LLM invocation goes through the llm.Client oracle
// abstraction.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bhargavap21/tradeforge/llm"
	"github.com/bhargavap21/tradeforge/strategy"
)

// GeneratorInput is the per-iteration input to the generator agent
// (spec.md §4.7 step 2).
type GeneratorInput struct {
	UserQuery        string
	PreviousStrategy *strategy.Spec
	Feedback         string
	DataInsights     map[string]any
	Iteration        int
}

// GeneratorOutput is a new normalized strategy plus the changes the agent
// made relative to the previous iteration.
type GeneratorOutput struct {
	Spec        *strategy.Spec
	ChangesMade []string
}

// Generator wraps an llm.Client to turn a natural-language query (or a
// refinement of a previous strategy) into a normalized Spec.
type Generator struct {
	Client llm.Client
}

type generatorResponse struct {
	Strategy    map[string]any `json:"strategy"`
	ChangesMade []string       `json:"changes_made"`
}

// Generate implements spec.md §4.7 step 2: first iteration parses the raw
// query; subsequent iterations refine the previous spec. Every field the
// user literally specified is protected from being overwritten by this
// call — ProtectParameters applies that rule downstream in the workflow
// engine, not here, since only the workflow knows what was protected.
func (g *Generator) Generate(ctx context.Context, in GeneratorInput) (*GeneratorOutput, error) {
	system := buildGeneratorSystemPrompt(in.Iteration)
	user := buildGeneratorUserPrompt(in)

	var resp generatorResponse
	if err := llm.CompleteJSON(ctx, g.Client, system, user, &resp); err != nil {
		return nil, fmt.Errorf("generator agent failed: %w", err)
	}

	spec, verr := strategy.Normalize(resp.Strategy)
	if verr != nil {
		return nil, fmt.Errorf("generator agent produced an invalid strategy: %w", verr)
	}
	return &GeneratorOutput{Spec: spec, ChangesMade: resp.ChangesMade}, nil
}

func buildGeneratorSystemPrompt(iteration int) string {
	var sb strings.Builder
	sb.WriteString("You are a quantitative trading strategy designer. ")
	sb.WriteString("Given a natural-language description of a trading idea, respond with a JSON object ")
	sb.WriteString(`of the shape {"strategy": {...}, "changes_made": ["..."]}. `)
	sb.WriteString("The strategy object must use the fields: name, assets, entry_signal, entry_parameters, ")
	sb.WriteString("entry_conditions, exit_conditions, exit, risk, data_sources. ")
	if iteration > 1 {
		sb.WriteString("This is a refinement of a previous iteration: adjust only what the feedback calls for.")
	}
	return sb.String()
}

func buildGeneratorUserPrompt(in GeneratorInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User query: %s\n", in.UserQuery)
	fmt.Fprintf(&sb, "Iteration: %d\n", in.Iteration)
	if in.PreviousStrategy != nil {
		prev, _ := json.Marshal(in.PreviousStrategy)
		fmt.Fprintf(&sb, "Previous strategy: %s\n", string(prev))
	}
	if in.Feedback != "" {
		fmt.Fprintf(&sb, "Analyst feedback: %s\n", in.Feedback)
	}
	if len(in.DataInsights) > 0 {
		insights, _ := json.Marshal(in.DataInsights)
		fmt.Fprintf(&sb, "Data-driven insights from the last backtest: %s\n", string(insights))
	}
	return sb.String()
}
