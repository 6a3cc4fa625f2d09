package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls the first top-level JSON object or array out of a raw
// LLM response, stripping common wrapper noise (markdown code fences,
// leading prose) — grounded on the teacher's decision/engine.go
// extractDecisions/fixMissingQuotes tolerance for slightly malformed model
// output.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return s
	}
	open, close := byte('{'), byte('}')
	if s[start] == '[' {
		open, close = '[', ']'
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// CompleteJSON calls Complete, extracts and unmarshals the JSON payload
// into out, retrying once on a parse failure (spec.md §5 "refinement LLM
// calls use a small-token budget with a single retry on JSON parse
// failure").
func CompleteJSON(ctx context.Context, client Client, systemPrompt, userPrompt string, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := client.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return fmt.Errorf("llm call failed: %w", err)
		}
		if err := json.Unmarshal([]byte(ExtractJSON(raw)), out); err != nil {
			lastErr = fmt.Errorf("failed to parse LLM JSON response: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}
