// Package llm is the pluggable structured-text oracle abstraction spec.md
// §1 treats the LLM provider as: every agent call is an opaque
// request/response round trip whose failure modes (timeout, non-JSON,
// over-budget) the core must tolerate (spec.md §7 "LLMError"). Interface
// shape is grounded on the teacher's mcp.AIClient family
// (mcp/architect_client.go, mcp/localai_client.go, mcp/localfunc_client.go)
// — a provider-agnostic client with a base HTTP implementation and
// lightweight local/test doubles; the teacher's own `mcp.Client`/`Request`
// base type was not present in the retrieved pack (only its three
// provider subtypes were), so this package reconstructs the same
// pluggable-oracle idiom as a self-contained Go interface rather than
// copying unavailable source.
package llm

import "context"

// Client is the structured-text oracle every agent calls through.
type Client interface {
	// Complete sends a system/user prompt pair and returns the raw text
	// response. Callers that need structured output parse it themselves
	// (see CompleteJSON) so Client stays provider-agnostic.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
