package llm

import "context"

// LocalFuncClient is a deterministic, network-free Client used by tests
// and by any deployment that wants a canned/offline oracle — grounded on
// the teacher's LocalFuncClient (mcp/localfunc_client.go), which never
// makes HTTP calls because its decision flow is intercepted before
// CallWithMessages.
type LocalFuncClient struct {
	// Respond is invoked for every Complete call; tests set it to return
	// fixed JSON fixtures without a network dependency.
	Respond func(systemPrompt, userPrompt string) (string, error)
}

func (c *LocalFuncClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.Respond == nil {
		return "{}", nil
	}
	return c.Respond(systemPrompt, userPrompt)
}
