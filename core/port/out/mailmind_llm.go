package out

import "context"

// LLMClient is a text completion collaborator. An empty completion is
// returned as an error so callers can fall back uniformly.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
