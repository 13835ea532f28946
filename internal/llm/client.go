// Package llm provides the model-provider clients behind the triage policy.
// All reasoning work happens inside the hosted model; this package only owns
// transport, retries, and error classification.
package llm

import "context"

// Client defines the minimal interface the triage pipeline uses to call an LLM.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
