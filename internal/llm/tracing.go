package llm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"inboxpilot/internal/logging"
)

// CallTrace captures a complete LLM interaction for later review.
type CallTrace struct {
	ID        string `json:"id"`
	Operation string `json:"operation"` // classify, draft, moderate
	MessageID string `json:"message_id,omitempty"`

	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`
	Response     string `json:"response"`

	DurationMs   int64  `json:"duration_ms"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// TraceStore defines the interface for storing call traces.
type TraceStore interface {
	StoreCallTrace(trace *CallTrace) error
}

// CallAnnotator is implemented by clients that attribute traces to a
// pipeline step. Plain provider clients do not implement it.
type CallAnnotator interface {
	SetCallContext(operation, messageID string)
	ClearCallContext()
}

// AnnotateCall tags the next call on client with an operation and message ID
// when the client records traces, and is a no-op otherwise. The returned
// func clears the tag.
func AnnotateCall(client Client, operation, messageID string) func() {
	a, ok := client.(CallAnnotator)
	if !ok {
		return func() {}
	}
	a.SetCallContext(operation, messageID)
	return a.ClearCallContext
}

// TracingClient wraps any Client and captures all interactions.
// The classifier, drafter, and moderator annotate each call so failures can
// be attributed to a decision step.
type TracingClient struct {
	underlying Client
	store      TraceStore

	mu        sync.RWMutex
	operation string
	messageID string
}

// NewTracingClient creates a tracing wrapper around an existing client.
func NewTracingClient(underlying Client, store TraceStore) *TracingClient {
	return &TracingClient{
		underlying: underlying,
		store:      store,
	}
}

// SetCallContext sets the current operation context for trace attribution.
func (tc *TracingClient) SetCallContext(operation, messageID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.operation = operation
	tc.messageID = messageID
}

// ClearCallContext clears the current operation context.
func (tc *TracingClient) ClearCallContext() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.operation = ""
	tc.messageID = ""
}

// Complete implements Client.
func (tc *TracingClient) Complete(ctx context.Context, prompt string) (string, error) {
	return tc.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements Client, recording a trace for the call.
func (tc *TracingClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	tc.mu.RLock()
	operation := tc.operation
	messageID := tc.messageID
	tc.mu.RUnlock()

	start := time.Now()
	response, err := tc.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	elapsed := time.Since(start)

	trace := &CallTrace{
		ID:           uuid.NewString(),
		Operation:    operation,
		MessageID:    messageID,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Response:     response,
		DurationMs:   elapsed.Milliseconds(),
		Success:      err == nil,
		Timestamp:    start,
	}
	if err != nil {
		trace.ErrorMessage = err.Error()
	}

	if tc.store != nil {
		if storeErr := tc.store.StoreCallTrace(trace); storeErr != nil {
			logging.Get(logging.CategoryAPI).Warn("Failed to store call trace %s: %v", trace.ID, storeErr)
		}
	}

	logging.APIDebug("LLM call: op=%s, msg=%s, duration=%v, success=%v", operation, messageID, elapsed, err == nil)
	return response, err
}
