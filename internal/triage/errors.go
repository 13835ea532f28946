package triage

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before any external call.
// Surfaced to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is an input validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Sentinel errors for external service failures. Recoverable via
// caller-controlled retry; exhausted retries surface as TriageError.
var (
	ErrClassificationUnavailable = errors.New("classification service unavailable")
	ErrDraftingUnavailable       = errors.New("drafting service unavailable")
)

// InvalidLabelError is a contract violation: the Drafter was invoked on a
// gated label. This is a programming error, not an operational one.
type InvalidLabelError struct {
	Label Label
}

func (e *InvalidLabelError) Error() string {
	return fmt.Sprintf("drafting invoked for gated label %q", e.Label)
}

// Stage names the pipeline step a TriageError originated from.
type Stage string

const (
	StageClassify Stage = "classify"
	StageDraft    Stage = "draft"
)

// TriageError wraps the cause of a failed decision. The orchestrator never
// guesses a label, so a classify-stage failure fails the whole decision.
type TriageError struct {
	Stage Stage
	Cause error
}

func (e *TriageError) Error() string {
	return fmt.Sprintf("triage failed at %s: %v", e.Stage, e.Cause)
}

func (e *TriageError) Unwrap() error { return e.Cause }
