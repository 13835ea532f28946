package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsSafetyBlocked(t *testing.T) {
	if !IsSafetyBlocked(&SafetyBlockError{Reason: "SAFETY"}) {
		t.Error("SafetyBlockError not recognized")
	}
	if !IsSafetyBlocked(fmt.Errorf("call failed: %w", &SafetyBlockError{})) {
		t.Error("wrapped safety block not recognized")
	}
	if IsSafetyBlocked(errors.New("some other error")) {
		t.Error("unrelated error flagged as safety block")
	}
	if IsSafetyBlocked(nil) {
		t.Error("nil flagged as safety block")
	}
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"wrapped rate limit", fmt.Errorf("max retries exceeded: %w", ErrRateLimited), true},
		{"deadline", context.DeadlineExceeded, true},
		{"server error text", errors.New("API request failed with status 503: overloaded"), true},
		{"transport failure", errors.New("request failed: connection refused"), true},
		{"safety block", &SafetyBlockError{Reason: "SAFETY"}, false},
		{"bad request", errors.New("API request failed with status 400: bad prompt"), false},
		{"ordinary error", errors.New("parse failure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUnavailable(tt.err); got != tt.want {
				t.Errorf("IsUnavailable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
