// Package triage implements the message triage and auto-reply decision policy:
// classify an inbound message, gate on the label, draft a reply when allowed,
// and hand a structured decision to the human review surface.
package triage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the social platform a message arrived from.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
)

// ParsePlatform validates a platform string.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformInstagram:
		return PlatformInstagram, nil
	case PlatformFacebook:
		return PlatformFacebook, nil
	case PlatformLinkedIn:
		return PlatformLinkedIn, nil
	default:
		return "", fmt.Errorf("unknown platform: %q", s)
	}
}

// InboundMessage is a comment/DM handed to the triage pipeline.
// Immutable once created; consumed by exactly one decision.
type InboundMessage struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Platform Platform `json:"platform"`
	Sender   string   `json:"sender"`
}

// NewInboundMessage creates a message with a fresh ID.
func NewInboundMessage(text string, platform Platform, sender string) InboundMessage {
	return InboundMessage{
		ID:       uuid.NewString(),
		Text:     text,
		Platform: platform,
		Sender:   sender,
	}
}

// Label is the classification assigned to an inbound message.
// Exhaustive and mutually exclusive: every message resolves to exactly one.
type Label string

const (
	LabelFAQ        Label = "FAQ"
	LabelEngagement Label = "Engagement"
	LabelComplaint  Label = "Complaint"
	LabelSensitive  Label = "Sensitive"
)

// labelPriority orders labels most-conservative-first for tie-breaking.
// A message matching several signals takes the highest-priority label,
// because a missed Sensitive/Complaint costs more than a spurious one.
var labelPriority = []Label{LabelSensitive, LabelComplaint, LabelFAQ, LabelEngagement}

// ParseLabel validates a label string (case-insensitive).
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "faq":
		return LabelFAQ, nil
	case "engagement":
		return LabelEngagement, nil
	case "complaint":
		return LabelComplaint, nil
	case "sensitive":
		return LabelSensitive, nil
	default:
		return "", fmt.Errorf("unknown label: %q", s)
	}
}

// Gated reports whether drafting is forbidden for this label.
func (l Label) Gated() bool {
	return l == LabelComplaint || l == LabelSensitive
}

// MostConservative returns the highest-priority label among candidates.
// Used when a backend reports multiple matching signals.
func MostConservative(candidates []Label) (Label, bool) {
	set := make(map[Label]bool, len(candidates))
	for _, c := range candidates {
		set[c] = true
	}
	for _, l := range labelPriority {
		if set[l] {
			return l, true
		}
	}
	return "", false
}

// DecisionState tracks where a message is in the triage pipeline.
type DecisionState string

const (
	StateReceived   DecisionState = "received"
	StateClassified DecisionState = "classified"
	StateDrafted    DecisionState = "drafted"
	StateEscalated  DecisionState = "escalated"
	StateDelivered  DecisionState = "delivered"
)

// EscalationReason distinguishes why a decision needs a human, so the inbox
// can render a dedicated review affordance instead of a blank reply box.
type EscalationReason string

const (
	// EscalationNone: not escalated.
	EscalationNone EscalationReason = ""

	// EscalationGatedLabel: classified Complaint or Sensitive.
	EscalationGatedLabel EscalationReason = "gated_label"

	// EscalationUnsafe: the model's safety filter refused the content,
	// or the moderation gate flagged it. Fail closed.
	EscalationUnsafe EscalationReason = "unsafe_content"

	// EscalationDraftFailed: classification succeeded but drafting could not
	// produce a reply; routed to a human rather than surfaced as an error.
	EscalationDraftFailed EscalationReason = "drafting_failed"
)

// TriageDecision is the pipeline's output, handed to the inbox UI for human
// review, edit, and eventual send-or-discard. Not persisted by this package.
//
// Invariant: Label in {Complaint, Sensitive} implies SuggestedReply == "".
// Confidence is 0 whenever SuggestedReply is empty.
type TriageDecision struct {
	MessageID      string           `json:"message_id"`
	Label          Label            `json:"label"`
	SuggestedReply string           `json:"suggested_reply"`
	Confidence     float64          `json:"confidence"`
	NeedsHuman     bool             `json:"needs_human"`
	Reason         EscalationReason `json:"reason,omitempty"`
	State          DecisionState    `json:"state"`
	FailureNote    string           `json:"failure_note,omitempty"` // Operational detail for observability, not user-facing
	DecidedAt      time.Time        `json:"decided_at"`
}
