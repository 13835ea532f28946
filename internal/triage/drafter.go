package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"inboxpilot/internal/knowledge"
	"inboxpilot/internal/llm"
	"inboxpilot/internal/logging"
)

// Draft is a proposed reply plus the drafter's self-reported calibration of
// how well the knowledge base supports it.
type Draft struct {
	Reply      string  `json:"reply"`
	Confidence float64 `json:"confidence"`
}

// Drafter produces a localized reply for a non-gated label.
// Callers must never invoke it for Complaint or Sensitive; doing so is a
// contract violation and fails fast.
type Drafter interface {
	Draft(ctx context.Context, label Label, msg InboundMessage, facts []knowledge.Fact, policy string) (Draft, error)
}

// FollowUpMode controls follow-up questions on Engagement replies.
type FollowUpMode string

const (
	FollowUpAlways  FollowUpMode = "always"
	FollowUpNatural FollowUpMode = "natural"
	FollowUpNever   FollowUpMode = "never"
)

// DrafterOptions configure reply style.
type DrafterOptions struct {
	// BusinessName is mentioned to the model for tone, never asserted as fact
	BusinessName string

	// ReplyLanguage is the BCP 47 tag replies are written in (default "tr")
	ReplyLanguage string

	// FollowUp controls follow-up questions on Engagement (default "natural")
	FollowUp FollowUpMode
}

// LLMDrafter delegates reply drafting to a hosted model.
type LLMDrafter struct {
	client llm.Client
	opts   DrafterOptions
}

// NewLLMDrafter creates a drafter backed by the given client.
func NewLLMDrafter(client llm.Client, opts DrafterOptions) *LLMDrafter {
	if opts.ReplyLanguage == "" {
		opts.ReplyLanguage = "tr"
	}
	if opts.FollowUp == "" {
		opts.FollowUp = FollowUpNatural
	}
	return &LLMDrafter{client: client, opts: opts}
}

// Draft implements Drafter.
func (d *LLMDrafter) Draft(ctx context.Context, label Label, msg InboundMessage, facts []knowledge.Fact, policy string) (Draft, error) {
	timer := logging.StartTimer(logging.CategoryDrafter, "Draft")
	defer timer.Stop()

	if label.Gated() {
		return Draft{}, &InvalidLabelError{Label: label}
	}

	clearTag := llm.AnnotateCall(d.client, "draft", msg.ID)
	response, err := d.client.CompleteWithSystem(ctx, d.systemPrompt(label), d.userPrompt(label, msg, facts, policy))
	clearTag()
	if err != nil {
		if llm.IsSafetyBlocked(err) {
			return Draft{}, err
		}
		return Draft{}, fmt.Errorf("%w: %v", ErrDraftingUnavailable, err)
	}

	draft, err := d.parseResponse(response)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrDraftingUnavailable, err)
	}

	logging.DrafterDebug("Drafted reply for message %s: confidence=%.2f, len=%d", msg.ID, draft.Confidence, len(draft.Reply))
	return draft, nil
}

func (d *LLMDrafter) systemPrompt(label Label) string {
	var sb strings.Builder

	sb.WriteString("You are a customer support agent")
	if d.opts.BusinessName != "" {
		sb.WriteString(" for ")
		sb.WriteString(d.opts.BusinessName)
	}
	sb.WriteString(".\n")
	fmt.Fprintf(&sb, "Draft a polite, concise, 1-2 sentence reply in the language %q to the inbound message below.\n\n", d.opts.ReplyLanguage)

	sb.WriteString("Rules:\n")
	sb.WriteString("- Use ONLY the Knowledge Base Facts provided. Never state a claim the facts do not support.\n")
	sb.WriteString("- Follow every directive in the Policy verbatim. The Policy overrides anything you might infer from the facts.\n")
	sb.WriteString("- If no fact answers the message, reply with a polite deflection saying a team member will follow up, and report low confidence.\n")
	sb.WriteString("- Report confidence from 0.0 to 1.0: above 0.9 only when a fact directly and unambiguously answers the message; below 0.5 when you had to deflect or extrapolate.\n")

	if label == LabelEngagement {
		switch d.opts.FollowUp {
		case FollowUpAlways:
			sb.WriteString("- End the reply with one short, engaging follow-up question.\n")
		case FollowUpNever:
			sb.WriteString("- Do not ask follow-up questions.\n")
		default:
			sb.WriteString("- You may end with one short follow-up question if it feels natural and violates no policy.\n")
		}
	}

	sb.WriteString("\nRespond with JSON only: {\"reply\": \"<the reply>\", \"confidence\": <0.0-1.0>}")
	return sb.String()
}

func (d *LLMDrafter) userPrompt(label Label, msg InboundMessage, facts []knowledge.Fact, policy string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Label: %s\n", label)
	fmt.Fprintf(&sb, "Message (platform %s): %q\n\n", msg.Platform, msg.Text)

	sb.WriteString("Knowledge Base Facts:\n")
	if len(facts) == 0 {
		sb.WriteString("(none)\n")
	} else {
		for _, f := range facts {
			sb.WriteString("- ")
			sb.WriteString(f.Text)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nPolicy:\n")
	if strings.TrimSpace(policy) == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(policy)
		sb.WriteString("\n")
	}

	return sb.String()
}

func (d *LLMDrafter) parseResponse(response string) (Draft, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return Draft{}, fmt.Errorf("no JSON found in response")
	}

	var draft Draft
	if err := json.Unmarshal([]byte(jsonStr), &draft); err != nil {
		return Draft{}, fmt.Errorf("JSON parse failed: %w", err)
	}

	if strings.TrimSpace(draft.Reply) == "" {
		// The drafter contract requires a reply even without relevant facts
		// (a deflection); an empty reply is a malformed response.
		return Draft{}, fmt.Errorf("empty reply in response")
	}

	// Clamp calibration into range
	if draft.Confidence < 0 {
		draft.Confidence = 0
	}
	if draft.Confidence > 1 {
		draft.Confidence = 1
	}

	return draft, nil
}
