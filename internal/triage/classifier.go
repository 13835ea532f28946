package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"inboxpilot/internal/llm"
	"inboxpilot/internal/logging"
)

// Classifier assigns exactly one Label to an inbound message.
// Classification must depend only on message content, not on whether a good
// reply exists, so the same message always resolves to the same label.
type Classifier interface {
	Classify(ctx context.Context, msg InboundMessage) (Label, error)
}

const classifierSystemPrompt = `You are a message classifier for a small business's social media inbox.
Classify the inbound message into exactly one label:
- FAQ: a factual question about price, hours, address, or availability.
- Engagement: a compliment or positive feedback.
- Complaint: an expression of dissatisfaction.
- Sensitive: a mention of legal, health, safety, or discrimination topics that requires human judgment.

If the message matches more than one label, pick the most conservative:
Sensitive over Complaint over FAQ over Engagement.

Respond with JSON only: {"label": "<FAQ|Engagement|Complaint|Sensitive>"}`

// LLMClassifier delegates classification to a hosted model.
type LLMClassifier struct {
	client llm.Client
}

// NewLLMClassifier creates a classifier backed by the given client.
func NewLLMClassifier(client llm.Client) *LLMClassifier {
	return &LLMClassifier{client: client}
}

type classifierOutput struct {
	Label string `json:"label"`
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, msg InboundMessage) (Label, error) {
	timer := logging.StartTimer(logging.CategoryClassifier, "Classify")
	defer timer.Stop()

	if strings.TrimSpace(msg.Text) == "" {
		return "", &ValidationError{Field: "text", Reason: "must be non-empty"}
	}

	userPrompt := fmt.Sprintf("Message (platform %s): %q", msg.Platform, msg.Text)

	clearTag := llm.AnnotateCall(c.client, "classify", msg.ID)
	response, err := c.client.CompleteWithSystem(ctx, classifierSystemPrompt, userPrompt)
	clearTag()
	if err != nil {
		if llm.IsSafetyBlocked(err) {
			// Pass the policy signal through untouched; the orchestrator
			// maps it to an escalated decision.
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}

	label, err := c.parseResponse(response)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}

	logging.ClassifierDebug("Classified message %s as %s (text=%q)", msg.ID, label, truncateForLog(msg.Text, 80))
	return label, nil
}

// parseResponse extracts the label from the model's JSON response.
func (c *LLMClassifier) parseResponse(response string) (Label, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return "", fmt.Errorf("no JSON found in response")
	}

	var out classifierOutput
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return "", fmt.Errorf("JSON parse failed: %w", err)
	}

	label, err := ParseLabel(out.Label)
	if err != nil {
		return "", err
	}

	return label, nil
}
