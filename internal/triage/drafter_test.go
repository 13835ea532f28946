package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"inboxpilot/internal/knowledge"
	"inboxpilot/internal/llm"
)

func TestLLMDrafterRefusesGatedLabels(t *testing.T) {
	client := &scriptedClient{draftResponse: `{"reply": "should never be used", "confidence": 0.9}`}
	drafter := NewLLMDrafter(client, DrafterOptions{})

	for _, label := range []Label{LabelComplaint, LabelSensitive} {
		t.Run(string(label), func(t *testing.T) {
			_, err := drafter.Draft(context.Background(), label, testMessage("hi"), nil, "")
			var ile *InvalidLabelError
			if !errors.As(err, &ile) {
				t.Fatalf("got %v, want InvalidLabelError", err)
			}
		})
	}

	if client.draftCalls != 0 {
		t.Errorf("model called %d times for gated labels, want 0", client.draftCalls)
	}
}

func TestLLMDrafterParsesReply(t *testing.T) {
	client := &scriptedClient{draftResponse: "```json\n{\"reply\": \"Merhaba! Ürünün fiyatı 500 TL'dir.\", \"confidence\": 0.95}\n```"}
	drafter := NewLLMDrafter(client, DrafterOptions{ReplyLanguage: "tr"})

	draft, err := drafter.Draft(context.Background(), LabelFAQ, testMessage("Fiyatı nedir?"), testSnapshot().Facts, "")
	if err != nil {
		t.Fatalf("Draft failed: %v", err)
	}
	if !strings.Contains(draft.Reply, "500 TL") {
		t.Errorf("unexpected reply: %q", draft.Reply)
	}
	if draft.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", draft.Confidence)
	}
}

func TestLLMDrafterClampsConfidence(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"above one", `{"reply": "ok", "confidence": 1.7}`, 1},
		{"negative", `{"reply": "ok", "confidence": -0.2}`, 0},
		{"in range", `{"reply": "ok", "confidence": 0.42}`, 0.42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{draftResponse: tt.response}
			drafter := NewLLMDrafter(client, DrafterOptions{})

			draft, err := drafter.Draft(context.Background(), LabelFAQ, testMessage("hi"), nil, "")
			if err != nil {
				t.Fatalf("Draft failed: %v", err)
			}
			if draft.Confidence != tt.want {
				t.Errorf("confidence = %v, want %v", draft.Confidence, tt.want)
			}
		})
	}
}

func TestLLMDrafterRejectsEmptyReply(t *testing.T) {
	client := &scriptedClient{draftResponse: `{"reply": "", "confidence": 0.3}`}
	drafter := NewLLMDrafter(client, DrafterOptions{})

	_, err := drafter.Draft(context.Background(), LabelFAQ, testMessage("hi"), nil, "")
	if !errors.Is(err, ErrDraftingUnavailable) {
		t.Errorf("got %v, want ErrDraftingUnavailable", err)
	}
}

func TestLLMDrafterPromptCarriesFactsAndPolicy(t *testing.T) {
	client := &scriptedClient{draftResponse: `{"reply": "ok", "confidence": 0.8}`}
	drafter := NewLLMDrafter(client, DrafterOptions{BusinessName: "Cafe Luna"})

	facts := []knowledge.Fact{
		{ID: "hours", Text: "Open daily 09:00-22:00."},
		{ID: "price", Text: "Filter coffee is 90 TL."},
	}
	policy := "Never promise delivery dates."

	if _, err := drafter.Draft(context.Background(), LabelFAQ, testMessage("Saat kaçta açıksınız?"), facts, policy); err != nil {
		t.Fatalf("Draft failed: %v", err)
	}

	for _, want := range []string{"Open daily 09:00-22:00.", "Filter coffee is 90 TL.", "Never promise delivery dates."} {
		if !strings.Contains(client.lastUserPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLLMDrafterFollowUpModes(t *testing.T) {
	// The follow-up rule only appears in the system prompt for Engagement;
	// observable behavior beyond that belongs to the model.
	tests := []struct {
		mode     FollowUpMode
		fragment string
	}{
		{FollowUpAlways, "End the reply with one short, engaging follow-up question"},
		{FollowUpNever, "Do not ask follow-up questions"},
		{FollowUpNatural, "if it feels natural"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			drafter := NewLLMDrafter(&scriptedClient{}, DrafterOptions{FollowUp: tt.mode})

			prompt := drafter.systemPrompt(LabelEngagement)
			if !strings.Contains(prompt, tt.fragment) {
				t.Errorf("system prompt missing %q", tt.fragment)
			}

			faqPrompt := drafter.systemPrompt(LabelFAQ)
			if strings.Contains(faqPrompt, "follow-up question") {
				t.Error("follow-up rule leaked into FAQ prompt")
			}
		})
	}
}

func TestLLMDrafterAttributesTraces(t *testing.T) {
	store := llm.NewMemoryTraceStore(4)
	traced := llm.NewTracingClient(&scriptedClient{draftResponse: `{"reply": "Merhaba!", "confidence": 0.8}`}, store)
	drafter := NewLLMDrafter(traced, DrafterOptions{})

	msg := testMessage("Harika urunler!")
	if _, err := drafter.Draft(context.Background(), LabelEngagement, msg, nil, ""); err != nil {
		t.Fatalf("Draft failed: %v", err)
	}

	traces := store.Recent()
	if len(traces) != 1 {
		t.Fatalf("got %d traces, want 1", len(traces))
	}
	if traces[0].Operation != "draft" || traces[0].MessageID != msg.ID {
		t.Errorf("trace attribution: op=%q msg=%q", traces[0].Operation, traces[0].MessageID)
	}
}
