package triage

import (
	"context"
	"testing"
	"time"

	"inboxpilot/internal/knowledge"
)

// End-to-end runs of the pipeline with real classifier/drafter components
// over a scripted model, covering the canonical inbox situations.

func scenarioSnapshot() knowledge.Snapshot {
	return knowledge.Snapshot{
		Facts: []knowledge.Fact{
			{ID: "price", Text: "The product costs 500 TL."},
			{ID: "shipping", Text: "Orders ship within 2 business days."},
		},
		Policy: "Never give medical advice. Do not offer discounts.",
	}
}

func scenarioOrchestrator(client *scriptedClient, sink EscalationSink) *Orchestrator {
	classifier := NewLLMClassifier(client)
	drafter := NewLLMDrafter(client, DrafterOptions{BusinessName: "Luna Kozmetik", ReplyLanguage: "tr"})

	opts := DefaultOptions()
	opts.RetryBackoffBase = time.Millisecond
	return NewOrchestrator(classifier, drafter, opts).WithEscalationSink(sink)
}

func TestScenarioPriceQuestionGetsConfidentReply(t *testing.T) {
	client := &scriptedClient{
		classifyResponse: `{"label": "FAQ"}`,
		draftResponse:    `{"reply": "Merhaba! Ürünümüzün fiyatı 500 TL'dir.", "confidence": 0.95}`,
	}
	sink := &recordingSink{}
	orch := scenarioOrchestrator(client, sink)

	msg := NewInboundMessage("Bu ürünün fiyatı nedir?", PlatformInstagram, "ayse_91")
	decision, err := orch.Triage(context.Background(), msg, scenarioSnapshot())
	if err != nil {
		t.Fatalf("Triage failed: %v", err)
	}

	if decision.Label != LabelFAQ {
		t.Errorf("label = %s, want FAQ", decision.Label)
	}
	if decision.SuggestedReply == "" {
		t.Error("expected a drafted reply")
	}
	if decision.Confidence <= 0.9 {
		t.Errorf("confidence = %v, want > 0.9 for a direct factual answer", decision.Confidence)
	}
	if decision.NeedsHuman {
		t.Error("FAQ with a known answer escalated")
	}
	if sink.count() != 0 {
		t.Error("FAQ reached the review queue")
	}
}

func TestScenarioComplaintGetsNoAutoReply(t *testing.T) {
	client := &scriptedClient{
		classifyResponse: `{"label": "Complaint"}`,
		draftResponse:    `{"reply": "this must never appear", "confidence": 0.9}`,
	}
	sink := &recordingSink{}
	orch := scenarioOrchestrator(client, sink)

	msg := NewInboundMessage("Siparişim iki haftadır gelmedi, rezalet!", PlatformInstagram, "zeynep_a")
	decision, err := orch.Triage(context.Background(), msg, scenarioSnapshot())
	if err != nil {
		t.Fatalf("Triage failed: %v", err)
	}

	if decision.Label != LabelComplaint {
		t.Errorf("label = %s, want Complaint", decision.Label)
	}
	if decision.SuggestedReply != "" {
		t.Errorf("complaint got an auto-reply: %q", decision.SuggestedReply)
	}
	if client.draftCalls != 0 {
		t.Errorf("drafter model called %d times for a complaint", client.draftCalls)
	}
	if !decision.NeedsHuman || sink.count() != 1 {
		t.Error("complaint not routed to the review queue")
	}
}

func TestScenarioComplimentGetsEngagementReply(t *testing.T) {
	client := &scriptedClient{
		classifyResponse: `{"label": "Engagement"}`,
		draftResponse:    `{"reply": "Çok teşekkür ederiz! En sevdiğiniz ürünümüz hangisi?", "confidence": 0.88}`,
	}
	sink := &recordingSink{}
	orch := scenarioOrchestrator(client, sink)

	msg := NewInboundMessage("Harika bir ürün, bayıldım!", PlatformFacebook, "mehmet.k")
	decision, err := orch.Triage(context.Background(), msg, scenarioSnapshot())
	if err != nil {
		t.Fatalf("Triage failed: %v", err)
	}

	if decision.Label != LabelEngagement {
		t.Errorf("label = %s, want Engagement", decision.Label)
	}
	if decision.SuggestedReply == "" {
		t.Error("expected a warm reply")
	}
	if decision.NeedsHuman {
		t.Error("compliment escalated")
	}
}

func TestScenarioUnansweredQuestionDeflectsWithLowConfidence(t *testing.T) {
	client := &scriptedClient{
		classifyResponse: `{"label": "FAQ"}`,
		draftResponse:    `{"reply": "Merhaba! Bu konuda ekibimizden biri en kısa sürede size dönecek.", "confidence": 0.35}`,
	}
	sink := &recordingSink{}
	orch := scenarioOrchestrator(client, sink)

	msg := NewInboundMessage("Mağazanızda deneme kabini var mı?", PlatformInstagram, "selin.d")
	decision, err := orch.Triage(context.Background(), msg, scenarioSnapshot())
	if err != nil {
		t.Fatalf("Triage failed: %v", err)
	}

	if decision.SuggestedReply == "" {
		t.Error("deflection must still be a non-empty reply")
	}
	if decision.Confidence >= 0.5 {
		t.Errorf("confidence = %v, want < 0.5 for a deflection", decision.Confidence)
	}
	if decision.NeedsHuman {
		t.Error("a low-confidence deflection is still an auto-reply, not an escalation")
	}
}

func TestScenarioMedicalQuestionIsEscalated(t *testing.T) {
	client := &scriptedClient{
		classifyResponse: `{"label": "Sensitive"}`,
		draftResponse:    `{"reply": "this must never appear", "confidence": 0.9}`,
	}
	sink := &recordingSink{}
	orch := scenarioOrchestrator(client, sink)

	msg := NewInboundMessage("Bu krem egzamaya iyi gelir mi? Doktorum emin olamadı.", PlatformLinkedIn, "can.oz")
	decision, err := orch.Triage(context.Background(), msg, scenarioSnapshot())
	if err != nil {
		t.Fatalf("Triage failed: %v", err)
	}

	if decision.Label != LabelSensitive {
		t.Errorf("label = %s, want Sensitive", decision.Label)
	}
	if decision.SuggestedReply != "" || decision.Confidence != 0 {
		t.Error("sensitive message carries a reply or confidence")
	}
	if client.draftCalls != 0 {
		t.Error("drafter model invoked for a sensitive message")
	}
	if sink.count() != 1 {
		t.Error("sensitive message not queued for a human")
	}
}
