package queue

import (
	"testing"
	"time"

	"inboxpilot/internal/triage"
)

func escalated(text string) (triage.InboundMessage, triage.TriageDecision) {
	msg := triage.NewInboundMessage(text, triage.PlatformInstagram, "user")
	decision := triage.TriageDecision{
		MessageID:  msg.ID,
		Label:      triage.LabelComplaint,
		NeedsHuman: true,
		Reason:     triage.EscalationGatedLabel,
		State:      triage.StateEscalated,
		DecidedAt:  time.Now(),
	}
	return msg, decision
}

func TestEnqueueAndPendingOrder(t *testing.T) {
	q := NewReviewQueue()

	m1, d1 := escalated("first complaint")
	m2, d2 := escalated("second complaint")
	q.Enqueue(m1, d1)
	time.Sleep(time.Millisecond) // distinct enqueue times
	q.Enqueue(m2, d2)

	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Message.ID != m1.ID || pending[1].Message.ID != m2.ID {
		t.Error("pending items not in enqueue order")
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestResolveRemovesFromPending(t *testing.T) {
	q := NewReviewQueue()
	msg, decision := escalated("complaint")
	q.Enqueue(msg, decision)

	if err := q.Resolve(msg.ID, ResolutionReplied, "Sorry about that, we will fix it."); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if q.Len() != 0 {
		t.Errorf("Len = %d after resolve, want 0", q.Len())
	}

	item, ok := q.Get(msg.ID)
	if !ok {
		t.Fatal("resolved item vanished")
	}
	if !item.Resolved || item.Resolution != ResolutionReplied || item.ManualReply == "" {
		t.Errorf("resolution not recorded: %+v", item)
	}
}

func TestResolveValidation(t *testing.T) {
	q := NewReviewQueue()
	msg, decision := escalated("complaint")
	q.Enqueue(msg, decision)

	if err := q.Resolve(msg.ID, ResolutionReplied, ""); err == nil {
		t.Error("replied resolution accepted without a reply")
	}
	if err := q.Resolve("no-such-id", ResolutionDismissed, ""); err == nil {
		t.Error("unknown message resolved")
	}

	if err := q.Resolve(msg.ID, ResolutionDismissed, ""); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if err := q.Resolve(msg.ID, ResolutionDismissed, ""); err == nil {
		t.Error("double resolve accepted")
	}
}

func TestReEnqueueOverwrites(t *testing.T) {
	q := NewReviewQueue()
	msg, decision := escalated("complaint")
	q.Enqueue(msg, decision)

	decision.Reason = triage.EscalationUnsafe
	q.Enqueue(msg, decision)

	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
	item, _ := q.Get(msg.ID)
	if item.Decision.Reason != triage.EscalationUnsafe {
		t.Errorf("reason = %q, want newest decision", item.Decision.Reason)
	}
}

func TestNotifyCoalescesAndNeverBlocks(t *testing.T) {
	q := NewReviewQueue()

	// Many enqueues with no consumer must not block.
	for i := 0; i < 10; i++ {
		msg, decision := escalated("complaint")
		q.Enqueue(msg, decision)
	}

	select {
	case <-q.Notify():
	default:
		t.Error("no signal pending after enqueues")
	}
}
