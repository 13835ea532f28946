package triage

import (
	"context"
	"errors"
	"strings"
	"time"

	"inboxpilot/internal/knowledge"
	"inboxpilot/internal/llm"
	"inboxpilot/internal/logging"
)

// SafetyGate screens inbound text before drafting. Implemented by the
// moderation package; optional.
type SafetyGate interface {
	Check(ctx context.Context, text string) (safe bool, reason string, err error)
}

// EscalationSink receives decisions that need a human. Implemented by the
// review queue; optional.
type EscalationSink interface {
	Enqueue(msg InboundMessage, decision TriageDecision)
}

// FactRanker narrows the knowledge snapshot to the facts relevant to a
// message. Implemented by knowledge.Ranker; optional (nil means all facts).
type FactRanker interface {
	Rank(ctx context.Context, messageText string, snap knowledge.Snapshot) []knowledge.RankedFact
}

// DraftFailureMode selects what happens when drafting fails after a
// successful, non-gated classification.
type DraftFailureMode string

const (
	// DraftFailureEscalate routes the message to the human queue (default).
	// The reviewer sees "needs human", not a dead-end error.
	DraftFailureEscalate DraftFailureMode = "escalate"

	// DraftFailureSurface returns the error to the caller instead.
	DraftFailureSurface DraftFailureMode = "fail"
)

// Options configure the orchestrator.
type Options struct {
	// CallTimeout bounds each external model call
	CallTimeout time.Duration

	// MaxRetries for transient classification/drafting failures
	MaxRetries int

	// RetryBackoffBase is the initial backoff, doubled per retry
	RetryBackoffBase time.Duration

	// OnDraftFailure selects failure handling after classification
	OnDraftFailure DraftFailureMode

	// ModerateInbound runs the safety gate on inbound text before drafting
	ModerateInbound bool

	// MaxParallel bounds TriageAll concurrency
	MaxParallel int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		CallTimeout:      30 * time.Second,
		MaxRetries:       2,
		RetryBackoffBase: time.Second,
		OnDraftFailure:   DraftFailureEscalate,
		MaxParallel:      4,
	}
}

// Orchestrator sequences Classifier -> Drafter and enforces the gating
// invariant: no reply is ever drafted for Complaint or Sensitive messages.
// That invariant lives here, structurally, by never invoking the Drafter on
// a gated label - not in either sub-component.
type Orchestrator struct {
	classifier Classifier
	drafter    Drafter
	gate       SafetyGate     // optional
	sink       EscalationSink // optional
	ranker     FactRanker     // optional
	opts       Options
}

// NewOrchestrator creates an orchestrator with the required contracts.
func NewOrchestrator(classifier Classifier, drafter Drafter, opts Options) *Orchestrator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.RetryBackoffBase <= 0 {
		opts.RetryBackoffBase = time.Second
	}
	if opts.OnDraftFailure == "" {
		opts.OnDraftFailure = DraftFailureEscalate
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &Orchestrator{
		classifier: classifier,
		drafter:    drafter,
		opts:       opts,
	}
}

// WithSafetyGate attaches a pre-draft moderation gate.
func (o *Orchestrator) WithSafetyGate(gate SafetyGate) *Orchestrator {
	o.gate = gate
	return o
}

// WithEscalationSink attaches the human review queue.
func (o *Orchestrator) WithEscalationSink(sink EscalationSink) *Orchestrator {
	o.sink = sink
	return o
}

// WithFactRanker attaches relevance ranking for the knowledge snapshot.
func (o *Orchestrator) WithFactRanker(ranker FactRanker) *Orchestrator {
	o.ranker = ranker
	return o
}

// Triage runs the full decision pipeline for one message against a
// point-in-time knowledge snapshot:
//
//	Received -> Classified -> {Drafted | Escalated} -> Delivered
//
// The classifier is invoked exactly once (transient failures are retried,
// never re-decided after the label is fixed). Cancellation is cooperative:
// an in-flight model call completes, but its result is suppressed if the
// caller's context is already done.
func (o *Orchestrator) Triage(ctx context.Context, msg InboundMessage, snap knowledge.Snapshot) (*TriageDecision, error) {
	timer := logging.StartTimer(logging.CategoryTriage, "Triage")
	defer timer.Stop()

	// Received
	if strings.TrimSpace(msg.Text) == "" {
		return nil, &ValidationError{Field: "text", Reason: "must be non-empty"}
	}
	if _, err := ParsePlatform(string(msg.Platform)); err != nil {
		return nil, &ValidationError{Field: "platform", Reason: err.Error()}
	}

	logging.TriageDebug("Message %s received from %s on %s", msg.ID, msg.Sender, msg.Platform)

	// Classified
	label, err := o.classifyWithRetry(ctx, msg)
	if err != nil {
		if llm.IsSafetyBlocked(err) {
			// The model refused to even look at the content: fail closed.
			logging.Triage("Message %s blocked by safety filter during classification, escalating", msg.ID)
			return o.escalate(msg, LabelSensitive, EscalationUnsafe, err.Error()), nil
		}
		return nil, &TriageError{Stage: StageClassify, Cause: err}
	}
	if done := ctx.Err(); done != nil {
		// Caller walked away mid-classification; suppress delivery.
		logging.TriageDebug("Message %s triage cancelled after classification, result suppressed", msg.ID)
		return nil, done
	}

	logging.Triage("Message %s classified as %s", msg.ID, label)

	// Escalated: gated labels never reach the drafter.
	if label.Gated() {
		return o.escalate(msg, label, EscalationGatedLabel, ""), nil
	}

	// Optional moderation gate before drafting
	if o.opts.ModerateInbound && o.gate != nil {
		safe, reason, gateErr := o.gate.Check(ctx, msg.Text)
		if gateErr != nil {
			logging.Get(logging.CategoryTriage).Warn("Moderation gate failed for message %s: %v (continuing)", msg.ID, gateErr)
		} else if !safe {
			logging.Triage("Message %s flagged unsafe by moderation gate: %s", msg.ID, reason)
			return o.escalate(msg, label, EscalationUnsafe, reason), nil
		}
	}

	// Drafted
	facts := snap.Facts
	if o.ranker != nil {
		facts = knowledge.Facts(o.ranker.Rank(ctx, msg.Text, snap))
	}

	draft, err := o.draftWithRetry(ctx, label, msg, facts, snap.Policy)
	if err != nil {
		if llm.IsSafetyBlocked(err) {
			logging.Triage("Message %s blocked by safety filter during drafting, escalating", msg.ID)
			return o.escalate(msg, label, EscalationUnsafe, err.Error()), nil
		}
		if o.opts.OnDraftFailure == DraftFailureSurface {
			return nil, &TriageError{Stage: StageDraft, Cause: err}
		}
		// Downgrade to an escalation-shaped decision rather than surfacing a
		// half-formed reply; the failure is recorded for observability.
		logging.Get(logging.CategoryTriage).Warn("Drafting failed for message %s, downgrading to escalation: %v", msg.ID, err)
		return o.escalate(msg, label, EscalationDraftFailed, err.Error()), nil
	}
	if done := ctx.Err(); done != nil {
		logging.TriageDebug("Message %s triage cancelled after drafting, result suppressed", msg.ID)
		return nil, done
	}

	// Delivered
	decision := &TriageDecision{
		MessageID:      msg.ID,
		Label:          label,
		SuggestedReply: draft.Reply,
		Confidence:     draft.Confidence,
		State:          StateDelivered,
		DecidedAt:      time.Now(),
	}

	logging.Triage("Message %s drafted: label=%s, confidence=%.2f", msg.ID, label, draft.Confidence)
	return decision, nil
}

// escalate builds the escalation-shaped decision, hands it to the human
// queue, and marks it delivered. Confidence is reported as 0 whenever the
// reply is empty.
func (o *Orchestrator) escalate(msg InboundMessage, label Label, reason EscalationReason, note string) *TriageDecision {
	decision := &TriageDecision{
		MessageID:      msg.ID,
		Label:          label,
		SuggestedReply: "",
		Confidence:     0,
		NeedsHuman:     true,
		Reason:         reason,
		State:          StateEscalated,
		FailureNote:    note,
		DecidedAt:      time.Now(),
	}

	if o.sink != nil {
		o.sink.Enqueue(msg, *decision)
	}

	logging.Triage("Message %s escalated: label=%s, reason=%s", msg.ID, label, reason)
	decision.State = StateDelivered
	return decision
}

// classifyWithRetry retries transient classification failures with
// exponential backoff. Validation errors and safety blocks pass through
// untouched - neither is retryable.
func (o *Orchestrator) classifyWithRetry(ctx context.Context, msg InboundMessage) (Label, error) {
	var lastErr error

	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.TriageDebug("Retrying classification for message %s (attempt %d)", msg.ID, attempt)
			if err := o.backoff(ctx, attempt); err != nil {
				return "", lastErr
			}
		}

		callCtx, cancel := o.callContext(ctx)
		label, err := o.classifier.Classify(callCtx, msg)
		cancel()
		if err == nil {
			return label, nil
		}
		lastErr = err

		if IsValidationError(err) || llm.IsSafetyBlocked(err) {
			return "", err
		}
		// Only service unavailability is worth another attempt; anything
		// else surfaces immediately.
		if !errors.Is(err, ErrClassificationUnavailable) && !llm.IsUnavailable(err) {
			return "", err
		}
	}

	return "", lastErr
}

// draftWithRetry mirrors classifyWithRetry for the drafting call.
// A contract violation (gated label) is a programming error and never retried.
func (o *Orchestrator) draftWithRetry(ctx context.Context, label Label, msg InboundMessage, facts []knowledge.Fact, policy string) (Draft, error) {
	var lastErr error

	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.TriageDebug("Retrying drafting for message %s (attempt %d)", msg.ID, attempt)
			if err := o.backoff(ctx, attempt); err != nil {
				return Draft{}, lastErr
			}
		}

		callCtx, cancel := o.callContext(ctx)
		draft, err := o.drafter.Draft(callCtx, label, msg, facts, policy)
		cancel()
		if err == nil {
			return draft, nil
		}
		lastErr = err

		if llm.IsSafetyBlocked(err) {
			return Draft{}, err
		}
		var ile *InvalidLabelError
		if errors.As(err, &ile) {
			return Draft{}, err
		}
		if !errors.Is(err, ErrDraftingUnavailable) && !llm.IsUnavailable(err) {
			return Draft{}, err
		}
	}

	return Draft{}, lastErr
}

// callContext bounds one external call. The caller's cancellation is
// deliberately detached: once a model call starts it runs to completion (or
// timeout); suppression of the result happens after the call returns.
func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallTimeout)
}

// backoff sleeps for base * 2^(attempt-1), abandoning retries if the caller
// cancels while waiting.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) error {
	delay := o.opts.RetryBackoffBase * time.Duration(1<<uint(attempt-1))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
