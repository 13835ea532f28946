package triage

import (
	"context"

	"golang.org/x/sync/errgroup"

	"inboxpilot/internal/knowledge"
	"inboxpilot/internal/logging"
)

// Result pairs one message with its decision or error. Messages are
// independent: one failure never aborts the batch.
type Result struct {
	Message  InboundMessage
	Decision *TriageDecision
	Err      error
}

// TriageAll runs the pipeline for every message concurrently, bounded by
// MaxParallel. Every message gets the same knowledge snapshot, so a
// hot-reload landing mid-batch cannot produce a mixed view. Results come
// back in input order regardless of completion order.
func (o *Orchestrator) TriageAll(ctx context.Context, msgs []InboundMessage, snap knowledge.Snapshot) []Result {
	timer := logging.StartTimer(logging.CategoryTriage, "TriageAll")
	defer timer.StopWithInfo()

	results := make([]Result, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxParallel)

	for i, msg := range msgs {
		i, msg := i, msg
		g.Go(func() error {
			decision, err := o.Triage(gctx, msg, snap)
			results[i] = Result{Message: msg, Decision: decision, Err: err}
			// Errors stay in the per-message result; returning one here
			// would cancel siblings.
			return nil
		})
	}

	g.Wait()
	return results
}
