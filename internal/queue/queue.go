// Package queue holds messages waiting for a human. Escalated decisions
// land here and stay until an operator resolves them with a manual reply
// or a dismissal.
package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"inboxpilot/internal/logging"
	"inboxpilot/internal/triage"
)

// Resolution records how an operator closed an item.
type Resolution string

const (
	// ResolutionReplied means the operator sent a manual reply.
	ResolutionReplied Resolution = "replied"

	// ResolutionDismissed means the item needed no reply.
	ResolutionDismissed Resolution = "dismissed"
)

// Item is one escalated message awaiting review.
type Item struct {
	Message    triage.InboundMessage
	Decision   triage.TriageDecision
	EnqueuedAt time.Time

	Resolved    bool
	Resolution  Resolution
	ManualReply string
	ResolvedAt  time.Time
}

// ReviewQueue is an in-memory queue of items needing a human. Safe for
// concurrent use; triage workers enqueue while an operator session reads.
type ReviewQueue struct {
	mu    sync.RWMutex
	items map[string]*Item // keyed by message ID

	notifyCh chan struct{} // closed-over signal, never blocks producers
}

// NewReviewQueue creates an empty queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{
		items:    make(map[string]*Item),
		notifyCh: make(chan struct{}, 1),
	}
}

// Enqueue adds an escalated decision. Re-enqueueing the same message ID
// overwrites the previous item; triage is idempotent so the newest decision
// wins.
func (q *ReviewQueue) Enqueue(msg triage.InboundMessage, decision triage.TriageDecision) {
	q.mu.Lock()
	q.items[msg.ID] = &Item{
		Message:    msg,
		Decision:   decision,
		EnqueuedAt: time.Now(),
	}
	q.mu.Unlock()

	logging.Queue("Enqueued message %s for review (reason=%s)", msg.ID, decision.Reason)

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
}

// Pending returns unresolved items ordered by enqueue time.
func (q *ReviewQueue) Pending() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var pending []Item
	for _, item := range q.items {
		if !item.Resolved {
			pending = append(pending, *item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})
	return pending
}

// Len reports the number of unresolved items.
func (q *ReviewQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, item := range q.items {
		if !item.Resolved {
			n++
		}
	}
	return n
}

// Get returns the item for a message ID, resolved or not.
func (q *ReviewQueue) Get(messageID string) (Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	item, ok := q.items[messageID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Resolve closes an item. ManualReply is required for ResolutionReplied.
func (q *ReviewQueue) Resolve(messageID string, resolution Resolution, manualReply string) error {
	if resolution == ResolutionReplied && manualReply == "" {
		return fmt.Errorf("resolution %q requires a manual reply", resolution)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[messageID]
	if !ok {
		return fmt.Errorf("no queued item for message %s", messageID)
	}
	if item.Resolved {
		return fmt.Errorf("message %s already resolved (%s)", messageID, item.Resolution)
	}

	item.Resolved = true
	item.Resolution = resolution
	item.ManualReply = manualReply
	item.ResolvedAt = time.Now()

	logging.Queue("Resolved message %s (%s)", messageID, resolution)
	return nil
}

// Notify returns a channel that receives a signal when items arrive. The
// channel is buffered and coalescing: many enqueues may produce one signal,
// and producers never block on a slow consumer.
func (q *ReviewQueue) Notify() <-chan struct{} {
	return q.notifyCh
}
