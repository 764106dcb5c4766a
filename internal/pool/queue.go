package pool

import (
	"time"

	"github.com/google/uuid"
)

// waiterOutcome is what a waiter's one-shot completion channel
// eventually carries: either a context to proceed with, or an error
// the caller should surface (QueueTimeout, Shutdown).
type waiterOutcome struct {
	ctx *Context
	err error
}

// waiter is a pending scrape request parked in the RequestQueue.
type waiter struct {
	id        string
	request   ScrapeRequest
	domain    string
	arrivedAt time.Time
	deadline  time.Time
	done      chan waiterOutcome
	cancelled bool
}

// RequestQueue is a bounded FIFO of waiters. It is always traversed
// under the owning ContextPool's mutex (spec.md §5) — it has no lock
// of its own, unlike the teacher's channel-based URLQueue, because
// TryWake needs a linear scan-and-remove for the first tag-matching
// waiter rather than a strict pop.
type RequestQueue struct {
	items []*waiter
	cap   int
}

// NewRequestQueue returns an empty queue with the given backlog cap
// (enqueue+existing contexts beyond this fails with ErrPoolFull).
func NewRequestQueue(capacity int) *RequestQueue {
	return &RequestQueue{cap: capacity}
}

// Len reports the number of pending waiters.
func (q *RequestQueue) Len() int { return len(q.items) }

// Enqueue appends a new waiter, failing if contextCount+len(queue)
// would exceed the configured cap.
func (q *RequestQueue) Enqueue(req ScrapeRequest, domain string, contextCount int, maxWait time.Duration) (*waiter, error) {
	if contextCount+len(q.items) >= q.cap {
		return nil, ErrPoolFull
	}
	now := time.Now()
	w := &waiter{
		id:        uuid.NewString(),
		request:   req,
		domain:    domain,
		arrivedAt: now,
		deadline:  now.Add(maxWait),
		done:      make(chan waiterOutcome, 1),
	}
	q.items = append(q.items, w)
	return w, nil
}

// TryWake scans waiters in FIFO order and pairs the first one whose
// required tags are satisfied by ctx, removing it from the queue.
// Returns nil if no waiter matches.
func (q *RequestQueue) TryWake(ctx *Context) *waiter {
	tags := ctx.tagList()
	for i, w := range q.items {
		if w.cancelled {
			continue
		}
		if hasAllTags(tags, w.request.RequiredTags) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return w
		}
	}
	return nil
}

// ExpireDue removes and fails (with ErrQueueTimeout) every waiter
// whose deadline has passed as of now.
func (q *RequestQueue) ExpireDue(now time.Time) {
	kept := q.items[:0]
	for _, w := range q.items {
		if !w.cancelled && now.After(w.deadline) {
			w.fail(ErrQueueTimeout)
			continue
		}
		kept = append(kept, w)
	}
	q.items = kept
}

// Cancel idempotently removes w from the queue.
func (q *RequestQueue) Cancel(w *waiter) {
	if w.cancelled {
		return
	}
	w.cancelled = true
	for i, it := range q.items {
		if it == w {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
}

// DrainAll fails every pending waiter with err — used for shutdown and
// for the "drain in-flight" step of a whole-browser restart.
func (q *RequestQueue) DrainAll(err error) {
	for _, w := range q.items {
		w.fail(err)
	}
	q.items = nil
}

// PendingCountFor counts waiters whose required tags are a subset of
// tags (empty tags counts all waiters). Supplemented from the
// original's get_pending_count(tags=...).
func (q *RequestQueue) PendingCountFor(tags []string) int {
	if len(tags) == 0 {
		return len(q.items)
	}
	n := 0
	for _, w := range q.items {
		if hasAllTags(tags, w.request.RequiredTags) {
			n++
		}
	}
	return n
}

func (w *waiter) fail(err error) {
	select {
	case w.done <- waiterOutcome{err: err}:
	default:
	}
}

func (w *waiter) wake(ctx *Context) {
	select {
	case w.done <- waiterOutcome{ctx: ctx}:
	default:
	}
}

func hasAllTags(have, required []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range required {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
