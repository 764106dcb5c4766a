package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a Context's lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusBusy       Status = "busy"
	StatusRecreating Status = "recreating"
	StatusDestroyed  Status = "destroyed"
)

// ContextSnapshot is a point-in-time, lock-free copy of a Context's
// observable state, used by the eviction scorer and the API layer so
// neither has to hold the pool mutex longer than the copy.
type ContextSnapshot struct {
	ID                string
	Tags              []string
	Proxy             string
	Persistent        bool
	Status            Status
	Busy              bool
	CreatedAt         time.Time
	LastUsedAt        time.Time
	TotalRequests     int64
	TotalErrors       int64
	ConsecutiveErrors int
	StoragePath       string
	CDPTargetURL      string
}

// Context is the unit of isolation: one browser-context handle, its
// proxy, tags, persistence path and health counters. All mutation
// happens under the owning ContextPool's single mutex, except the tag
// set, which Context's own mu guards, and the RateLimiter, which has
// its own lock (rate-limit reads/writes are not part of the selection
// critical section's memory, they're read inside it but mutated
// around driver calls).
type Context struct {
	ID          string
	Tags        map[string]struct{}
	Proxy       string
	Persistent  bool
	StoragePath string

	Status Status

	CreatedAt  time.Time
	LastUsedAt time.Time

	TotalRequests     int64
	TotalErrors       int64
	ConsecutiveErrors int

	DriverHandle interface{}
	CDPTargetURL string

	RateLimit *RateLimiter

	mu sync.Mutex
}

// NewContext constructs a context with a fresh id in recreating state;
// it becomes idle once the driver has created its handle.
func NewContext(proxy string, persistent bool, storagePath string, tags []string) *Context {
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	now := time.Now()
	return &Context{
		ID:          uuid.NewString(),
		Tags:        tagSet,
		Proxy:       proxy,
		Persistent:  persistent,
		StoragePath: storagePath,
		Status:      StatusRecreating,
		CreatedAt:   now,
		LastUsedAt:  now,
		RateLimit:   NewRateLimiter(),
	}
}

// HasTags reports whether c carries every tag in required.
func (c *Context) HasTags(required []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range required {
		if _, ok := c.Tags[t]; !ok {
			return false
		}
	}
	return true
}

// AddTags merges tags into the context's tag set.
func (c *Context) AddTags(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		c.Tags[t] = struct{}{}
	}
}

// RemoveTags deletes tags from the context's tag set.
func (c *Context) RemoveTags(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		delete(c.Tags, t)
	}
}

func (c *Context) tagList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.Tags))
	for t := range c.Tags {
		out = append(out, t)
	}
	return out
}

// Assign transitions an idle context to busy. Precondition: the
// caller holds the pool mutex and has already checked Status == idle.
func (c *Context) Assign() {
	c.Status = StatusBusy
	c.LastUsedAt = time.Now()
	c.TotalRequests++
}

// Outcome classifies how a dispatched scrape ended, for Release.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeTargetClosed
)

// Release transitions a busy context back to idle (or recreating, if
// the error threshold was just crossed), updating health counters.
// Precondition: caller holds the pool mutex, Status == busy.
func (c *Context) Release(outcome Outcome, maxConsecutiveErrors int) (needsRecreate bool) {
	switch outcome {
	case OutcomeSuccess:
		c.ConsecutiveErrors = 0
		c.Status = StatusIdle
		return false
	default:
		c.ConsecutiveErrors++
		c.TotalErrors++
		if c.ConsecutiveErrors >= maxConsecutiveErrors {
			c.Status = StatusRecreating
			return true
		}
		c.Status = StatusIdle
		return false
	}
}

// Snapshot copies the fields the eviction scorer and API layer need.
func (c *Context) Snapshot() ContextSnapshot {
	c.mu.Lock()
	tags := make([]string, 0, len(c.Tags))
	for t := range c.Tags {
		tags = append(tags, t)
	}
	c.mu.Unlock()
	return ContextSnapshot{
		ID:                c.ID,
		Tags:              tags,
		Proxy:             c.Proxy,
		Persistent:        c.Persistent,
		Status:            c.Status,
		Busy:              c.Status != StatusIdle,
		CreatedAt:         c.CreatedAt,
		LastUsedAt:        c.LastUsedAt,
		TotalRequests:     c.TotalRequests,
		TotalErrors:       c.TotalErrors,
		ConsecutiveErrors: c.ConsecutiveErrors,
		StoragePath:       c.StoragePath,
		CDPTargetURL:      c.CDPTargetURL,
	}
}
