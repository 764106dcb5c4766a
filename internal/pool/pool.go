// Package pool implements the context pool: a bounded set of isolated
// browser sessions behind a single externally controlled browser
// process, fairly multiplexing scrape requests onto them with tag
// affinity, per-domain rate limiting, health tracking, eviction and
// whole-browser restart.
package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashcrew/ctxpoold/internal/logging"
)

// Config are the tunables from spec.md §6 that shape pool behavior.
type Config struct {
	MaxContexts           int
	DefaultDomainDelay    time.Duration
	MaxQueueWait          time.Duration
	MaxConsecutiveErrors  int
	PersistentContextsDir string
	ShutdownGrace         time.Duration
	EvictionWeights       EvictionWeights
}

// DefaultConfig mirrors spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxContexts:           10,
		DefaultDomainDelay:    time.Second,
		MaxQueueWait:          300 * time.Second,
		MaxConsecutiveErrors:  5,
		PersistentContextsDir: "./data/contexts",
		ShutdownGrace:         30 * time.Second,
		EvictionWeights:       DefaultEvictionWeights(),
	}
}

// state the pool as a whole can be in, beyond individual contexts'.
type poolState int

const (
	stateRunning poolState = iota
	stateRestarting
	stateDegraded
	stateShuttingDown
)

// restartRetryBackoff is the bounded retry budget for whole-browser
// restart (spec.md §4.5 step 5): one attempt per entry, 3 in all. A
// failed attempt waits its entry's duration before the next one (1s,
// then 2s); no wait follows the last attempt, so the 4s entry is not
// slept.
var restartRetryBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// ContextPool is the orchestrator: admission, selection, assignment,
// release, recreation, and the whole-browser restart protocol. A
// single mutex protects contexts, the queue and the generation
// counter; each context's rate-limit table has its own lock and is
// written outside this mutex. Driver calls always happen with the
// mutex released (spec.md §5).
type ContextPool struct {
	cfg     Config
	driver  BrowserDriver
	metrics *Metrics

	mu         sync.Mutex
	contexts   map[string]*Context
	queue      *RequestQueue
	generation uint64
	state      poolState

	wakeCh    chan struct{} // edge-triggered: pinged whenever a context goes idle
	resources *ResourceMonitor
}

// SetResourceMonitor attaches a host resource watcher that gates
// admission of brand-new contexts (not reuse of existing idle ones) on
// host memory/CPU headroom, independent of MaxContexts. Optional: a
// nil or never-set monitor means no extra gating.
func (p *ContextPool) SetResourceMonitor(rm *ResourceMonitor) {
	p.mu.Lock()
	p.resources = rm
	p.mu.Unlock()
}

// ResourcePressure reports the attached resource monitor's pressure
// level, or "normal" if none is attached.
func (p *ContextPool) ResourcePressure() string {
	p.mu.Lock()
	rm := p.resources
	p.mu.Unlock()
	if rm == nil {
		return "normal"
	}
	return rm.Pressure()
}

// New constructs a pool bound to driver. Call Start before serving
// requests.
func New(cfg Config, drv BrowserDriver, metrics *Metrics) *ContextPool {
	return &ContextPool{
		cfg:      cfg,
		driver:   drv,
		metrics:  metrics,
		contexts: make(map[string]*Context),
		queue:    NewRequestQueue(cfg.MaxContexts * 4),
		wakeCh:   make(chan struct{}, 1),
	}
}

// Start launches the underlying browser, reconnects any persistent
// contexts left over from a prior run (discovered via their
// meta.json sidecars), and begins serving.
func (p *ContextPool) Start(ctx context.Context) error {
	p.mu.Lock()
	p.state = stateRunning
	p.mu.Unlock()
	if err := p.driver.Launch(ctx); err != nil {
		return err
	}
	p.restorePersisted(ctx)
	return nil
}

// restorePersisted recreates driver-backed contexts for every
// meta.json sidecar under PersistentContextsDir, up to MaxContexts.
// Failures are logged and skipped rather than failing Start: a
// corrupted or stale sidecar shouldn't block the whole service.
func (p *ContextPool) restorePersisted(ctx context.Context) {
	if p.cfg.PersistentContextsDir == "" {
		return
	}
	metas := discoverPersistedContexts(p.cfg.PersistentContextsDir)
	for _, m := range metas {
		p.mu.Lock()
		if len(p.contexts) >= p.cfg.MaxContexts {
			p.mu.Unlock()
			logging.WithContext(m.ID).Warn().Msg("skipping restore: pool at capacity")
			continue
		}
		storagePath := filepath.Join(p.cfg.PersistentContextsDir, m.ID)
		c := NewContext(m.Proxy, true, storagePath, m.Tags)
		c.ID = m.ID
		c.CreatedAt = m.CreatedAt
		p.contexts[m.ID] = c
		p.mu.Unlock()

		if err := p.finishCreate(ctx, c); err != nil {
			logging.WithContext(m.ID).Warn().Err(err).Msg("restoring persisted context failed")
			p.mu.Lock()
			delete(p.contexts, c.ID)
			p.mu.Unlock()
			continue
		}
		logging.WithContext(c.ID).Info().Msg("restored persistent context")
	}
}

// Scrape is the pool's single entry point: select or wait for an
// eligible context, dispatch the request to the driver, update
// health, and return the result. Grounded on
// original_source/api/scrape.py's select-or-evict-or-queue-then-dispatch
// flow and spec.md §4.5's numbered selection algorithm.
func (p *ContextPool) Scrape(ctx context.Context, req ScrapeRequest) (ScrapeResult, error) {
	domain, err := ExtractDomain(req.URL)
	if err != nil {
		return ScrapeResult{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	c, generation, err := p.acquire(ctx, req, domain)
	if err != nil {
		return ScrapeResult{}, err
	}

	// A context handed over by wakeNext has not been through acquire's
	// readiness check, so the domain spacing is honored here.
	if wait := time.Until(c.RateLimit.NextAvailable(domain)); wait > 0 {
		time.Sleep(wait)
	}

	// A request without DomainDelay is spaced by the pool default; an
	// earlier request's override is not remembered.
	delay := req.DomainDelay
	if delay == 0 {
		delay = p.cfg.DefaultDomainDelay
	}
	c.RateLimit.MarkUsed(domain, delay)

	timeout := req.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	result, execErr := p.driver.Execute(execCtx, c.DriverHandle, req, timeout)
	cancel()
	p.metrics.observeScrapeSeconds(time.Since(start).Seconds())

	result.ContextID = c.ID
	outcome, retErr := p.classifyOutcome(execErr, timeout)
	if retErr != nil {
		result.Success = false
		result.Error = retErr.Error()
	}

	p.finishScrape(c, generation, outcome)

	if outcome != OutcomeTargetClosed && p.Generation() != generation {
		// A whole-browser restart began while this scrape was in flight.
		result.Success = false
		retErr = ErrBrowserRestarting
		result.Error = retErr.Error()
	}

	if outcome == OutcomeTargetClosed {
		go p.restartBrowser(context.Background())
		if retErr == nil {
			retErr = ErrTargetClosed
		}
	}

	if retErr != nil {
		p.metrics.incError(errorKind(retErr))
		return result, retErr
	}
	return result, nil
}

func (p *ContextPool) classifyOutcome(err error, timeout time.Duration) (Outcome, error) {
	if err == nil {
		return OutcomeSuccess, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeError, ErrScrapeTimeout
	}
	var tc TargetClosedMarker
	if errors.As(err, &tc) {
		return OutcomeTargetClosed, nil
	}
	return OutcomeError, fmt.Errorf("%w: %v", ErrDriverError, err)
}

// errorKind labels a returned error for the errors_total metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrScrapeTimeout):
		return "scrape_timeout"
	case errors.Is(err, ErrTargetClosed):
		return "target_closed"
	case errors.Is(err, ErrDriverError):
		return "driver_error"
	default:
		return "other"
	}
}

// TargetClosedMarker lets the pool recognize internal/driver's
// TargetClosedError without importing internal/driver (which would
// create an import cycle, since that package depends on this one for
// request/result types). Driver errors that represent a closed
// browser target implement this.
type TargetClosedMarker interface {
	error
	TargetClosed() bool
}

// acquire runs spec.md §4.5's selection algorithm until a context is
// assigned or an error (PoolFull, QueueTimeout, BrowserUnavailable,
// Shutdown) is returned.
func (p *ContextPool) acquire(ctx context.Context, req ScrapeRequest, domain string) (*Context, uint64, error) {
	for {
		p.mu.Lock()
		if p.state == stateShuttingDown {
			p.mu.Unlock()
			return nil, 0, ErrShutdown
		}
		if p.state == stateDegraded {
			p.mu.Unlock()
			return nil, 0, ErrBrowserUnavailable
		}

		candidates := p.idleCandidates(req.RequiredTags)
		if len(candidates) == 0 {
			canAdmit, reason := true, ""
			if p.resources != nil {
				canAdmit, reason = p.resources.CanAdmit()
			}
			if len(p.contexts) < p.cfg.MaxContexts && canAdmit {
				c := p.startCreate(req)
				p.mu.Unlock()
				if err := p.finishCreate(ctx, c); err != nil {
					return nil, 0, err
				}
				p.mu.Lock()
				p.metrics.incAdmission()
				p.mu.Unlock()
				continue
			}
			if !canAdmit && len(p.contexts) == 0 {
				p.mu.Unlock()
				return nil, 0, fmt.Errorf("%w: %s", ErrBrowserUnavailable, reason)
			}
			if p.evictOneIdle() {
				p.mu.Unlock()
				continue
			}
			w, err := p.queue.Enqueue(req, domain, len(p.contexts), p.cfg.MaxQueueWait)
			p.metrics.setQueueDepth(p.queue.Len())
			p.mu.Unlock()
			if err != nil {
				return nil, 0, err
			}
			return p.waitForWake(ctx, w)
		}

		ready, waiting := p.partitionReady(candidates, domain)
		if len(ready) > 0 {
			chosen := p.pickBest(ready)
			chosen.Assign()
			gen := p.generation
			p.mu.Unlock()
			return chosen, gen, nil
		}

		next := p.soonestNextAvailable(waiting, domain)
		p.mu.Unlock()

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(wait):
		case <-p.wakeCh:
		}
	}
}

func (p *ContextPool) idleCandidates(requiredTags []string) []*Context {
	out := make([]*Context, 0, len(p.contexts))
	for _, c := range p.contexts {
		if c.Status == StatusIdle && c.HasTags(requiredTags) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (p *ContextPool) partitionReady(candidates []*Context, domain string) (ready, waiting []*Context) {
	now := time.Now()
	for _, c := range candidates {
		if !c.RateLimit.NextAvailable(domain).After(now) {
			ready = append(ready, c)
		} else {
			waiting = append(waiting, c)
		}
	}
	return ready, waiting
}

// pickBest implements step 4: among ready candidates, the highest
// eviction score wins (best to keep busy), tie-break oldest
// last_used_at to spread load.
func (p *ContextPool) pickBest(ready []*Context) *Context {
	now := time.Now()
	best := ready[0]
	bestScore := Score(best.Snapshot(), now, p.cfg.EvictionWeights)
	for _, c := range ready[1:] {
		sc := Score(c.Snapshot(), now, p.cfg.EvictionWeights)
		switch {
		case sc > bestScore:
			best, bestScore = c, sc
		case sc == bestScore && c.LastUsedAt.Before(best.LastUsedAt):
			best, bestScore = c, sc
		}
	}
	return best
}

func (p *ContextPool) soonestNextAvailable(waiting []*Context, domain string) time.Time {
	best := waiting[0].RateLimit.NextAvailable(domain)
	for _, c := range waiting[1:] {
		if t := c.RateLimit.NextAvailable(domain); t.Before(best) {
			best = t
		}
	}
	return best
}

// evictOneIdle destroys the lowest-scoring idle, non-protected context
// to free a slot for a new one. Called with p.mu held. Returns false
// if no idle context is evictable (pool is full of busy contexts —
// admission-time eviction never touches those).
func (p *ContextPool) evictOneIdle() bool {
	snaps := make([]ContextSnapshot, 0, len(p.contexts))
	for _, c := range p.contexts {
		if c.Status == StatusIdle {
			snaps = append(snaps, c.Snapshot())
		}
	}
	victim, ok := pickMostEvictable(snaps, time.Now(), p.cfg.EvictionWeights)
	if !ok {
		return false
	}
	c := p.contexts[victim.ID]
	delete(p.contexts, c.ID)
	p.metrics.incEviction()
	go func() {
		_ = p.driver.CloseContext(context.Background(), c.DriverHandle)
	}()
	return true
}

// startCreate reserves a slot and returns a placeholder context in
// recreating state; the driver call to actually create it happens
// without the lock held (finishCreate).
func (p *ContextPool) startCreate(req ScrapeRequest) *Context {
	c := NewContext(req.Proxy, req.Persistent, "", req.RequiredTags)
	if req.Persistent {
		c.StoragePath = filepath.Join(p.cfg.PersistentContextsDir, c.ID)
	}
	p.contexts[c.ID] = c
	return c
}

func (p *ContextPool) finishCreate(ctx context.Context, c *Context) error {
	handle, err := p.driver.NewContext(ctx, c.Proxy, c.StoragePath, c.tagList())
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		delete(p.contexts, c.ID)
		return fmt.Errorf("%w: %v", ErrDriverError, err)
	}
	c.DriverHandle = handle
	c.CDPTargetURL = p.driver.CDPTargetURL(handle)
	c.Status = StatusIdle
	if c.Persistent {
		if err := saveContextMeta(c); err != nil {
			logging.WithContext(c.ID).Warn().Err(err).Msg("saving context meta failed")
		}
	}
	return nil
}

func (p *ContextPool) waitForWake(ctx context.Context, w *waiter) (*Context, uint64, error) {
	wait := time.Until(w.deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		p.mu.Lock()
		p.queue.Cancel(w)
		p.mu.Unlock()
		return nil, 0, ctx.Err()
	case <-timer.C:
		p.mu.Lock()
		p.queue.ExpireDue(time.Now())
		p.mu.Unlock()
		// ExpireDue fails w if it's still queued; if a real wake raced
		// it out of the queue first, this blocks for that instead.
		return p.resolveWaiterOutcome(<-w.done)
	case outcome := <-w.done:
		return p.resolveWaiterOutcome(outcome)
	}
}

func (p *ContextPool) resolveWaiterOutcome(outcome waiterOutcome) (*Context, uint64, error) {
	if outcome.err != nil {
		if errors.Is(outcome.err, ErrQueueTimeout) {
			p.metrics.incQueueTimeout()
		}
		return nil, 0, outcome.err
	}
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()
	return outcome.ctx, gen, nil
}

// finishScrape releases the context, handles the error-threshold
// recreation path, and wakes the next matching waiter.
func (p *ContextPool) finishScrape(c *Context, generation uint64, outcome Outcome) {
	p.mu.Lock()
	if p.generation != generation {
		// A restart happened mid-scrape; this context no longer
		// belongs to the pool under this id. Nothing to release.
		p.mu.Unlock()
		return
	}
	needsRecreate := c.Release(outcome, p.cfg.MaxConsecutiveErrors)
	idle, busy := p.counts()
	p.metrics.setContextGauges(len(p.contexts), idle, busy)

	if !needsRecreate {
		p.wakeNext(c)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	go p.recreate(context.Background(), c, generation)
}

// wakeNext hands c to the next matching waiter, if any. Called with
// p.mu held. A waiter that wins here is about to run a scrape on c
// without ever passing back through acquire()'s pickBest/Assign path,
// so wakeNext must do that bookkeeping itself — otherwise c is still
// StatusIdle while a scrape is in flight on it, and a concurrent
// Scrape call can select the same context out from under the waiter.
func (p *ContextPool) wakeNext(c *Context) {
	p.queue.ExpireDue(time.Now())
	if w := p.queue.TryWake(c); w != nil {
		c.Assign()
		w.wake(c)
		return
	}
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *ContextPool) counts() (idle, busy int) {
	for _, c := range p.contexts {
		if c.Status == StatusIdle {
			idle++
		} else if c.Status == StatusBusy {
			busy++
		}
	}
	return idle, busy
}

// recreate replaces c's driver handle in place, preserving id, tags,
// proxy and persistence (spec.md §4.4). Any failure removes the
// context from the pool entirely.
func (p *ContextPool) recreate(ctx context.Context, c *Context, generation uint64) {
	p.metrics.incRecreation()
	_ = p.driver.CloseContext(ctx, c.DriverHandle)

	handle, err := p.driver.NewContext(ctx, c.Proxy, c.StoragePath, c.tagList())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != generation {
		return
	}
	if err != nil {
		logging.WithContext(c.ID).Warn().Err(err).Msg("recreating context after consecutive errors failed, dropping it")
		delete(p.contexts, c.ID)
		return
	}
	c.DriverHandle = handle
	c.CDPTargetURL = p.driver.CDPTargetURL(handle)
	c.ConsecutiveErrors = 0
	c.RateLimit = NewRateLimiter()
	c.Status = StatusIdle
	logging.WithContext(c.ID).Info().Msg("context recreated after consecutive errors")
	p.wakeNext(c)
}

// restartBrowser implements spec.md §4.5's whole-browser restart
// protocol, grounded on dynamic.go's browserRetryCount loop.
func (p *ContextPool) restartBrowser(ctx context.Context) {
	p.mu.Lock()
	if p.state == stateRestarting || p.state == stateShuttingDown {
		p.mu.Unlock()
		return
	}
	p.state = stateRestarting
	p.generation++
	gen := p.generation
	p.metrics.setGeneration(gen)
	for _, c := range p.contexts {
		c.Status = StatusRecreating
	}
	p.queue.DrainAll(ErrBrowserRestarting)
	survivors := make([]*Context, 0, len(p.contexts))
	for _, c := range p.contexts {
		if c.Persistent {
			survivors = append(survivors, c)
		} else {
			delete(p.contexts, c.ID)
		}
	}
	p.mu.Unlock()

	p.metrics.incBrowserRestart()
	genLog := logging.WithGeneration(gen)
	genLog.Warn().Int("survivors", len(survivors)).Msg("whole-browser restart starting")

	var relaunched bool
	for attempt, backoff := range restartRetryBackoff {
		_ = p.driver.Shutdown(ctx)
		if err := p.driver.Launch(ctx); err == nil {
			relaunched = true
			break
		}
		if attempt < len(restartRetryBackoff)-1 {
			time.Sleep(backoff)
		}
	}

	if !relaunched {
		genLog.Error().Msg("browser relaunch exhausted retries, pool degraded")
		p.mu.Lock()
		p.state = stateDegraded
		p.mu.Unlock()
		return
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, c := range survivors {
		c := c
		eg.Go(func() error {
			handle, err := p.driver.NewContext(egCtx, c.Proxy, c.StoragePath, c.tagList())
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.generation != gen {
				return nil
			}
			if err != nil {
				logging.WithContext(c.ID).Warn().Err(err).Msg("recreating persistent context after restart failed, dropping it")
				delete(p.contexts, c.ID)
				return nil
			}
			c.DriverHandle = handle
			c.CDPTargetURL = p.driver.CDPTargetURL(handle)
			c.ConsecutiveErrors = 0
			c.RateLimit = NewRateLimiter()
			c.Status = StatusIdle
			return nil
		})
	}
	_ = eg.Wait()

	genLog.Info().Msg("whole-browser restart complete")

	p.mu.Lock()
	if p.state == stateRestarting {
		p.state = stateRunning
	}
	p.mu.Unlock()
}

// Shutdown stops accepting new work, cancels all waiters, waits for
// in-flight scrapes up to the configured grace period, then forces
// driver.Shutdown.
func (p *ContextPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.state = stateShuttingDown
	p.queue.DrainAll(ErrShutdown)
	ids := make([]*Context, 0, len(p.contexts))
	for _, c := range p.contexts {
		ids = append(ids, c)
	}
	p.mu.Unlock()

	deadline := time.Now().Add(p.cfg.ShutdownGrace)
	for time.Now().Before(deadline) {
		if p.allIdleOrDestroyed() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	p.mu.Lock()
	for _, c := range ids {
		c := c
		eg.Go(func() error {
			return p.driver.CloseContext(egCtx, c.DriverHandle)
		})
	}
	p.contexts = make(map[string]*Context)
	p.mu.Unlock()
	_ = eg.Wait()

	return p.driver.Shutdown(ctx)
}

func (p *ContextPool) allIdleOrDestroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.contexts {
		if c.Status == StatusBusy {
			return false
		}
	}
	return true
}

// Snapshot returns a deterministically-ordered (by id) view of every
// context, for the /contexts API and /healthz.
func (p *ContextPool) Snapshot() []ContextSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ContextSnapshot, 0, len(p.contexts))
	for _, c := range p.contexts {
		out = append(out, c.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HealthStatus reports ok | degraded | shutting_down for /healthz.
func (p *ContextPool) HealthStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateDegraded:
		return "degraded"
	case stateShuttingDown:
		return "shutting_down"
	default:
		return "ok"
	}
}

// Generation returns the current browser generation counter.
func (p *ContextPool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// QueueDepth returns the number of pending waiters, optionally
// filtered by tags (empty matches all).
func (p *ContextPool) QueueDepth(tags []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.PendingCountFor(tags)
}

// CreateContext creates a context explicitly (as opposed to on first
// scrape), used by the /contexts API.
func (p *ContextPool) CreateContext(ctx context.Context, proxy string, persistent bool, tags []string) (*Context, error) {
	p.mu.Lock()
	if len(p.contexts) >= p.cfg.MaxContexts {
		p.mu.Unlock()
		return nil, ErrPoolFull
	}
	req := ScrapeRequest{Proxy: proxy, Persistent: persistent, RequiredTags: tags}
	c := p.startCreate(req)
	p.mu.Unlock()

	if err := p.finishCreate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveContext destroys a context explicitly. Idempotent: removing
// an id twice is a no-op the second time (spec.md P8).
func (p *ContextPool) RemoveContext(ctx context.Context, id string) error {
	p.mu.Lock()
	c, ok := p.contexts[id]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	if c.Status == StatusBusy {
		p.mu.Unlock()
		return fmt.Errorf("pool: context %s is busy", id)
	}
	delete(p.contexts, id)
	p.mu.Unlock()

	return p.driver.CloseContext(ctx, c.DriverHandle)
}

// AddTags adds tags to an existing context.
func (p *ContextPool) AddTags(id string, tags ...string) error {
	p.mu.Lock()
	c, ok := p.contexts[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("pool: unknown context %s", id)
	}
	c.AddTags(tags...)
	if c.Persistent {
		if err := saveContextMeta(c); err != nil {
			logging.WithContext(c.ID).Warn().Err(err).Msg("saving context meta failed")
		}
	}
	return nil
}

// RemoveTags removes tags from an existing context.
func (p *ContextPool) RemoveTags(id string, tags ...string) error {
	p.mu.Lock()
	c, ok := p.contexts[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("pool: unknown context %s", id)
	}
	c.RemoveTags(tags...)
	if c.Persistent {
		if err := saveContextMeta(c); err != nil {
			logging.WithContext(c.ID).Warn().Err(err).Msg("saving context meta failed")
		}
	}
	return nil
}
