package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTargetClosed implements TargetClosedMarker so fakeDriver can
// exercise the restart path without importing internal/driver.
type fakeTargetClosed struct{ cause error }

func (e *fakeTargetClosed) Error() string     { return fmt.Sprintf("target closed: %v", e.cause) }
func (e *fakeTargetClosed) Unwrap() error     { return e.cause }
func (e *fakeTargetClosed) TargetClosed() bool { return true }

// fakeDriver is an in-memory BrowserDriver stub for exercising the
// pool's selection, eviction, recreation and restart logic without a
// real browser, in the spirit of spec.md §8's "driver stub" scenarios.
type fakeDriver struct {
	mu sync.Mutex

	launchCalls   int32
	shutdownCalls int32
	nextHandle    int64

	// failNextExecute, if set, is returned once by Execute then cleared.
	failNextExecute error

	// failuresByProxy makes Execute return an error N times for handles
	// created with the given proxy before succeeding, to drive the
	// consecutive-error recreation scenario.
	failuresByProxy map[string]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{failuresByProxy: make(map[string]int)}
}

type fakeHandle struct {
	id    int64
	proxy string
}

func (d *fakeDriver) Launch(ctx context.Context) error {
	atomic.AddInt32(&d.launchCalls, 1)
	return nil
}

func (d *fakeDriver) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&d.shutdownCalls, 1)
	return nil
}

func (d *fakeDriver) NewContext(ctx context.Context, proxy, storagePath string, tags []string) (DriverHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandle++
	return &fakeHandle{id: d.nextHandle, proxy: proxy}, nil
}

func (d *fakeDriver) CloseContext(ctx context.Context, h DriverHandle) error {
	return nil
}

func (d *fakeDriver) Execute(ctx context.Context, h DriverHandle, req ScrapeRequest, timeout time.Duration) (ScrapeResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fh := h.(*fakeHandle)
	if remaining, ok := d.failuresByProxy[fh.proxy]; ok && remaining > 0 {
		d.failuresByProxy[fh.proxy] = remaining - 1
		return ScrapeResult{}, errors.New("stub driver failure")
	}
	if d.failNextExecute != nil {
		err := d.failNextExecute
		d.failNextExecute = nil
		return ScrapeResult{}, err
	}
	return ScrapeResult{Success: true, URL: req.URL, Status: 200}, nil
}

func (d *fakeDriver) CDPTargetURL(h DriverHandle) string { return "" }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxContexts = 2
	cfg.DefaultDomainDelay = 10 * time.Millisecond
	cfg.MaxQueueWait = time.Second
	cfg.MaxConsecutiveErrors = 3
	cfg.PersistentContextsDir = ""
	return cfg
}

func TestPoolScrapeCreatesContextOnDemand(t *testing.T) {
	drv := newFakeDriver()
	p := New(testConfig(), drv, NewMetrics())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com"))
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !result.Success || result.ContextID == "" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(p.Snapshot()) != 1 {
		t.Errorf("expected exactly one context created, got %d", len(p.Snapshot()))
	}
}

func TestPoolScrapeReusesIdleContext(t *testing.T) {
	drv := newFakeDriver()
	p := New(testConfig(), drv, NewMetrics())
	p.Start(context.Background())

	if _, err := p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com")); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com/page2")); err != nil {
		t.Fatal(err)
	}
	if len(p.Snapshot()) != 1 {
		t.Errorf("a second scrape to the same domain should reuse the existing context, got %d contexts", len(p.Snapshot()))
	}
}

func TestPoolTagBasedSelection(t *testing.T) {
	drv := newFakeDriver()
	cfg := testConfig()
	cfg.MaxContexts = 5
	p := New(cfg, drv, NewMetrics())
	p.Start(context.Background())

	a, err := p.CreateContext(context.Background(), "", false, []string{"premium"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.CreateContext(context.Background(), "", false, []string{"basic"}); err != nil {
		t.Fatal(err)
	}

	req := DefaultScrapeRequest("http://example.com")
	req.RequiredTags = []string{"premium"}
	result, err := p.Scrape(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if result.ContextID != a.ID {
		t.Errorf("expected tag-required scrape routed to %q, got %q", a.ID, result.ContextID)
	}
}

func TestPoolConsecutiveErrorsTriggerRecreation(t *testing.T) {
	drv := newFakeDriver()
	drv.failuresByProxy["flaky"] = 3

	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 3
	p := New(cfg, drv, NewMetrics())
	p.Start(context.Background())

	if _, err := p.CreateContext(context.Background(), "flaky", false, []string{"x"}); err != nil {
		t.Fatal(err)
	}

	req := DefaultScrapeRequest("http://example.com")
	req.RequiredTags = []string{"x"}

	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = p.Scrape(context.Background(), req)
		if lastErr == nil {
			t.Fatalf("attempt %d: expected a stub driver failure", i)
		}
	}

	// give the async recreate goroutine a moment to finish
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.Snapshot()) == 1 && p.Snapshot()[0].ConsecutiveErrors == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	result, err := p.Scrape(context.Background(), req)
	if err != nil {
		t.Fatalf("fourth scrape after recreation should succeed, got: %v", err)
	}
	if !result.Success {
		t.Error("expected success after recreation")
	}
}

func TestPoolEvictionUnderCapacity(t *testing.T) {
	drv := newFakeDriver()
	cfg := testConfig()
	cfg.MaxContexts = 2
	p := New(cfg, drv, NewMetrics())
	p.Start(context.Background())

	protectedCtx, err := p.CreateContext(context.Background(), "", false, []string{"protected"})
	if err != nil {
		t.Fatal(err)
	}
	transient, err := p.CreateContext(context.Background(), "", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Make transient look used-and-idle-longer so it is the lowest
	// score among non-protected contexts.
	p.mu.Lock()
	transient.LastUsedAt = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	req := DefaultScrapeRequest("http://example.com")
	req.RequiredTags = []string{"needs-new"}
	if _, err := p.Scrape(context.Background(), req); err != nil {
		t.Fatalf("expected a new context to be minted after eviction, got error: %v", err)
	}

	snaps := p.Snapshot()
	ids := make(map[string]bool)
	for _, s := range snaps {
		ids[s.ID] = true
	}
	if !ids[protectedCtx.ID] {
		t.Error("protected context should never be evicted")
	}
	if ids[transient.ID] {
		t.Error("the low-scoring transient context should have been evicted")
	}
}

func TestPoolQueueTimeout(t *testing.T) {
	drv := newFakeDriver()
	cfg := testConfig()
	cfg.MaxContexts = 1
	cfg.MaxQueueWait = 50 * time.Millisecond
	p := New(cfg, drv, NewMetrics())
	p.Start(context.Background())

	busy, err := p.CreateContext(context.Background(), "", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.mu.Lock()
	busy.Status = StatusBusy
	p.mu.Unlock()

	_, err = p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com"))
	if !errors.Is(err, ErrQueueTimeout) {
		t.Errorf("expected ErrQueueTimeout, got %v", err)
	}
}

// TestPoolWakeNextAssignsContextBeforeHandoff exercises spec.md §8
// scenario 2: a request queues behind a busy context, the context
// finishes, and the woken request takes over — without a window where
// a second, concurrent Scrape can pick the same now-"idle" context out
// from under it.
func TestPoolWakeNextAssignsContextBeforeHandoff(t *testing.T) {
	drv := newFakeDriver()
	cfg := testConfig()
	cfg.MaxContexts = 1
	cfg.MaxQueueWait = time.Second
	p := New(cfg, drv, NewMetrics())
	p.Start(context.Background())

	a, err := p.CreateContext(context.Background(), "", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.mu.Lock()
	a.Status = StatusBusy
	p.mu.Unlock()

	w, err := p.queue.Enqueue(DefaultScrapeRequest("http://example.com"), "example.com", 1, cfg.MaxQueueWait)
	if err != nil {
		t.Fatal(err)
	}

	p.mu.Lock()
	p.wakeNext(a)
	p.mu.Unlock()

	if a.Status != StatusBusy {
		t.Fatalf("context status after wakeNext = %v, want busy (handed off, not left idle)", a.Status)
	}
	if a.TotalRequests != 1 {
		t.Errorf("TotalRequests after wakeNext = %d, want 1", a.TotalRequests)
	}

	select {
	case outcome := <-w.done:
		if outcome.err != nil {
			t.Fatalf("unexpected waiter error: %v", outcome.err)
		}
		if outcome.ctx != a {
			t.Fatal("expected the woken waiter to receive context a")
		}
	default:
		t.Fatal("expected the waiter to have been woken")
	}

	// A second, concurrent acquire must not also be handed context a:
	// idleCandidates only considers StatusIdle contexts, and a is busy.
	p.mu.Lock()
	candidates := p.idleCandidates(nil)
	p.mu.Unlock()
	for _, c := range candidates {
		if c == a {
			t.Fatal("a busy, just-handed-off context must not appear as an idle candidate")
		}
	}
}

func TestPoolShutdownClosesDriverAndRejectsNewWork(t *testing.T) {
	drv := newFakeDriver()
	p := New(testConfig(), drv, NewMetrics())
	p.Start(context.Background())

	if _, err := p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com")); err != nil {
		t.Fatal(err)
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if atomic.LoadInt32(&drv.shutdownCalls) != 1 {
		t.Error("expected driver.Shutdown to be called exactly once")
	}
	if len(p.Snapshot()) != 0 {
		t.Error("expected no contexts left after shutdown")
	}

	_, err := p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com"))
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown after Shutdown, got %v", err)
	}
}

func TestPoolTargetClosedTriggersRestart(t *testing.T) {
	drv := newFakeDriver()
	p := New(testConfig(), drv, NewMetrics())
	p.Start(context.Background())

	if _, err := p.CreateContext(context.Background(), "", false, nil); err != nil {
		t.Fatal(err)
	}

	drv.mu.Lock()
	drv.failNextExecute = &fakeTargetClosed{cause: errors.New("connection reset")}
	drv.mu.Unlock()

	_, err := p.Scrape(context.Background(), DefaultScrapeRequest("http://example.com"))
	if !errors.Is(err, ErrTargetClosed) {
		t.Fatalf("expected ErrTargetClosed, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && atomic.LoadInt32(&drv.launchCalls) < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	if atomic.LoadInt32(&drv.launchCalls) < 2 {
		t.Error("expected restartBrowser to relaunch the driver after a target-closed error")
	}
}

func TestPoolRemoveContextIsIdempotent(t *testing.T) {
	drv := newFakeDriver()
	p := New(testConfig(), drv, NewMetrics())
	p.Start(context.Background())

	c, err := p.CreateContext(context.Background(), "", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.RemoveContext(context.Background(), c.ID); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := p.RemoveContext(context.Background(), c.ID); err != nil {
		t.Errorf("second remove of the same id should be a no-op, got: %v", err)
	}
}
