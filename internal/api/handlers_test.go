package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashcrew/ctxpoold/internal/pool"
)

// stubDriver is a minimal BrowserDriver that never touches a real
// browser, so handler tests exercise routing and encoding only.
type stubDriver struct{ next int64 }

type stubHandle struct{ id int64 }

func (d *stubDriver) Launch(ctx context.Context) error   { return nil }
func (d *stubDriver) Shutdown(ctx context.Context) error { return nil }
func (d *stubDriver) NewContext(ctx context.Context, proxy, storagePath string, tags []string) (pool.DriverHandle, error) {
	d.next++
	return &stubHandle{id: d.next}, nil
}
func (d *stubDriver) CloseContext(ctx context.Context, h pool.DriverHandle) error { return nil }
func (d *stubDriver) Execute(ctx context.Context, h pool.DriverHandle, req pool.ScrapeRequest, timeout time.Duration) (pool.ScrapeResult, error) {
	return pool.ScrapeResult{Success: true, URL: req.URL, Status: 200}, nil
}
func (d *stubDriver) CDPTargetURL(h pool.DriverHandle) string { return "" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := pool.DefaultConfig()
	cfg.MaxContexts = 5
	cfg.PersistentContextsDir = ""
	p := pool.New(cfg, &stubDriver{}, pool.NewMetrics())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("pool.Start: %v", err)
	}
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return NewServer(p, Config{RequestsPerMinute: 0, CORSAllowedOrigins: []string{"*"}})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleScrapeSuccess(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/scrape", scrapeRequestBody{URL: "http://example.com"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out scrapeResultBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.ContextID == "" {
		t.Errorf("unexpected result body: %+v", out)
	}
}

func TestHandleScrapeMissingURL(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/scrape", scrapeRequestBody{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleScrapeMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/scrape", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleCreateListDeleteContext(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/contexts/", createContextBody{Tags: []string{"premium"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var created contextBody
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated context id")
	}

	rec = doJSON(t, s.Handler(), http.MethodGet, "/contexts/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list []contextBody
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 context listed, got %d", len(list))
	}

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/contexts/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}

	// RemoveContext is idempotent: deleting an already-gone id is
	// still a 204, not an error.
	rec = doJSON(t, s.Handler(), http.MethodDelete, "/contexts/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("second delete of the same id status = %d, want 204 (idempotent)", rec.Code)
	}
}

func TestHandleAddAndRemoveTags(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/contexts/", createContextBody{})
	var created contextBody
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/contexts/"+created.ID+"/tags", tagsBody{Tags: []string{"eu"}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("add tags status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/contexts/"+created.ID+"/tags", tagsBody{Tags: []string{"eu"}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove tags status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, s.Handler(), http.MethodPost, "/contexts/nonexistent/tags", tagsBody{Tags: []string{"eu"}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("add tags on unknown id status = %d, want 404", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var out healthzBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" {
		t.Errorf("Status = %q, want ok", out.Status)
	}
	if out.ResourcePressure == "" {
		t.Error("expected a non-empty resource_pressure")
	}
}

func TestStatusForMapsErrorsToCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{pool.ErrInvalidURL, http.StatusBadRequest},
		{pool.ErrPoolFull, http.StatusServiceUnavailable},
		{pool.ErrQueueTimeout, http.StatusServiceUnavailable},
		{pool.ErrScrapeTimeout, http.StatusGatewayTimeout},
		{pool.ErrTargetClosed, http.StatusBadGateway},
		{pool.ErrDriverError, http.StatusBadGateway},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
