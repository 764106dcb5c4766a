package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashcrew/ctxpoold/internal/pool"
)

// scrapeRequestBody is the wire shape of spec.md §6's request
// contract.
type scrapeRequestBody struct {
	URL            string   `json:"url"`
	RequiredTags   []string `json:"required_tags"`
	Proxy          string   `json:"proxy"`
	DomainDelayMS  int      `json:"domain_delay"`
	WaitFor        string   `json:"wait_for"`
	TimeoutMS      int      `json:"timeout"`
	GetContent     *bool    `json:"get_content"`
	Script         string   `json:"script"`
	Screenshot     bool     `json:"screenshot"`
	BlockResources *bool    `json:"block_resources"`
	Persistent     bool     `json:"persistent"`
}

type scrapeResultBody struct {
	Success      bool        `json:"success"`
	URL          string      `json:"url"`
	Status       *int        `json:"status"`
	Content      *string     `json:"content"`
	ScriptResult interface{} `json:"script_result"`
	Screenshot   *string     `json:"screenshot"`
	ContextID    string      `json:"context_id"`
	Error        *string     `json:"error"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body scrapeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	req := pool.DefaultScrapeRequest(body.URL)
	req.RequiredTags = body.RequiredTags
	req.Proxy = body.Proxy
	req.Persistent = body.Persistent
	req.Script = body.Script
	req.Screenshot = body.Screenshot
	if body.DomainDelayMS > 0 {
		req.DomainDelay = time.Duration(body.DomainDelayMS) * time.Millisecond
	}
	if body.TimeoutMS > 0 {
		req.Timeout = time.Duration(body.TimeoutMS) * time.Millisecond
	}
	if body.WaitFor != "" {
		req.WaitFor = pool.WaitFor(body.WaitFor)
	}
	if body.GetContent != nil {
		req.GetContent = *body.GetContent
	}
	if body.BlockResources != nil {
		req.BlockResources = *body.BlockResources
	}

	result, err := s.pool.Scrape(r.Context(), req)
	status := statusFor(err)
	writeJSON(w, status, toResultBody(result))
}

func toResultBody(r pool.ScrapeResult) scrapeResultBody {
	out := scrapeResultBody{
		Success:   r.Success,
		URL:       r.URL,
		ContextID: r.ContextID,
	}
	if r.Status != 0 {
		out.Status = &r.Status
	}
	if r.HasContent {
		out.Content = &r.Content
	}
	out.ScriptResult = r.ScriptResult
	if r.Screenshot != "" {
		out.Screenshot = &r.Screenshot
	}
	if r.Error != "" {
		out.Error = &r.Error
	}
	return out
}

// statusFor maps the pool's error taxonomy onto HTTP status codes per
// spec.md §7's table.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pool.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrPoolFull), errors.Is(err, pool.ErrQueueTimeout),
		errors.Is(err, pool.ErrBrowserRestarting), errors.Is(err, pool.ErrBrowserUnavailable),
		errors.Is(err, pool.ErrShutdown):
		return http.StatusServiceUnavailable
	case errors.Is(err, pool.ErrScrapeTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, pool.ErrTargetClosed), errors.Is(err, pool.ErrDriverError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type contextBody struct {
	ID                string   `json:"id"`
	Tags              []string `json:"tags"`
	Proxy             string   `json:"proxy,omitempty"`
	Persistent        bool     `json:"persistent"`
	Status            string   `json:"status"`
	CreatedAt         string   `json:"created_at"`
	LastUsedAt        string   `json:"last_used_at"`
	TotalRequests     int64    `json:"total_requests"`
	TotalErrors       int64    `json:"total_errors"`
	ConsecutiveErrors int      `json:"consecutive_errors"`
	CDPTargetURL      string   `json:"cdp_target_url,omitempty"`
}

func toContextBody(s pool.ContextSnapshot) contextBody {
	return contextBody{
		ID:                s.ID,
		Tags:              s.Tags,
		Proxy:             s.Proxy,
		Persistent:        s.Persistent,
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt.Format(time.RFC3339),
		LastUsedAt:        s.LastUsedAt.Format(time.RFC3339),
		TotalRequests:     s.TotalRequests,
		TotalErrors:       s.TotalErrors,
		ConsecutiveErrors: s.ConsecutiveErrors,
		CDPTargetURL:      s.CDPTargetURL,
	}
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	snaps := s.pool.Snapshot()
	out := make([]contextBody, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, toContextBody(snap))
	}
	writeJSON(w, http.StatusOK, out)
}

type createContextBody struct {
	Proxy      string   `json:"proxy"`
	Persistent bool     `json:"persistent"`
	Tags       []string `json:"tags"`
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var body createContextBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := s.pool.CreateContext(r.Context(), body.Proxy, body.Persistent, body.Tags)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, toContextBody(c.Snapshot()))
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.pool.RemoveContext(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tagsBody struct {
	Tags []string `json:"tags"`
}

func (s *Server) handleAddTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body tagsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.pool.AddTags(id, body.Tags...); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body tagsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.pool.RemoveTags(id, body.Tags...); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthzBody struct {
	Status           string `json:"status"`
	Generation       uint64 `json:"generation"`
	QueueDepth       int    `json:"queue_depth"`
	ResourcePressure string `json:"resource_pressure"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.pool.HealthStatus()
	pressure := s.pool.ResourcePressure()
	code := http.StatusOK
	if status != "ok" || pressure == "emergency" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthzBody{
		Status:           status,
		Generation:       s.pool.Generation(),
		QueueDepth:       s.pool.QueueDepth(nil),
		ResourcePressure: pressure,
	})
}
