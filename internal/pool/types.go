package pool

import "time"

// WaitFor selects the navigation readiness condition honored by the
// driver before running script/content/screenshot capture.
type WaitFor string

const (
	WaitLoad            WaitFor = "load"
	WaitDOMContentLoaded WaitFor = "domcontentloaded"
	WaitNetworkIdle      WaitFor = "networkidle"
)

// ScrapeRequest is the external request contract (spec.md §6).
type ScrapeRequest struct {
	URL            string
	RequiredTags   []string
	Proxy          string
	DomainDelay    time.Duration // zero means "use the pool default"
	WaitFor        WaitFor
	Timeout        time.Duration
	GetContent     bool
	Script         string
	Screenshot     bool
	BlockResources bool
	Persistent     bool
}

// DefaultScrapeRequest fills in the contract's documented defaults.
func DefaultScrapeRequest(rawURL string) ScrapeRequest {
	return ScrapeRequest{
		URL:            rawURL,
		WaitFor:        WaitLoad,
		Timeout:        30 * time.Second,
		GetContent:     true,
		BlockResources: true,
	}
}

// ScrapeResult is the external result contract (spec.md §6).
type ScrapeResult struct {
	Success      bool
	URL          string
	Status       int // 0 means "no top-level navigation status"
	Content      string
	HasContent   bool
	ScriptResult interface{}
	Screenshot   string // base64, empty if not captured
	ContextID    string
	Error        string
}
