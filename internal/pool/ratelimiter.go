package pool

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// RateLimiter tracks, per domain, the wall time at which the next
// request to that domain is permitted. One instance belongs to each
// Context; it is strictly per-context — two contexts may hit the same
// domain concurrently. See ContextPool.recreate for why the table is
// discarded (never copied) whenever a context is replaced.
type RateLimiter struct {
	mu           sync.Mutex
	nextAllowed  map[string]time.Time
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{nextAllowed: make(map[string]time.Time)}
}

// NextAvailable returns the wall time at which a request to domain
// would be permitted. Unknown domains are available now.
func (r *RateLimiter) NextAvailable(domain string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.nextAllowed[domain]; ok {
		return t
	}
	return time.Now()
}

// MarkUsed records that a request to domain just started, spacing the
// next one by delay. Only the resulting next-allowed time is stored,
// not the delay: each call sets the spacing afresh, and a delay given
// once does not carry over to later calls.
func (r *RateLimiter) MarkUsed(domain string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextAllowed[domain] = time.Now().Add(delay)
}

// ExtractDomain returns the registrable host of rawURL: lowercase,
// stripped of userinfo and port, with bracketed IPv6 literals kept
// bracketed and lowercased.
func ExtractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		// net/url.Hostname strips the brackets off an IPv6 literal;
		// put them back so two callers comparing domains agree.
		host = "[" + host + "]"
	}
	return host, nil
}
