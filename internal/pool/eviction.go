package pool

import (
	"math"
	"time"
)

// ProtectedTag disables eviction for any context carrying it.
const ProtectedTag = "protected"

// EvictionWeights are the α/β constants in the reference scoring
// formula; both must be positive.
type EvictionWeights struct {
	IdleWeight  float64
	ErrorWeight float64
}

// DefaultEvictionWeights mirrors the original's eviction_idle_weight /
// eviction_error_weight defaults.
func DefaultEvictionWeights() EvictionWeights {
	return EvictionWeights{IdleWeight: 1.0, ErrorWeight: 2.0}
}

// Score computes the eviction score of a context snapshot. Lower is
// more evictable: a protected or busy context scores +Inf (never
// picked), and the score rises with total_requests (investment bias)
// and falls with idle time and consecutive errors.
//
//	score = log(1 + total_requests) - α·idle_seconds - β·consecutive_errors
func Score(snap ContextSnapshot, now time.Time, w EvictionWeights) float64 {
	if snap.Busy || hasTag(snap.Tags, ProtectedTag) {
		return math.Inf(1)
	}
	idleSeconds := now.Sub(snap.LastUsedAt).Seconds()
	if idleSeconds < 0 {
		idleSeconds = 0
	}
	return math.Log(1+float64(snap.TotalRequests)) -
		w.IdleWeight*idleSeconds -
		w.ErrorWeight*float64(snap.ConsecutiveErrors)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// pickMostEvictable scans idle, non-protected candidates and returns
// the one with the lowest score, ties broken by the older created_at
// (keep the younger). Returns false if no candidate is evictable.
func pickMostEvictable(snaps []ContextSnapshot, now time.Time, w EvictionWeights) (ContextSnapshot, bool) {
	var best ContextSnapshot
	found := false
	for _, s := range snaps {
		sc := Score(s, now, w)
		if math.IsInf(sc, 1) {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		bestScore := Score(best, now, w)
		switch {
		case sc < bestScore:
			best = s
		case sc == bestScore && s.CreatedAt.Before(best.CreatedAt):
			best = s
		}
	}
	return best, found
}
