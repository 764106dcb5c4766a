package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ashcrew/ctxpoold/internal/logging"
)

// ResourceMonitorConfig tunes the host resource watcher. Distinct from
// MAX_CONTEXTS: this governs an additional, host-health-based
// admission gate, not the pool's own hard capacity bound.
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64
	SafetyThreshold     int64
	CPULoadThreshold    int
}

// DefaultResourceMonitorConfig reserves 512MB and refuses new
// contexts under a 300MB safety threshold or 90% CPU load.
func DefaultResourceMonitorConfig() ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: 512 * 1024 * 1024,
		SafetyThreshold:     300 * 1024 * 1024,
		CPULoadThreshold:    90,
	}
}

// ResourceMonitor samples this process's Go heap allocation and host
// CPU load in the background (total host memory is read once) and
// answers a cheap cached admission question for the pool. Grounded on
// internal/crawlers/resource_monitor.go, repurposed from sizing a tab
// pool to gating context admission and feeding /healthz pressure.
type ResourceMonitor struct {
	cfg ResourceMonitorConfig

	totalMemory uint64

	mu           sync.RWMutex
	lastAlloc    uint64
	lastCPUUsage float64

	cacheMu       sync.RWMutex
	lastCache     time.Time
	cachedOK      bool
	cachedReason  string

	cancel    context.CancelFunc
	isRunning bool
}

// NewResourceMonitor constructs a monitor, sampling total system
// memory once via gopsutil (falling back to a conservative default if
// unavailable, e.g. in a sandboxed test environment).
func NewResourceMonitor(cfg ResourceMonitorConfig) *ResourceMonitor {
	total := uint64(4 * 1024 * 1024 * 1024)
	if vm, err := mem.VirtualMemory(); err == nil {
		total = vm.Total
	} else {
		logging.Warnf("reading system memory: %v", err)
	}
	return &ResourceMonitor{cfg: cfg, totalMemory: total}
}

// Start begins background sampling every interval. Idempotent.
func (rm *ResourceMonitor) Start(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel
	rm.isRunning = true
	go rm.loop(ctx, interval)
}

// Stop halts background sampling. Idempotent.
func (rm *ResourceMonitor) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isRunning && rm.cancel != nil {
		rm.cancel()
		rm.isRunning = false
	}
}

func (rm *ResourceMonitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)

			usage := 0.0
			if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
				usage = pct[0]
			}

			rm.mu.Lock()
			rm.lastAlloc = ms.Alloc
			rm.lastCPUUsage = usage
			rm.mu.Unlock()
		}
	}
}

// AvailableMemory returns the estimated free memory headroom after
// reserving SafetyReserveMemory.
func (rm *ResourceMonitor) AvailableMemory() int64 {
	rm.mu.RLock()
	alloc := rm.lastAlloc
	rm.mu.RUnlock()
	return int64(rm.totalMemory) - int64(alloc) - rm.cfg.SafetyReserveMemory
}

// CanAdmit reports whether the host has room for another context,
// cached for one second so the pool's hot admission path doesn't pay
// for a fresh cpu.Percent() sample on every call.
func (rm *ResourceMonitor) CanAdmit() (bool, string) {
	rm.cacheMu.RLock()
	if time.Since(rm.lastCache) < time.Second {
		ok, reason := rm.cachedOK, rm.cachedReason
		rm.cacheMu.RUnlock()
		return ok, reason
	}
	rm.cacheMu.RUnlock()

	available := rm.AvailableMemory()
	if available < rm.cfg.SafetyThreshold {
		reason := fmt.Sprintf("low memory (%dMB available)", available/(1024*1024))
		rm.setCache(false, reason)
		return false, reason
	}

	if rm.cfg.CPULoadThreshold < 200 {
		rm.mu.RLock()
		usage := rm.lastCPUUsage
		rm.mu.RUnlock()
		if usage > float64(rm.cfg.CPULoadThreshold) {
			reason := fmt.Sprintf("high cpu load (%.1f%%)", usage)
			rm.setCache(false, reason)
			return false, reason
		}
	}

	rm.setCache(true, "")
	return true, ""
}

func (rm *ResourceMonitor) setCache(ok bool, reason string) {
	rm.cacheMu.Lock()
	rm.cachedOK, rm.cachedReason, rm.lastCache = ok, reason, time.Now()
	rm.cacheMu.Unlock()
}

// Pressure reports a coarse memory pressure level, surfaced on
// /healthz alongside the pool's formal ok|degraded|shutting_down
// state.
func (rm *ResourceMonitor) Pressure() string {
	mb := rm.AvailableMemory() / (1024 * 1024)
	switch {
	case mb < 200:
		return "emergency"
	case mb < 300:
		return "critical"
	case mb < 500:
		return "warning"
	default:
		return "normal"
	}
}
