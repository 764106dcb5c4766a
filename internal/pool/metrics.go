package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the pool's Prometheus collectors on a dedicated
// registry. Every method is nil-safe so a pool built without metrics
// enabled can pass a nil *Metrics everywhere without branching.
type Metrics struct {
	Registry *prometheus.Registry

	ContextsTotal    prometheus.Gauge
	ContextsIdle     prometheus.Gauge
	ContextsBusy     prometheus.Gauge
	QueueDepth       prometheus.Gauge
	Generation       prometheus.Gauge

	Admissions       prometheus.Counter
	Evictions        prometheus.Counter
	Recreations      prometheus.Counter
	BrowserRestarts  prometheus.Counter
	QueueTimeouts    prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	ScrapeDuration   prometheus.Histogram
}

// NewMetrics constructs and registers all collectors on a fresh
// registry, following aluiziolira-go-scrape-books/scraper/metrics.go.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		ContextsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxpool_contexts_total", Help: "Current number of contexts in the pool.",
		}),
		ContextsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxpool_contexts_idle", Help: "Current number of idle contexts.",
		}),
		ContextsBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxpool_contexts_busy", Help: "Current number of busy contexts.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxpool_queue_depth", Help: "Current number of queued waiters.",
		}),
		Generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ctxpool_generation", Help: "Current browser generation counter.",
		}),
		Admissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxpool_admissions_total", Help: "Total contexts created on demand.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxpool_evictions_total", Help: "Total contexts evicted to make room.",
		}),
		Recreations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxpool_recreations_total", Help: "Total contexts recreated after error threshold.",
		}),
		BrowserRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxpool_browser_restarts_total", Help: "Total whole-browser restarts.",
		}),
		QueueTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ctxpool_queue_timeouts_total", Help: "Total waiters that expired before being woken.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ctxpool_errors_total", Help: "Total scrape errors by kind.",
		}, []string{"kind"}),
		ScrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ctxpool_scrape_duration_seconds", Help: "Scrape execution latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.ContextsTotal, m.ContextsIdle, m.ContextsBusy, m.QueueDepth, m.Generation,
		m.Admissions, m.Evictions, m.Recreations, m.BrowserRestarts, m.QueueTimeouts,
		m.ErrorsTotal, m.ScrapeDuration,
	)
	return m
}

func (m *Metrics) setContextGauges(total, idle, busy int) {
	if m == nil {
		return
	}
	m.ContextsTotal.Set(float64(total))
	m.ContextsIdle.Set(float64(idle))
	m.ContextsBusy.Set(float64(busy))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) setGeneration(g uint64) {
	if m == nil {
		return
	}
	m.Generation.Set(float64(g))
}

func (m *Metrics) incAdmission() {
	if m == nil {
		return
	}
	m.Admissions.Inc()
}

func (m *Metrics) incEviction() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

func (m *Metrics) incRecreation() {
	if m == nil {
		return
	}
	m.Recreations.Inc()
}

func (m *Metrics) incBrowserRestart() {
	if m == nil {
		return
	}
	m.BrowserRestarts.Inc()
}

func (m *Metrics) incQueueTimeout() {
	if m == nil {
		return
	}
	m.QueueTimeouts.Inc()
}

func (m *Metrics) incError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeScrapeSeconds(s float64) {
	if m == nil {
		return
	}
	m.ScrapeDuration.Observe(s)
}
