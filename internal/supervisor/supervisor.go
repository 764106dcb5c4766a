// Package supervisor wires configuration, logging, metrics, the
// driver and the pool together, and owns graceful shutdown once the
// context passed to Run is cancelled (cmd/ctxpoold cancels it on
// SIGINT/SIGTERM). Grounded on cmd/jsfindcrack/main.go's RunE body and
// aluiziolira-go-scrape-books/cmd/scraper/main.go's metrics-server +
// shutdown sequencing.
package supervisor

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashcrew/ctxpoold/internal/api"
	"github.com/ashcrew/ctxpoold/internal/config"
	"github.com/ashcrew/ctxpoold/internal/driver"
	"github.com/ashcrew/ctxpoold/internal/logging"
	"github.com/ashcrew/ctxpoold/internal/pool"
)

// Supervisor owns the full stack's lifecycle.
type Supervisor struct {
	cfg       *config.Config
	pool      *pool.ContextPool
	metrics   *pool.Metrics
	drv       *driver.RodDriver
	resources *pool.ResourceMonitor

	apiServer     *http.Server
	metricsServer *http.Server
}

// New constructs every component but does not start anything.
func New(cfg *config.Config) *Supervisor {
	metrics := pool.NewMetrics()

	drv := driver.NewRodDriver(driver.RodOptions{
		Headless:          cfg.Driver.Headless,
		UseVirtualDisplay: cfg.Driver.UseVirtualDisplay,
		DisplayWidth:      cfg.Driver.VirtualDisplayW,
		DisplayHeight:     cfg.Driver.VirtualDisplayH,
	})

	poolCfg := pool.Config{
		MaxContexts:           cfg.Pool.MaxContexts,
		DefaultDomainDelay:    time.Duration(cfg.Pool.DefaultDomainDelayMS) * time.Millisecond,
		MaxQueueWait:          time.Duration(cfg.Pool.MaxQueueWaitSeconds) * time.Second,
		MaxConsecutiveErrors:  cfg.Pool.MaxConsecutiveErrors,
		PersistentContextsDir: cfg.Pool.PersistentContextsDir,
		ShutdownGrace:         time.Duration(cfg.Pool.ShutdownGraceSeconds) * time.Second,
		EvictionWeights: pool.EvictionWeights{
			IdleWeight:  cfg.Pool.EvictionIdleWeight,
			ErrorWeight: cfg.Pool.EvictionErrorWeight,
		},
	}
	p := pool.New(poolCfg, drv, metrics)

	resources := pool.NewResourceMonitor(pool.DefaultResourceMonitorConfig())
	resources.Start(5 * time.Second)
	p.SetResourceMonitor(resources)

	apiSrv := api.NewServer(p, api.Config{
		RequestsPerMinute:  cfg.API.RequestsPerMinute,
		CORSAllowedOrigins: cfg.API.CORSAllowedOrigins,
	})

	return &Supervisor{
		cfg:       cfg,
		pool:      p,
		metrics:   metrics,
		drv:       drv,
		resources: resources,
		apiServer: &http.Server{
			Addr:    cfg.API.ListenAddr,
			Handler: apiSrv.Handler(),
		},
		metricsServer: &http.Server{
			Addr:    cfg.API.MetricsListenAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		},
	}
}

// Run starts the browser, the pool, and both HTTP listeners, and
// blocks until ctx is cancelled, then drains gracefully.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	logging.Info("context pool started")

	go func() {
		logging.Infof("api listening on %s", s.apiServer.Addr)
		if err := s.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(err, "api server stopped")
		}
	}()

	go func() {
		logging.Infof("metrics listening on %s", s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(err, "metrics server stopped")
		}
	}()

	<-ctx.Done()
	logging.Warn("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.apiServer.Shutdown(shutdownCtx)
	_ = s.metricsServer.Shutdown(shutdownCtx)
	s.resources.Stop()

	return s.pool.Shutdown(context.Background())
}
