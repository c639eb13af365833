// Package api serves the local observability endpoints: liveness, a live
// run-status snapshot, and Prometheus metrics. The monitor binds to
// loopback by default and is never part of the scrape path itself.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/ratescout/config"
	"github.com/use-agent/ratescout/scrape"
)

// StatusSource yields the current run snapshot for GET /status.
type StatusSource interface {
	Snapshot() scrape.RunStatus
}

// Monitor is the observability HTTP server.
type Monitor struct {
	srv     *http.Server
	started time.Time
}

// NewMonitor builds the monitor around a status source and an optional
// metrics registry. A nil registry disables GET /metrics.
func NewMonitor(cfg config.MonitorConfig, status StatusSource, registry *prometheus.Registry) *Monitor {
	gin.SetMode(gin.ReleaseMode)

	m := &Monitor{started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness stays dependency-free so external probes always get an answer.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(m.started).Round(time.Second).String(),
		})
	})

	r.GET("/status", func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusOK, scrape.RunStatus{})
			return
		}
		c.JSON(http.StatusOK, status.Snapshot())
	})

	if registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	m.srv = &http.Server{Addr: cfg.Addr, Handler: r}
	return m
}

// Handler exposes the routed handler, mainly for tests.
func (m *Monitor) Handler() http.Handler {
	return m.srv.Handler
}

// Start serves in the background. Listen errors are logged, not fatal: a
// dead monitor must not kill a running scrape.
func (m *Monitor) Start() {
	go func() {
		slog.Info("monitor listening", "addr", m.srv.Addr)
		if err := m.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("monitor server error", "error", err)
		}
	}()
}

// Shutdown drains the server within ctx's deadline.
func (m *Monitor) Shutdown(ctx context.Context) {
	if err := m.srv.Shutdown(ctx); err != nil {
		slog.Error("monitor forced shutdown", "error", err)
	}
}
