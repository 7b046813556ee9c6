// Package api serves the local operator interface: status snapshots,
// Prometheus metrics, and liveness checks on a loopback listener.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"circuitwarden/internal/failover"
	"circuitwarden/internal/healthz"
	"circuitwarden/internal/metrics"
)

// Config configures the local API listener.
type Config struct {
	Listen string `yaml:"listen"`
}

// ApplyDefaults sets the default loopback listen address.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:7805"
	}
}

// Snapshotter provides read-only controller state.
type Snapshotter interface {
	Snapshot() failover.State
}

// Server is the local HTTP operator interface.
type Server struct {
	cfg        Config
	controller Snapshotter
	metrics    *metrics.Metrics
	checks     *healthz.Runner
	httpSrv    *http.Server
}

// New creates the API server.
func New(cfg Config, controller Snapshotter, m *metrics.Metrics, checks *healthz.Runner) *Server {
	cfg.ApplyDefaults()
	s := &Server{
		cfg:        cfg,
		controller: controller,
		metrics:    m,
		checks:     checks,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] listening on %s", s.cfg.Listen)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.controller.Snapshot()); err != nil {
		log.Printf("[API] status encode failed: %v", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	result := s.checks.Run(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if result.Status == healthz.StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
