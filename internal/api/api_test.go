package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"circuitwarden/internal/failover"
	"circuitwarden/internal/healthz"
	"circuitwarden/internal/metrics"
)

type staticSnapshotter struct{ st failover.State }

func (s staticSnapshotter) Snapshot() failover.State { return s.st }

func testServer() *Server {
	snap := staticSnapshotter{st: failover.State{
		ActiveTier:          "secondary_obfuscated",
		ActiveRank:          2,
		ConsecutiveFailures: 1,
		FailureThreshold:    3,
		ProbeInterval:       30 * time.Second,
	}}
	checks := healthz.NewRunner(time.Second)
	checks.Register(healthz.CheckerFunc{CheckName: "loop", Fn: func(ctx context.Context) error { return nil }})
	return New(Config{}, snap, metrics.New(), checks)
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	if rec.Code != 200 {
		t.Fatalf("status code = %d", rec.Code)
	}
	var st failover.State
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("bad status JSON: %v", err)
	}
	if st.ActiveTier != "secondary_obfuscated" || st.ActiveRank != 2 {
		t.Fatalf("snapshot lost in transit: %+v", st)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("healthz code = %d", rec.Code)
	}
	var res healthz.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad healthz JSON: %v", err)
	}
	if res.Status != healthz.StatusHealthy {
		t.Fatalf("status = %q", res.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("metrics code = %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("empty metrics scrape")
	}
}
