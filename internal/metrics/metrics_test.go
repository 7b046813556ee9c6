package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestScrapeContainsControllerMetrics(t *testing.T) {
	m := New()
	m.ObserveProbe("primary_obfuscated", true, 120*time.Millisecond)
	m.ObserveProbe("primary_obfuscated", false, 10*time.Second)
	m.ObserveTransition("escalation")
	m.ObserveTransition("recovery")
	m.SetActiveTier(2)
	m.SetConsecutiveFailures(1)
	m.SetDegraded(true)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`circuitwarden_probes_total{result="success",tier="primary_obfuscated"} 1`,
		`circuitwarden_probes_total{result="failure",tier="primary_obfuscated"} 1`,
		`circuitwarden_transitions_total{reason="escalation"} 1`,
		`circuitwarden_transitions_total{reason="recovery"} 1`,
		`circuitwarden_active_tier_rank 2`,
		`circuitwarden_consecutive_failures 1`,
		`circuitwarden_all_tiers_degraded 1`,
		`circuitwarden_probe_latency_seconds_count{tier="primary_obfuscated"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape output missing %q", want)
		}
	}

	m.SetDegraded(false)
	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "circuitwarden_all_tiers_degraded 0") {
		t.Fatalf("degraded gauge did not clear")
	}
}
