package healthz

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"circuitwarden/internal/circuit"
)

func TestRunnerAggregatesWorstStatus(t *testing.T) {
	r := NewRunner(time.Second)
	r.Register(CheckerFunc{CheckName: "ok", Fn: func(ctx context.Context) error { return nil }})

	res := r.Run(context.Background())
	if res.Status != StatusHealthy {
		t.Fatalf("status = %q, want healthy", res.Status)
	}

	r.Register(CheckerFunc{CheckName: "down", Fn: func(ctx context.Context) error {
		return errors.New("endpoint unreachable")
	}})
	res = r.Run(context.Background())
	if res.Status != StatusUnhealthy {
		t.Fatalf("status = %q, want unhealthy", res.Status)
	}
	if len(res.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(res.Checks))
	}
	if res.Checks[1].Message != "endpoint unreachable" {
		t.Fatalf("failure message lost: %+v", res.Checks[1])
	}
}

func TestEndpointCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	up := &circuit.Circuit{Rank: 1, ID: circuit.PrimaryObfuscated,
		Endpoint: circuit.Endpoint{Host: "127.0.0.1", Port: port, Kind: circuit.KindSOCKS5}}
	if err := EndpointCheck(up).Check(context.Background()); err != nil {
		t.Fatalf("bound endpoint reported down: %v", err)
	}

	direct := &circuit.Circuit{Rank: 2, ID: circuit.PublicRelay,
		Endpoint: circuit.Endpoint{Kind: circuit.KindDirect}}
	if err := EndpointCheck(direct).Check(context.Background()); err != nil {
		t.Fatalf("direct tier must always pass: %v", err)
	}
}
