// Package healthz aggregates liveness checks for the status API.
package healthz

import (
	"context"
	"net"
	"sync"
	"time"

	"circuitwarden/internal/circuit"
)

// Status is an aggregate health verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is one named check result.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Result aggregates all checks.
type Result struct {
	Status    Status    `json:"status"`
	Checks    []Check   `json:"checks"`
	Timestamp time.Time `json:"timestamp"`
}

// Checker is a single liveness check.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.CheckName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Runner runs a registered set of checks on demand.
type Runner struct {
	mu      sync.RWMutex
	checks  []Checker
	timeout time.Duration
}

// NewRunner creates a check runner with a per-check timeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{timeout: timeout}
}

// Register adds a check.
func (r *Runner) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
}

// Run executes all checks and aggregates the worst status.
func (r *Runner) Run(ctx context.Context) Result {
	r.mu.RLock()
	checks := make([]Checker, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	result := Result{Status: StatusHealthy, Timestamp: time.Now()}
	for _, checker := range checks {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := checker.Check(checkCtx)
		cancel()

		check := Check{
			Name:        checker.Name(),
			Status:      StatusHealthy,
			LastChecked: start,
			Duration:    time.Since(start),
		}
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			result.Status = StatusUnhealthy
		}
		result.Checks = append(result.Checks, check)
	}
	return result
}

// EndpointCheck verifies a circuit's local listener accepts connections.
func EndpointCheck(c *circuit.Circuit) Checker {
	return CheckerFunc{
		CheckName: string(c.ID) + "_endpoint",
		Fn: func(ctx context.Context) error {
			if c.Endpoint.Kind == circuit.KindDirect {
				return nil
			}
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", c.Endpoint.Addr())
			if err != nil {
				return err
			}
			return conn.Close()
		},
	}
}
