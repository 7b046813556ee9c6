// Package activate ensures a circuit's local client process is running,
// launching it on demand and polling for its listener to come up.
package activate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os/exec"
	"strings"
	"time"

	"circuitwarden/internal/circuit"
)

// Reason classifies an activation failure for logs. The controller treats
// any activation failure like a failed probe.
type Reason string

const (
	ReasonBinaryNotFound Reason = "binary_not_found"
	ReasonBadCommand     Reason = "bad_command"
	ReasonLaunchFailed   Reason = "launch_failed"
	ReasonPortNotBound   Reason = "port_not_bound"
)

// Error is a recoverable activation failure.
type Error struct {
	Circuit *circuit.Circuit
	Reason  Reason
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("activate %s: %s: %v", e.Circuit.Name(), e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Activator ensures a circuit's local client process is running. Tests
// substitute fakes; production uses ExecActivator.
type Activator interface {
	EnsureRunning(ctx context.Context, c *circuit.Circuit) error
}

// Config configures the exec-based activator.
type Config struct {
	// GraceWindow bounds how long to poll for the listener after launch.
	GraceWindow time.Duration `yaml:"grace_window"`

	// PollInterval is the delay between port checks while waiting.
	PollInterval time.Duration `yaml:"poll_interval"`

	// DialTimeout bounds a single port liveness check.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ApplyDefaults sets activator defaults. The grace window is clamped to the
// 2-5s range so a dead tier cannot stall an escalation pass.
func (c *Config) ApplyDefaults() {
	if c.GraceWindow <= 0 {
		c.GraceWindow = 3 * time.Second
	}
	if c.GraceWindow < 2*time.Second {
		c.GraceWindow = 2 * time.Second
	}
	if c.GraceWindow > 5*time.Second {
		c.GraceWindow = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 500 * time.Millisecond
	}
}

// ExecActivator launches tier client processes with os/exec and polls the
// tier's local port instead of sleeping blindly.
type ExecActivator struct {
	cfg Config
}

// NewExec creates an exec-based activator.
func NewExec(cfg Config) *ExecActivator {
	cfg.ApplyDefaults()
	return &ExecActivator{cfg: cfg}
}

// EnsureRunning checks the circuit's local listener and launches the
// activation command when it is down. Launched processes are detached: they
// stay alive after the controller exits.
func (a *ExecActivator) EnsureRunning(ctx context.Context, c *circuit.Circuit) error {
	// Direct tiers have no local client process.
	if c.Endpoint.Kind == circuit.KindDirect {
		return nil
	}

	if a.portBound(c) {
		return nil
	}

	if strings.TrimSpace(c.ActivationCommand) == "" {
		return &Error{Circuit: c, Reason: ReasonPortNotBound,
			Err: fmt.Errorf("endpoint %s down and no activation command configured", c.Endpoint.Addr())}
	}

	if err := a.launch(c); err != nil {
		return err
	}

	// Poll for the listener instead of a fixed sleep.
	deadline := time.Now().Add(a.cfg.GraceWindow)
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if a.portBound(c) {
			log.Printf("[Activator] %s listening on %s", c.Name(), c.Endpoint.Addr())
			return nil
		}
		if time.Now().After(deadline) {
			return &Error{Circuit: c, Reason: ReasonPortNotBound,
				Err: fmt.Errorf("port %s not bound within %v", c.Endpoint.Addr(), a.cfg.GraceWindow)}
		}
		select {
		case <-ctx.Done():
			return &Error{Circuit: c, Reason: ReasonPortNotBound, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// portBound reports whether the circuit's local endpoint accepts connections.
func (a *ExecActivator) portBound(c *circuit.Circuit) bool {
	conn, err := net.DialTimeout("tcp", c.Endpoint.Addr(), a.cfg.DialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// launch starts the activation command. The command string is split on
// whitespace and executed directly; shell metacharacters are rejected to
// prevent command injection.
func (a *ExecActivator) launch(c *circuit.Circuit) error {
	cmdline := c.ActivationCommand
	if strings.ContainsAny(cmdline, "|;&$`\\\"'(){}[]<>!~*?#") {
		return &Error{Circuit: c, Reason: ReasonBadCommand,
			Err: fmt.Errorf("command contains disallowed shell metacharacters: %s", cmdline)}
	}

	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return &Error{Circuit: c, Reason: ReasonBadCommand, Err: fmt.Errorf("empty command")}
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	if err := cmd.Start(); err != nil {
		reason := ReasonLaunchFailed
		if errors.Is(err, exec.ErrNotFound) {
			reason = ReasonBinaryNotFound
		}
		return &Error{Circuit: c, Reason: reason, Err: err}
	}
	log.Printf("[Activator] launched %q for %s (pid %d)", parts[0], c.Name(), cmd.Process.Pid)

	// Reap the child when it exits so it cannot linger as a zombie. The
	// process itself is independent of the controller lifetime.
	go func() { _ = cmd.Wait() }()
	return nil
}
