// Package stealth hardens a tunnel's wire characteristics against deep
// packet inspection: first-flight fragmentation, timing jitter,
// congestion-control tuning, DNS hardening, and rotating cover parameters.
//
// Everything here is best-effort; applying stealth settings never breaks
// the failover controller.
package stealth

import (
	"context"
	"log"
	"net"
	"time"
)

// Config is the top-level obfuscation configurator settings.
type Config struct {
	Fragment   FragmentConfig   `yaml:"fragment"`
	Jitter     JitterConfig     `yaml:"jitter"`
	Congestion CongestionConfig `yaml:"congestion"`
	DNS        DNSConfig        `yaml:"dns"`
	Rotation   RotationConfig   `yaml:"rotation"`
}

// ApplyDefaults sets defaults on all sub-configurations.
func (c *Config) ApplyDefaults() {
	c.Fragment.ApplyDefaults()
	c.Jitter.ApplyDefaults()
	c.Congestion.ApplyDefaults()
	c.DNS.ApplyDefaults()
	c.Rotation.ApplyDefaults()
}

// Configurator applies stealth settings at daemon start and rotates cover
// parameters while running.
type Configurator struct {
	cfg      Config
	rotation *Rotator
}

// New creates a configurator.
func New(cfg Config) *Configurator {
	cfg.ApplyDefaults()
	return &Configurator{
		cfg:      cfg,
		rotation: NewRotator(cfg.Rotation),
	}
}

// Rotator returns the cover-parameter rotator.
func (s *Configurator) Rotator() *Rotator {
	return s.rotation
}

// Shape wraps a connection with the configured write-side shaping.
// Jitter sits innermost and fragmentation outermost, so each first-flight
// fragment is also delayed by the jitter window.
func (s *Configurator) Shape(conn net.Conn) net.Conn {
	if s.cfg.Jitter.Enabled {
		conn = newJitterConn(conn, s.cfg.Jitter)
	}
	if s.cfg.Fragment.Enabled {
		conn = NewFragmentedConn(conn, s.cfg.Fragment)
	}
	return conn
}

// Apply applies host-level stealth settings. Failures are logged, never
// returned: a missing sysctl or unreachable resolver must not stop the
// controller.
func (s *Configurator) Apply(ctx context.Context) {
	if err := ApplyCongestion(s.cfg.Congestion); err != nil {
		log.Printf("[Stealth] congestion tuning skipped: %v", err)
	}
	if s.cfg.DNS.Enabled {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		for _, r := range CheckResolvers(checkCtx, s.cfg.DNS) {
			if r.Err != nil {
				log.Printf("[Stealth] resolver %s failed verification: %v", r.Server, r.Err)
			} else {
				log.Printf("[Stealth] resolver %s verified (%v)", r.Server, r.Latency.Round(time.Millisecond))
			}
		}
	}
}
