// Package probe issues bounded-timeout reachability checks through a
// circuit's local SOCKS5 endpoint or directly for no-proxy tiers.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/proxy"

	"circuitwarden/internal/circuit"
)

// FailureKind classifies a failed probe for logs and diagnostics. The state
// machine only consumes Result.Success; the kind is never load-bearing.
type FailureKind string

const (
	KindNone              FailureKind = ""
	KindTimeout           FailureKind = "timeout"
	KindConnectionRefused FailureKind = "connection_refused"
	KindBadStatus         FailureKind = "bad_status"
	KindDNS               FailureKind = "dns"
	KindOther             FailureKind = "other"
)

// Result is the outcome of a single probe. It is created per probe and
// consumed immediately; only logs retain it.
type Result struct {
	Circuit   *circuit.Circuit `json:"-"`
	Tier      string           `json:"tier"`
	Rank      int              `json:"rank"`
	Success   bool             `json:"success"`
	Kind      FailureKind      `json:"kind,omitempty"`
	Detail    string           `json:"detail"`
	Latency   time.Duration    `json:"latency_ns"`
	Timestamp time.Time        `json:"timestamp"`
}

// Config configures the prober.
type Config struct {
	// Target is the health-check URL. A 2xx response counts as success so
	// the well-known generate_204 endpoints work unchanged.
	Target string `yaml:"target"`

	// Timeout bounds a single probe end to end.
	Timeout time.Duration `yaml:"timeout"`

	// Stealth enables uTLS browser-fingerprint handshakes for HTTPS
	// probes so the health check itself resists DPI classification.
	Stealth StealthConfig `yaml:"stealth"`
}

// ApplyDefaults sets default prober configuration.
func (c *Config) ApplyDefaults() {
	if c.Target == "" {
		c.Target = "https://www.google.com/generate_204"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	c.Stealth.ApplyDefaults()
}

// Prober issues probes through configured circuits.
type Prober struct {
	cfg  Config
	wrap func(net.Conn) net.Conn

	mu          sync.RWMutex
	fingerprint string
}

// Option customizes a Prober.
type Option func(*Prober)

// WithConnShaper wraps every probe connection, letting the stealth
// configurator apply fragmentation and jitter to probe traffic itself.
func WithConnShaper(fn func(net.Conn) net.Conn) Option {
	return func(p *Prober) { p.wrap = fn }
}

// New creates a prober.
func New(cfg Config, opts ...Option) *Prober {
	cfg.ApplyDefaults()
	p := &Prober{cfg: cfg, fingerprint: cfg.Stealth.Fingerprint}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetFingerprint switches the uTLS identity used by stealth probes. The
// cover-parameter rotator calls this on every rotation; an empty name is
// ignored so the configured fingerprint survives.
func (p *Prober) SetFingerprint(name string) {
	if name == "" {
		return
	}
	p.mu.Lock()
	p.fingerprint = name
	p.mu.Unlock()
}

// currentStealth returns the stealth settings with the live fingerprint.
func (p *Prober) currentStealth() StealthConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sc := p.cfg.Stealth
	if p.fingerprint != "" {
		sc.Fingerprint = p.fingerprint
	}
	return sc
}

// Target returns the configured health-check URL.
func (p *Prober) Target() string {
	return p.cfg.Target
}

// Probe issues one HTTP(S) GET through the circuit. It never returns an
// error: every failure mode is folded into the Result.
func (p *Prober) Probe(ctx context.Context, c *circuit.Circuit) Result {
	start := time.Now()
	res := Result{
		Circuit:   c,
		Tier:      string(c.ID),
		Rank:      c.Rank,
		Timestamp: start,
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	client, err := p.clientFor(c)
	if err != nil {
		res.Kind, res.Detail = KindOther, err.Error()
		res.Latency = time.Since(start)
		return res
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Target, nil)
	if err != nil {
		res.Kind, res.Detail = KindOther, err.Error()
		res.Latency = time.Since(start)
		return res
	}

	resp, err := client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Kind, res.Detail = classify(err), err.Error()
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Kind = KindBadStatus
		res.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return res
	}

	res.Success = true
	res.Detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return res
}

// TestAll probes every configured tier concurrently. It reads only the
// table and performs independent timeout-bounded calls, so it is safe to
// run while the controller loop is active.
func (p *Prober) TestAll(ctx context.Context, table *circuit.Table) []Result {
	circuits := table.All()
	results := make([]Result, len(circuits))

	var wg sync.WaitGroup
	for i, c := range circuits {
		wg.Add(1)
		go func(i int, c *circuit.Circuit) {
			defer wg.Done()
			results[i] = p.Probe(ctx, c)
		}(i, c)
	}
	wg.Wait()
	return results
}

// clientFor builds an HTTP client routed through the circuit's endpoint.
func (p *Prober) clientFor(c *circuit.Circuit) (*http.Client, error) {
	transport := &http.Transport{
		DisableKeepAlives: true,
	}

	switch c.Endpoint.Kind {
	case circuit.KindSOCKS5:
		d, err := proxy.SOCKS5("tcp", c.Endpoint.Addr(), nil, &net.Dialer{
			Timeout: p.cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer for %s: %w", c.Name(), err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
	case circuit.KindDirect:
		transport.DialContext = (&net.Dialer{Timeout: p.cfg.Timeout}).DialContext
	default:
		return nil, fmt.Errorf("unsupported endpoint kind %q", c.Endpoint.Kind)
	}

	if p.wrap != nil {
		base := transport.DialContext
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := base(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return p.wrap(conn), nil
		}
	}

	if p.cfg.Stealth.Enabled {
		transport.DialTLSContext = stealthDialTLS(transport.DialContext, p.currentStealth())
		// uTLS negotiates ALPN itself; let the transport follow.
		transport.ForceAttemptHTTP2 = false
	}

	return &http.Client{
		Timeout:   p.cfg.Timeout,
		Transport: transport,
	}, nil
}

// classify maps a transport error to a failure kind.
func classify(err error) FailureKind {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &dnsErr):
		return KindDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindOther
}
