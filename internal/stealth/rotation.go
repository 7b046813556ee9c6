package stealth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"
)

// Strategy selects how cover parameters advance on each rotation.
type Strategy string

const (
	StrategyFixed      Strategy = "fixed"
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round_robin"
	StrategyTimeBased  Strategy = "time_based"
)

// Default cover pools. SNI values are popular CDN and SaaS fronts that
// blend into ordinary traffic; paths look like routine site fetches.
var (
	defaultSNIPool = []string{
		"www.cloudflare.com",
		"www.microsoft.com",
		"www.apple.com",
		"www.amazon.com",
		"www.netflix.com",
		"www.reddit.com",
		"www.linkedin.com",
		"www.github.com",
		"www.dropbox.com",
		"www.office.com",
		"www.spotify.com",
		"www.akamai.com",
		"www.fastly.com",
	}

	defaultFingerprintPool = []string{
		"chrome", "firefox", "safari", "edge", "ios", "android", "random",
	}

	defaultPathPool = []string{
		"/",
		"/index.html",
		"/about",
		"/blog",
		"/pricing",
		"/download",
		"/docs",
		"/api/v1/health",
		"/api/v1/status",
		"/cdn-cgi/trace",
		"/robots.txt",
	}
)

// RotationConfig holds cover-parameter rotation settings.
type RotationConfig struct {
	Strategy     Strategy      `yaml:"strategy"`
	Interval     time.Duration `yaml:"interval"`
	SNIPool      []string      `yaml:"sni_pool"`
	Fingerprints []string      `yaml:"fingerprints"`
	PathPool     []string      `yaml:"path_pool"`
}

// ApplyDefaults sets rotation defaults.
func (c *RotationConfig) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyTimeBased
	}
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if len(c.SNIPool) == 0 {
		c.SNIPool = defaultSNIPool
	}
	if len(c.Fingerprints) == 0 {
		c.Fingerprints = defaultFingerprintPool
	}
	if len(c.PathPool) == 0 {
		c.PathPool = defaultPathPool
	}
}

// Validate checks the rotation strategy.
func (c *RotationConfig) Validate() error {
	switch c.Strategy {
	case StrategyFixed, StrategyRandom, StrategyRoundRobin, StrategyTimeBased:
		return nil
	default:
		return fmt.Errorf("unknown rotation strategy %q", c.Strategy)
	}
}

// Params is one set of cover parameters.
type Params struct {
	SNI         string `json:"sni"`
	Fingerprint string `json:"fingerprint"`
	Path        string `json:"path"`
}

// Rotator rotates SNI, TLS fingerprint and cover path on an interval.
type Rotator struct {
	cfg RotationConfig

	mu       sync.RWMutex
	current  Params
	sniIdx   int
	fpIdx    int
	pathIdx  int
	rotated  int
	lastTime time.Time

	onRotate func(old, next Params)
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRotator creates a rotator seeded with a random parameter set.
func NewRotator(cfg RotationConfig) *Rotator {
	cfg.ApplyDefaults()
	r := &Rotator{
		cfg:      cfg,
		lastTime: time.Now(),
		stopCh:   make(chan struct{}),
	}
	r.sniIdx = randIndex(len(cfg.SNIPool))
	r.fpIdx = randIndex(len(cfg.Fingerprints))
	r.pathIdx = randIndex(len(cfg.PathPool))
	r.current = r.paramsAt(r.sniIdx, r.fpIdx, r.pathIdx)
	return r
}

// OnRotate registers a callback invoked after every rotation.
func (r *Rotator) OnRotate(fn func(old, next Params)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRotate = fn
}

// Current returns the active parameter set.
func (r *Rotator) Current() Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Rotations returns how many rotations have occurred.
func (r *Rotator) Rotations() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rotated
}

// Start runs the rotation loop until the context is cancelled.
func (r *Rotator) Start(ctx context.Context) {
	if r.cfg.Strategy == StrategyFixed {
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Rotate()
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		}
	}
}

// Stop stops the rotation loop. Safe to call more than once.
func (r *Rotator) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Rotate advances the cover parameters according to the strategy. Fixed
// never changes; round_robin walks the pools in order; random and
// time_based draw fresh values.
func (r *Rotator) Rotate() {
	r.mu.Lock()

	old := r.current
	switch r.cfg.Strategy {
	case StrategyFixed:
		r.mu.Unlock()
		return
	case StrategyRoundRobin:
		r.sniIdx = (r.sniIdx + 1) % len(r.cfg.SNIPool)
		r.fpIdx = (r.fpIdx + 1) % len(r.cfg.Fingerprints)
		r.pathIdx = (r.pathIdx + 1) % len(r.cfg.PathPool)
	default: // random, time_based
		r.sniIdx = randIndex(len(r.cfg.SNIPool))
		r.fpIdx = randIndex(len(r.cfg.Fingerprints))
		r.pathIdx = randIndex(len(r.cfg.PathPool))
	}
	r.current = r.paramsAt(r.sniIdx, r.fpIdx, r.pathIdx)
	r.rotated++
	r.lastTime = time.Now()

	next := r.current
	cb := r.onRotate
	r.mu.Unlock()

	log.Printf("[Stealth] rotated cover parameters: sni=%s fingerprint=%s path=%s",
		next.SNI, next.Fingerprint, next.Path)
	if cb != nil {
		go cb(old, next)
	}
}

// ShouldRotate reports whether the configured interval has elapsed since
// the last rotation. Only meaningful for the time_based strategy.
func (r *Rotator) ShouldRotate() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cfg.Strategy != StrategyTimeBased {
		return false
	}
	return time.Since(r.lastTime) >= r.cfg.Interval
}

func (r *Rotator) paramsAt(sni, fp, path int) Params {
	return Params{
		SNI:         r.cfg.SNIPool[sni],
		Fingerprint: r.cfg.Fingerprints[fp],
		Path:        r.cfg.PathPool[path],
	}
}

func randIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return int(time.Now().UnixNano()) % n
	}
	return int(v.Int64())
}
