// Package failover owns the active circuit and drives probing, escalation
// to lower tiers, and opportunistic recovery to the preferred tier.
package failover

import (
	"context"
	"log"
	"sync"
	"time"

	"circuitwarden/internal/activate"
	"circuitwarden/internal/circuit"
	"circuitwarden/internal/metrics"
	"circuitwarden/internal/notify"
	"circuitwarden/internal/probe"
)

// Prober abstracts the connectivity prober so tests can script results.
type Prober interface {
	Probe(ctx context.Context, c *circuit.Circuit) probe.Result
}

// Config configures the failover controller.
type Config struct {
	// Interval between steady-state probes of the active circuit.
	Interval time.Duration `yaml:"probe_interval"`

	// Threshold is the consecutive-failure count that triggers escalation.
	Threshold int `yaml:"failure_threshold"`
}

// ApplyDefaults sets controller defaults.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Threshold <= 0 {
		c.Threshold = 3
	}
}

// State is a read-only snapshot of the controller for the status API.
type State struct {
	ActiveTier          string        `json:"active_tier"`
	ActiveRank          int           `json:"active_rank"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	FailureThreshold    int           `json:"failure_threshold"`
	ProbeInterval       time.Duration `json:"probe_interval"`
	Degraded            bool          `json:"degraded"`
	LastResult          *probe.Result `json:"last_result,omitempty"`
	LastTransition      *Transition   `json:"last_transition,omitempty"`
}

// Controller is the failover state machine. All transitions execute on the
// control loop; the mutex only guards snapshot reads from the status API.
type Controller struct {
	cfg       Config
	table     *circuit.Table
	prober    Prober
	activator activate.Activator
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	journal   *Journal

	mu             sync.RWMutex
	active         *circuit.Circuit
	failures       int
	lastResult     *probe.Result
	lastTransition *Transition
	degraded       bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithNotifier wires best-effort transition notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithMetrics wires Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithJournal wires the append-only transition log.
func WithJournal(j *Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// New creates a controller starting on the rank-1 tier.
func New(cfg Config, table *circuit.Table, prober Prober, activator activate.Activator, opts ...Option) *Controller {
	cfg.ApplyDefaults()
	c := &Controller{
		cfg:       cfg,
		table:     table,
		prober:    prober,
		activator: activator,
		notifier:  notify.Nop{},
		active:    table.Preferred(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics != nil {
		c.metrics.SetActiveTier(c.active.Rank)
	}
	return c
}

// Run drives the control loop until the context is canceled. No probe or
// activation failure terminates the loop.
func (c *Controller) Run(ctx context.Context) error {
	log.Printf("[Failover] starting on %s, interval=%v threshold=%d",
		c.active.Name(), c.cfg.Interval, c.cfg.Threshold)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	// First evaluation happens immediately rather than one interval in.
	c.step(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Failover] stopping: %v", ctx.Err())
			return nil
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

// step performs one steady-state evaluation of the active circuit.
func (c *Controller) step(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	active := c.Active()
	res := c.prober.Probe(ctx, active)
	c.observeProbe(res)
	c.setLastResult(res)

	if res.Success {
		c.resetFailures()
		c.setDegraded(false)
		log.Printf("[Failover] %s healthy (%s, %v)", active.Name(), res.Detail, res.Latency.Round(time.Millisecond))
		if active.Rank > c.table.Preferred().Rank {
			// Recovery piggybacks on health; it is never scheduled
			// independently while degraded.
			c.tryRecovery(ctx)
		}
		return
	}

	failures := c.incrementFailures()
	log.Printf("[Failover] %s probe failed (%s: %s), consecutive=%d/%d",
		active.Name(), res.Kind, res.Detail, failures, c.cfg.Threshold)

	if failures >= c.cfg.Threshold {
		c.resetFailures()
		c.escalate(ctx)
	}
}

// escalate moves preference-rank-wise to the next usable tier, cascading
// through activation and probe failures within a single pass so a string of
// dead tiers does not cost one interval each.
func (c *Controller) escalate(ctx context.Context) {
	from := c.Active()

	for candidate := c.table.After(from.Rank); candidate != nil; candidate = c.table.After(candidate.Rank) {
		if err := c.activator.EnsureRunning(ctx, candidate); err != nil {
			log.Printf("[Failover] activation failed for %s, skipping: %v", candidate.Name(), err)
			continue
		}
		res := c.prober.Probe(ctx, candidate)
		c.observeProbe(res)
		if !res.Success {
			log.Printf("[Failover] %s unreachable during escalation (%s), skipping", candidate.Name(), res.Detail)
			continue
		}
		c.setLastResult(res)
		c.transition(from, candidate, ReasonEscalation)
		c.setDegraded(false)
		return
	}

	// Every remaining tier failed. Settle on the lowest tier and keep
	// monitoring; recovery still triggers once it reports success.
	lowest := c.table.Lowest()
	if from.Rank != lowest.Rank {
		c.transition(from, lowest, ReasonEscalation)
	}
	c.markExhausted()
}

// tryRecovery probes the preferred tier after a healthy steady-state probe
// and switches back when it is reachable again.
func (c *Controller) tryRecovery(ctx context.Context) {
	preferred := c.table.Preferred()

	if err := c.activator.EnsureRunning(ctx, preferred); err != nil {
		log.Printf("[Failover] recovery activation failed for %s: %v", preferred.Name(), err)
		return
	}
	res := c.prober.Probe(ctx, preferred)
	c.observeProbe(res)
	if !res.Success {
		log.Printf("[Failover] recovery probe of %s failed (%s), staying on %s",
			preferred.Name(), res.Detail, c.Active().Name())
		return
	}

	c.setLastResult(res)
	c.transition(c.Active(), preferred, ReasonRecovery)
	c.setDegraded(false)
}

// transition switches the active circuit, journals the change, and fires a
// best-effort notification.
func (c *Controller) transition(from, to *circuit.Circuit, reason Reason) {
	tr := Transition{
		Timestamp: time.Now(),
		FromTier:  string(from.ID),
		FromRank:  from.Rank,
		ToTier:    string(to.ID),
		ToRank:    to.Rank,
		Reason:    reason,
	}

	c.mu.Lock()
	c.active = to
	c.failures = 0
	c.lastTransition = &tr
	c.mu.Unlock()

	log.Printf("[Failover] %s: %s -> %s", reason, from.Name(), to.Name())

	if c.journal != nil {
		if err := c.journal.Record(tr); err != nil {
			log.Printf("[Failover] journal write failed: %v", err)
		}
	}
	if c.metrics != nil {
		c.metrics.ObserveTransition(string(reason))
		c.metrics.SetActiveTier(to.Rank)
		c.metrics.SetConsecutiveFailures(0)
	}
	c.notifier.Notify("circuitwarden "+string(reason),
		string(from.ID)+" -> "+string(to.ID))
}

// markExhausted logs the all-tiers-degraded warning once per episode.
func (c *Controller) markExhausted() {
	c.mu.Lock()
	already := c.degraded
	c.degraded = true
	c.mu.Unlock()

	if !already {
		log.Printf("[Failover] WARNING: all circuits degraded; staying on %s and continuing to monitor", c.Active().Name())
		c.notifier.Notify("circuitwarden degraded", "all circuits failed; monitoring "+string(c.Active().ID))
	}
	if c.metrics != nil {
		c.metrics.SetDegraded(true)
	}
}

// Active returns the current active circuit.
func (c *Controller) Active() *circuit.Circuit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Snapshot returns a read-only copy of the controller state for the
// status API.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := State{
		ActiveTier:          string(c.active.ID),
		ActiveRank:          c.active.Rank,
		ConsecutiveFailures: c.failures,
		FailureThreshold:    c.cfg.Threshold,
		ProbeInterval:       c.cfg.Interval,
		Degraded:            c.degraded,
	}
	if c.lastResult != nil {
		res := *c.lastResult
		st.LastResult = &res
	}
	if c.lastTransition != nil {
		tr := *c.lastTransition
		st.LastTransition = &tr
	}
	return st
}

func (c *Controller) resetFailures() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SetConsecutiveFailures(0)
	}
}

func (c *Controller) incrementFailures() int {
	c.mu.Lock()
	c.failures++
	n := c.failures
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.SetConsecutiveFailures(n)
	}
	return n
}

func (c *Controller) setLastResult(res probe.Result) {
	c.mu.Lock()
	c.lastResult = &res
	c.mu.Unlock()
}

func (c *Controller) setDegraded(d bool) {
	c.mu.Lock()
	changed := c.degraded != d
	c.degraded = d
	c.mu.Unlock()
	if changed && c.metrics != nil {
		c.metrics.SetDegraded(d)
	}
}

func (c *Controller) observeProbe(res probe.Result) {
	if c.metrics != nil {
		c.metrics.ObserveProbe(res.Tier, res.Success, res.Latency)
	}
}
