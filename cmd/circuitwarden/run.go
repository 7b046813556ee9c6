package main

import (
	"context"
	"log"

	"circuitwarden/internal/activate"
	"circuitwarden/internal/api"
	"circuitwarden/internal/config"
	"circuitwarden/internal/failover"
	"circuitwarden/internal/healthz"
	"circuitwarden/internal/metrics"
	"circuitwarden/internal/notify"
	"circuitwarden/internal/probe"
	"circuitwarden/internal/stealth"
)

// runController wires the full daemon: stealth setup, failover loop,
// cover-parameter rotation and the local status API. It returns when the
// context is cancelled or a component fails to start.
func runController(ctx context.Context, cfg *config.Config, errCh chan<- error) {
	table, err := cfg.Table()
	if err != nil {
		errCh <- err
		return
	}

	journal, err := failover.OpenJournal(cfg.JournalPath)
	if err != nil {
		errCh <- err
		return
	}
	defer journal.Close()

	shield := stealth.New(cfg.Stealth)
	shield.Apply(ctx)
	go shield.Rotator().Start(ctx)

	m := metrics.New()
	prober := probe.New(cfg.Prober, probe.WithConnShaper(shield.Shape))
	if cfg.Stealth.Rotation.Strategy != stealth.StrategyFixed {
		// Keep the probe handshake fingerprint in step with the rotating
		// cover parameters. Fixed strategy leaves the configured one alone.
		prober.SetFingerprint(shield.Rotator().Current().Fingerprint)
		shield.Rotator().OnRotate(func(_, next stealth.Params) {
			prober.SetFingerprint(next.Fingerprint)
		})
	}
	activator := activate.NewExec(cfg.Activation)

	controller := failover.New(cfg.Failover, table, prober, activator,
		failover.WithNotifier(notify.FromConfig(cfg.Notify)),
		failover.WithMetrics(m),
		failover.WithJournal(journal),
	)

	checks := healthz.NewRunner(cfg.Prober.Timeout)
	for _, c := range table.All() {
		checks.Register(healthz.EndpointCheck(c))
	}

	apiErr := make(chan error, 1)
	server := api.New(cfg.API, controller, m, checks)
	go func() { apiErr <- server.Run(ctx) }()

	log.Printf("circuitwarden %s starting: %d tiers, probing %s every %v",
		version, table.Len(), prober.Target(), cfg.Failover.Interval)

	ctrlErr := make(chan error, 1)
	go func() { ctrlErr <- controller.Run(ctx) }()

	select {
	case err := <-ctrlErr:
		errCh <- err
	case err := <-apiErr:
		if ctx.Err() == nil && err != nil {
			errCh <- err
			return
		}
		errCh <- <-ctrlErr
	}
}
