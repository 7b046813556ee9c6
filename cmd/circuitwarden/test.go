package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"circuitwarden/internal/config"
	"circuitwarden/internal/probe"
	"circuitwarden/internal/stealth"
)

// runTest probes every configured tier once and reports reachability.
// Exit code 0 means at least one tier works.
func runTest(args []string) int {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	configPath := fs.String("config", "/etc/circuitwarden/config.yaml", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return 1
	}
	table, err := cfg.Table()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid circuit table: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	shield := stealth.New(cfg.Stealth)
	prober := probe.New(cfg.Prober, probe.WithConnShaper(shield.Shape))
	fmt.Printf("Probing %s through %d tiers:\n", prober.Target(), table.Len())

	anyOK := false
	for _, res := range prober.TestAll(ctx, table) {
		if res.Success {
			anyOK = true
			fmt.Printf("  %-22s OK   (%v)\n", res.Tier, res.Latency.Round(time.Millisecond))
		} else {
			fmt.Printf("  %-22s FAIL (%s: %s)\n", res.Tier, res.Kind, res.Detail)
		}
	}

	if !anyOK {
		fmt.Println("no tier is reachable")
		return 1
	}
	return 0
}
