// Command circuitwarden keeps client connectivity alive by failing over
// between an ordered set of proxy transport tiers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"circuitwarden/internal/config"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		runDaemon(args)
	case "status":
		os.Exit(runStatus(args))
	case "test":
		os.Exit(runTest(args))
	case "checkconfig":
		os.Exit(runCheckConfig(args))
	case "version":
		fmt.Printf("circuitwarden %s (commit %s, built %s)\n", version, commit, buildTime)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: circuitwarden <command> [flags]

Commands:
  run          Run the failover daemon (default)
  status       Show the running daemon's active tier and probe state
  test         Probe every configured tier once and report reachability
  checkconfig  Validate the config file and print the effective settings
  version      Print version information
`)
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "/etc/circuitwarden/config.yaml", "Path to config file")
	fs.Parse(args)

	reloader, err := config.NewReloadable(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	defer reloader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	restartCh := make(chan *config.Config, 1)
	reloader.Watch(func(old, next *config.Config) {
		select {
		case restartCh <- next:
		default:
		}
	})

	runCtx, runCancel := context.WithCancel(ctx)
	defer func() { runCancel() }()
	errCh := make(chan error, 1)
	go runController(runCtx, reloader.Get(), errCh)

	for {
		select {
		case <-ctx.Done():
			runCancel()
			<-errCh
			return
		case next := <-restartCh:
			log.Printf("config reloaded: restarting controller with updated settings")
			runCancel()
			<-errCh
			runCtx, runCancel = context.WithCancel(ctx)
			errCh = make(chan error, 1)
			go runController(runCtx, next, errCh)
		case err := <-errCh:
			if ctx.Err() != nil {
				runCancel()
				return
			}
			log.Fatalf("controller failed: %v", err)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
}
