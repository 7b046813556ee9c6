package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"circuitwarden/internal/config"
	"circuitwarden/internal/failover"
)

// runStatus queries the running daemon's local API and prints the state.
// Informational: exits 0 whenever a state was printed. A daemon that cannot
// be reached at all still exits 1 so scripts can detect it.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "/etc/circuitwarden/config.yaml", "Path to config file")
	addr := fs.String("addr", "", "Status API address (overrides config)")
	asJSON := fs.Bool("json", false, "Print the raw JSON state")
	fs.Parse(args)

	listen := *addr
	if listen == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
			return 1
		}
		listen = cfg.API.Listen
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + listen + "/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon not reachable at %s: %v\n", listen, err)
		return 1
	}
	defer resp.Body.Close()

	var state failover.State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		fmt.Fprintf(os.Stderr, "decode status: %v\n", err)
		return 1
	}

	if *asJSON {
		out, _ := json.MarshalIndent(state, "", "  ")
		fmt.Println(string(out))
		return 0
	}

	printState(state)
	return 0
}

func printState(s failover.State) {
	fmt.Printf("Active tier:          %s (rank %d)\n", s.ActiveTier, s.ActiveRank)
	fmt.Printf("Consecutive failures: %d of %d\n", s.ConsecutiveFailures, s.FailureThreshold)
	fmt.Printf("Probe interval:       %v\n", s.ProbeInterval)
	if s.Degraded {
		fmt.Println("State:                DEGRADED (all tiers exhausted)")
	} else {
		fmt.Println("State:                healthy")
	}
	if r := s.LastResult; r != nil {
		verdict := "ok"
		if !r.Success {
			verdict = fmt.Sprintf("failed (%s: %s)", r.Kind, r.Detail)
		}
		fmt.Printf("Last probe:           %s, %v, %s\n",
			r.Timestamp.Format(time.RFC3339), r.Latency.Round(time.Millisecond), verdict)
	}
	if tr := s.LastTransition; tr != nil {
		fmt.Printf("Last transition:      %s -> %s (%s) at %s\n",
			tr.FromTier, tr.ToTier, tr.Reason, tr.Timestamp.Format(time.RFC3339))
	}
}
