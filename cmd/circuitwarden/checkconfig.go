package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"circuitwarden/internal/config"
)

// runCheckConfig validates the config file and prints the effective
// settings after defaults, env overrides and profile selection.
func runCheckConfig(args []string) int {
	fs := flag.NewFlagSet("checkconfig", flag.ExitOnError)
	configPath := fs.String("config", "/etc/circuitwarden/config.yaml", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return 1
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render config: %v\n", err)
		return 1
	}
	fmt.Printf("# effective configuration (%s)\n%s", *configPath, out)
	return 0
}
