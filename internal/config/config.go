// Package config loads, defaults and validates the daemon configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"circuitwarden/internal/activate"
	"circuitwarden/internal/api"
	"circuitwarden/internal/circuit"
	"circuitwarden/internal/failover"
	"circuitwarden/internal/notify"
	"circuitwarden/internal/probe"
	"circuitwarden/internal/stealth"
)

type Config struct {
	Circuits    []circuit.Circuit `yaml:"circuits"`
	Prober      probe.Config      `yaml:"prober"`
	Failover    failover.Config   `yaml:"failover"`
	Activation  activate.Config   `yaml:"activation"`
	Stealth     stealth.Config    `yaml:"stealth"`
	Notify      notify.Config     `yaml:"notifications"`
	API         api.Config        `yaml:"api"`
	JournalPath string            `yaml:"journal_path"`

	// ProfilesPath points at an optional YAML file of extra traffic
	// profiles; Profile selects one by name.
	ProfilesPath string `yaml:"profiles_path"`
	Profile      string `yaml:"profile"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Prober.ApplyDefaults()
	c.Failover.ApplyDefaults()
	c.Activation.ApplyDefaults()
	c.Stealth.ApplyDefaults()
	c.Notify.ApplyDefaults()
	c.API.ApplyDefaults()
	if c.JournalPath == "" {
		c.JournalPath = "/var/lib/circuitwarden/transitions.jsonl"
	}
}

// Environment overrides for the common knobs, so an operator can adjust a
// deployment without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CIRCUITWARDEN_PROBE_TARGET"); v != "" {
		c.Prober.Target = v
	}
	if v := os.Getenv("CIRCUITWARDEN_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Prober.Timeout = d
		}
	}
	if v := os.Getenv("CIRCUITWARDEN_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Failover.Interval = d
		}
	}
	if v := os.Getenv("CIRCUITWARDEN_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Failover.Threshold = n
		}
	}
}

func (c *Config) validate() error {
	if len(c.Circuits) == 0 {
		return fmt.Errorf("config: at least one circuit is required")
	}
	if _, err := circuit.Build(c.Circuits); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Prober.Timeout >= c.Failover.Interval {
		return fmt.Errorf("config: probe timeout %v must be shorter than probe interval %v",
			c.Prober.Timeout, c.Failover.Interval)
	}
	if err := c.Stealth.Rotation.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Profile != "" {
		profiles, err := stealth.LoadProfiles(c.ProfilesPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := stealth.SelectProfile(&c.Stealth, profiles, c.Profile); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// Table builds the validated circuit table.
func (c *Config) Table() (*circuit.Table, error) {
	return circuit.Build(c.Circuits)
}
