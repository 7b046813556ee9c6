package stealth

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// CongestionConfig tunes the host TCP stack for a hostile path. BBR holds
// throughput through the loss and reordering that DPI middleboxes inject.
type CongestionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Algorithm string `yaml:"algorithm"`
	FastOpen  bool   `yaml:"fast_open"`
}

// ApplyDefaults sets congestion tuning defaults.
func (c *CongestionConfig) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "bbr"
	}
}

// ApplyCongestion applies system-wide congestion settings (requires root).
// No-op on non-Linux hosts.
func ApplyCongestion(cfg CongestionConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if runtime.GOOS != "linux" {
		return nil
	}

	if cfg.Algorithm != "" {
		available, err := availableCongestionAlgorithms()
		if err == nil && !contains(available, cfg.Algorithm) {
			return fmt.Errorf("congestion algorithm %q not available (have %v)", cfg.Algorithm, available)
		}
		if err := writeSysctl("net.ipv4.tcp_congestion_control", cfg.Algorithm); err != nil {
			return fmt.Errorf("set congestion control: %w", err)
		}
	}
	if cfg.FastOpen {
		if err := writeSysctl("net.ipv4.tcp_fastopen", "3"); err != nil {
			return fmt.Errorf("enable TCP fast open: %w", err)
		}
	}
	return nil
}

// writeSysctl writes a value to a sysctl parameter.
func writeSysctl(key, value string) error {
	cmd := exec.Command("sysctl", "-w", fmt.Sprintf("%s=%s", key, value))
	return cmd.Run()
}

func availableCongestionAlgorithms() ([]string, error) {
	out, err := exec.Command("sysctl", "-n", "net.ipv4.tcp_available_congestion_control").Output()
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(out)), nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
