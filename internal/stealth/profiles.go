package stealth

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Profile bundles the shaping settings for one traffic signature. Operators
// can ship extra profiles in a YAML file and select one by name.
type Profile struct {
	Fragment FragmentConfig `yaml:"fragment"`
	Jitter   JitterConfig   `yaml:"jitter"`
}

// builtinProfiles are available without a profile file.
var builtinProfiles = map[string]Profile{
	string(ProfileWebBrowsing): {
		Fragment: FragmentConfig{Enabled: true, Size: 32, Randomize: true, DelayMax: 10 * time.Millisecond},
		Jitter:   JitterConfig{Enabled: true, Profile: ProfileWebBrowsing},
	},
	string(ProfileVideoStream): {
		Fragment: FragmentConfig{Enabled: true, Size: 128, DelayMax: 2 * time.Millisecond},
		Jitter:   JitterConfig{Enabled: true, Profile: ProfileVideoStream},
	},
	string(ProfileFileTransfer): {
		Fragment: FragmentConfig{Enabled: false},
		Jitter:   JitterConfig{Enabled: true, Profile: ProfileFileTransfer},
	},
}

// LoadProfiles reads named profiles from a YAML file and merges them over
// the builtin set. File entries win on name collision.
func LoadProfiles(path string) (map[string]Profile, error) {
	merged := make(map[string]Profile, len(builtinProfiles))
	for name, p := range builtinProfiles {
		merged[name] = p
	}
	if path == "" {
		return merged, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var fromFile map[string]Profile
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for name, p := range fromFile {
		merged[name] = p
	}
	return merged, nil
}

// SelectProfile applies the named profile's shaping settings to cfg.
func SelectProfile(cfg *Config, profiles map[string]Profile, name string) error {
	p, ok := profiles[name]
	if !ok {
		return fmt.Errorf("unknown traffic profile %q", name)
	}
	cfg.Fragment = p.Fragment
	cfg.Jitter = p.Jitter
	cfg.ApplyDefaults()
	return nil
}
