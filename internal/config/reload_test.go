package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReloadableAcceptsTunableChange(t *testing.T) {
	path := writeConfig(t, validYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("NewReloadable() error: %v", err)
	}
	defer r.Close()

	changed := make(chan *Config, 1)
	r.Watch(func(old, new *Config) { changed <- new })

	updated := validYAML + "\nnotifications:\n  desktop: true\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	select {
	case cfg := <-changed:
		if !cfg.Notify.Desktop {
			t.Fatal("reloaded config lost notification change")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never observed")
	}

	if !r.Get().Notify.Desktop {
		t.Fatal("Get() still returns old config")
	}
}

func TestReloadRejectsCircuitChange(t *testing.T) {
	path := writeConfig(t, validYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("NewReloadable() error: %v", err)
	}
	defer r.Close()

	onlyOne := `
circuits:
  - rank: 1
    identifier: primary_obfuscated
    local_endpoint: {host: 127.0.0.1, port: 1080, kind: socks5}
`
	if err := os.WriteFile(path, []byte(onlyOne), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	// Give the watcher time to pick the write up; the reload must be
	// rejected, leaving the original table in place.
	time.Sleep(500 * time.Millisecond)
	if got := len(r.Get().Circuits); got != 4 {
		t.Fatalf("rejected reload replaced config: %d circuits", got)
	}
}

func TestReloadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, validYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("NewReloadable() error: %v", err)
	}
	defer r.Close()

	if err := os.WriteFile(path, []byte("{{{not yaml"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if len(r.Get().Circuits) != 4 {
		t.Fatal("invalid file replaced running config")
	}
}

func TestReloadRejectsListenChange(t *testing.T) {
	path := writeConfig(t, validYAML)
	r, err := NewReloadable(path)
	if err != nil {
		t.Fatalf("NewReloadable() error: %v", err)
	}
	defer r.Close()

	old := r.Get()
	if err := os.WriteFile(path, []byte(validYAML+"\napi:\n  listen: 127.0.0.1:9999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if r.Get().API.Listen != old.API.Listen {
		t.Fatal("listen address change applied without restart")
	}
}

func TestNewReloadableMissingFile(t *testing.T) {
	if _, err := NewReloadable(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("NewReloadable() accepted missing file")
	}
}
