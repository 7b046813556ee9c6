package main

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfig = `
circuits:
  - rank: 1
    identifier: primary_obfuscated
    local_endpoint:
      host: 127.0.0.1
      port: 1080
      kind: socks5
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestCheckConfigValid(t *testing.T) {
	path := writeTestConfig(t, testConfig)
	if code := runCheckConfig([]string{"-config", path}); code != 0 {
		t.Fatalf("checkconfig exited %d for valid config", code)
	}
}

func TestCheckConfigInvalid(t *testing.T) {
	path := writeTestConfig(t, "circuits: []\n")
	if code := runCheckConfig([]string{"-config", path}); code != 1 {
		t.Fatalf("checkconfig exited %d for invalid config, want 1", code)
	}
}

func TestCheckConfigMissingFile(t *testing.T) {
	if code := runCheckConfig([]string{"-config", "/nonexistent/config.yaml"}); code != 1 {
		t.Fatal("checkconfig accepted missing file")
	}
}

func TestStatusDaemonUnreachable(t *testing.T) {
	// Port 1 is never listening.
	if code := runStatus([]string{"-addr", "127.0.0.1:1"}); code != 1 {
		t.Fatalf("status exited %d with no daemon, want 1", code)
	}
}

func TestTestCommandMissingConfig(t *testing.T) {
	if code := runTest([]string{"-config", "/nonexistent/config.yaml"}); code != 1 {
		t.Fatal("test command accepted missing config")
	}
}
