package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return logger, &buf
}

func writeTestConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const validConfig = `
server:
  port: 8080
breakers:
  - name: payments
    upstream: "http://localhost:3000"
    failure_threshold: 3
`

const validConfigUpdated = `
server:
  port: 8080
breakers:
  - name: payments
    upstream: "http://localhost:3000"
    failure_threshold: 8
  - name: inventory
    upstream: "http://localhost:3001"
`

const invalidConfig = `
server:
  port: -1
breakers: []
`

func TestReloader_Current(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)
	cfg := r.Current()
	if len(cfg.Breakers) != 1 || cfg.Breakers[0].FailureThreshold != 3 {
		t.Errorf("unexpected initial config: %+v", cfg.Breakers)
	}
}

func TestReloader_Reload_ValidConfig(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	var got *Config
	r.OnReload(func(c *Config) { got = c })

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	if !r.Reload() {
		t.Fatal("expected reload to succeed")
	}

	cfg := r.Current()
	if len(cfg.Breakers) != 2 {
		t.Fatalf("expected 2 breakers after reload, got %d", len(cfg.Breakers))
	}
	if cfg.Breakers[0].FailureThreshold != 8 {
		t.Errorf("expected threshold 8 after reload, got %d", cfg.Breakers[0].FailureThreshold)
	}
	if got != cfg {
		t.Error("expected callback invoked with the new config")
	}
}

func TestReloader_Reload_InvalidConfigKeepsCurrent(t *testing.T) {
	logger, logBuf := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	called := false
	r.OnReload(func(*Config) { called = true })

	if err := os.WriteFile(path, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	if r.Reload() {
		t.Fatal("expected reload to fail")
	}
	if r.Current() != initial {
		t.Error("expected current config unchanged after failed reload")
	}
	if called {
		t.Error("expected no callback after failed reload")
	}
	if !strings.Contains(logBuf.String(), "keeping current") {
		t.Error("expected a log line about keeping the current config")
	}
}

func TestReloader_FileWatch(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r := NewReloader(path, initial, logger)

	reloaded := make(chan *Config, 1)
	r.OnReload(func(c *Config) { reloaded <- c })

	r.Start()
	defer r.Stop()

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if len(cfg.Breakers) != 2 {
			t.Errorf("expected 2 breakers after watched reload, got %d", len(cfg.Breakers))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("file watcher never triggered a reload")
	}
}
