package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
api:
  url: https://chorus.example.com
  timeout: 5s
client:
  caller_label: ops-console
  stale_time: 30s
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.API.URL != "https://chorus.example.com" || cfg.API.Timeout != 5*time.Second {
		t.Fatalf("api section: %+v", cfg.API)
	}
	if cfg.Client.CallerLabel != "ops-console" || cfg.Client.StaleTime != 30*time.Second {
		t.Fatalf("client section: %+v", cfg.Client)
	}
	if cfg.Client.PollInterval != 10*time.Second {
		t.Fatalf("poll interval should keep its default, got %s", cfg.Client.PollInterval)
	}
	if cfg.Server.LockCleanupInterval != time.Minute {
		t.Fatalf("cleanup interval default: %s", cfg.Server.LockCleanupInterval)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad url":      "api:\n  url: ftp://x\n",
		"no caller":    "client:\n  caller_label: \"  \"\n",
		"bad level":    "logging:\n  level: loud\n",
		"zero poll":    "client:\n  poll_interval: 0s\n",
		"neg timeout":  "api:\n  timeout: -1s\n",
		"broken yaml":  "api: [",
		"zero cleanup": "server:\n  lock_cleanup_interval: 0s\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.API.URL != "http://localhost:8000" {
		t.Fatalf("missing file should yield defaults: %v %+v", err, cfg)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load should require the file, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("server:\n  addr: 0.0.0.0:9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil || cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("load: %v %+v", err, cfg)
	}
}
