package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Browser.DebuggerURL != "ws://127.0.0.1:9222" {
		t.Errorf("default debugger URL = %q", cfg.Browser.DebuggerURL)
	}
	if cfg.Engine.MaxRetries != 2 {
		t.Errorf("default max retries = %d, want 2", cfg.Engine.MaxRetries)
	}
	if !cfg.Engine.UseSecondPublishClick() {
		t.Error("second publish click should default to enabled")
	}
	if !cfg.History.Enabled {
		t.Error("history recording should default to enabled")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Platform.Host != "x.com" {
		t.Errorf("host = %q, want x.com", cfg.Platform.Host)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
browser:
  debugger_url: ws://10.0.0.5:9222
engine:
  max_retries: 5
  post_delay: 2m
  second_publish_click: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Browser.DebuggerURL != "ws://10.0.0.5:9222" {
		t.Errorf("debugger URL not overridden: %q", cfg.Browser.DebuggerURL)
	}
	if cfg.Engine.MaxRetries != 5 {
		t.Errorf("max retries not overridden: %d", cfg.Engine.MaxRetries)
	}
	if got := cfg.Engine.PostDelayDuration(); got != 2*time.Minute {
		t.Errorf("post delay = %v, want 2m", got)
	}
	if cfg.Engine.UseSecondPublishClick() {
		t.Error("second publish click should be disabled by the file")
	}
	// Untouched fields keep their defaults.
	if cfg.Platform.HomeURL != "https://x.com/home" {
		t.Errorf("home URL lost its default: %q", cfg.Platform.HomeURL)
	}
	if got := cfg.Engine.ThreadDelayDuration(); got != 90*time.Second {
		t.Errorf("thread delay default = %v, want 90s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("browser: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing debugger url", func(c *Config) { c.Browser.DebuggerURL = "" }},
		{"missing home url", func(c *Config) { c.Platform.HomeURL = "" }},
		{"missing host", func(c *Config) { c.Platform.Host = "" }},
		{"history enabled without path", func(c *Config) { c.History.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	cfg := DefaultConfig()
	cfg.History.Enabled = false
	cfg.History.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled history should not require a path: %v", err)
	}
}

func TestDurationAccessorsFallBack(t *testing.T) {
	var e EngineConfig
	if got := e.RetryDelayDuration(); got != 10*time.Second {
		t.Errorf("empty retry delay = %v, want 10s fallback", got)
	}
	e.RetryDelay = "garbage"
	if got := e.RetryDelayDuration(); got != 10*time.Second {
		t.Errorf("unparsable retry delay = %v, want 10s fallback", got)
	}
	e.RetryDelay = "30s"
	if got := e.RetryDelayDuration(); got != 30*time.Second {
		t.Errorf("retry delay = %v, want 30s", got)
	}
	if got := e.DuplicateCooldownDuration(); got != 5*time.Minute {
		t.Errorf("empty duplicate cooldown = %v, want 5m fallback", got)
	}

	var b BrowserConfig
	if got := b.ConnectBackoffDuration(); got != 5*time.Second {
		t.Errorf("empty backoff = %v, want 5s fallback", got)
	}
	if got := b.NavigationTimeoutDuration(); got != 15*time.Second {
		t.Errorf("empty nav timeout = %v, want 15s fallback", got)
	}
}
