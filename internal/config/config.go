package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the publisher.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Browser  BrowserConfig  `yaml:"browser"`
	Platform PlatformConfig `yaml:"platform"`
	Engine   EngineConfig   `yaml:"engine"`
	History  HistoryConfig  `yaml:"history"`
}

type LoggingConfig struct {
	// Level: debug | info | warn | error.
	Level string `yaml:"level"`
	// Optional log file; stderr when empty.
	File string `yaml:"file"`
}

// BrowserConfig configures how we attach to the already-running Chrome.
type BrowserConfig struct {
	// Remote debugging endpoint (e.g., ws://localhost:9222). The browser
	// is assumed to be running and logged in to the platform.
	DebuggerURL string `yaml:"debugger_url"`
	// Connection attempt budget and fixed backoff between attempts.
	ConnectAttempts int    `yaml:"connect_attempts"`
	ConnectBackoff  string `yaml:"connect_backoff"`
	// Navigation timeout for fresh tabs (e.g., "15s").
	NavigationTimeout string `yaml:"navigation_timeout"`
}

// PlatformConfig describes the target platform's surfaces.
type PlatformConfig struct {
	HomeURL string `yaml:"home_url"`
	Host    string `yaml:"host"`
	// Paths a reused tab must not be sitting on.
	DenyPaths []string `yaml:"deny_paths"`
}

// EngineConfig tunes the publish engine's retry and pacing behavior.
type EngineConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	RetryDelay string `yaml:"retry_delay"`
	// Pacing between posts and after threads.
	PostDelay   string `yaml:"post_delay"`
	ThreadDelay string `yaml:"thread_delay"`
	// Extra pause after the platform flags duplicate content.
	DuplicateCooldown string `yaml:"duplicate_cooldown"`
	// Tab budget before stale-tab cleanup kicks in.
	MaxTabs int `yaml:"max_tabs"`
	// Whether a second publish click is attempted when the composer stays
	// open. The underlying platform quirk is undocumented, hence a flag.
	SecondPublishClick *bool `yaml:"second_publish_click"`
	// Settle delays after media upload.
	ImageSettle string `yaml:"image_settle"`
	VideoSettle string `yaml:"video_settle"`
	// Directory for per-run JSONL flight-recorder traces; empty disables.
	TraceDir string `yaml:"trace_dir"`
}

// HistoryConfig controls the SQLite publish-history recorder.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig provides reasonable defaults for local operation.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Browser: BrowserConfig{
			DebuggerURL:       "ws://127.0.0.1:9222",
			ConnectAttempts:   3,
			ConnectBackoff:    "5s",
			NavigationTimeout: "15s",
		},
		Platform: PlatformConfig{
			HomeURL: "https://x.com/home",
			Host:    "x.com",
			DenyPaths: []string{
				"/search", "/compose", "/login", "/logout", "/settings", "/i/flow",
			},
		},
		Engine: EngineConfig{
			MaxRetries:        2,
			RetryDelay:        "10s",
			PostDelay:         "60s",
			ThreadDelay:       "90s",
			DuplicateCooldown: "5m",
			MaxTabs:           6,
			ImageSettle:       "3s",
			VideoSettle:       "8s",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "publishes.db",
		},
	}
}

// Load reads YAML config from disk and overlays defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so a run fails deterministically
// at startup, not mid-publish.
func (c *Config) Validate() error {
	if c.Browser.DebuggerURL == "" {
		return errors.New("browser.debugger_url is required")
	}
	if c.Platform.HomeURL == "" {
		return errors.New("platform.home_url is required")
	}
	if c.Platform.Host == "" {
		return errors.New("platform.host is required")
	}
	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.path is required when history is enabled")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ConnectBackoffDuration returns the parsed backoff with a sane default.
func (b BrowserConfig) ConnectBackoffDuration() time.Duration {
	return parseDuration(b.ConnectBackoff, 5*time.Second)
}

// NavigationTimeoutDuration returns the parsed timeout with a sane default.
func (b BrowserConfig) NavigationTimeoutDuration() time.Duration {
	return parseDuration(b.NavigationTimeout, 15*time.Second)
}

// RetryDelayDuration returns the parsed inter-attempt delay.
func (e EngineConfig) RetryDelayDuration() time.Duration {
	return parseDuration(e.RetryDelay, 10*time.Second)
}

// PostDelayDuration returns the parsed inter-post pacing delay.
func (e EngineConfig) PostDelayDuration() time.Duration {
	return parseDuration(e.PostDelay, 60*time.Second)
}

// ThreadDelayDuration returns the parsed post-thread pacing delay.
func (e EngineConfig) ThreadDelayDuration() time.Duration {
	return parseDuration(e.ThreadDelay, 90*time.Second)
}

// DuplicateCooldownDuration returns the parsed duplicate-content cooldown.
func (e EngineConfig) DuplicateCooldownDuration() time.Duration {
	return parseDuration(e.DuplicateCooldown, 5*time.Minute)
}

// ImageSettleDuration returns the parsed image upload settle delay.
func (e EngineConfig) ImageSettleDuration() time.Duration {
	return parseDuration(e.ImageSettle, 3*time.Second)
}

// VideoSettleDuration returns the parsed video upload settle delay.
func (e EngineConfig) VideoSettleDuration() time.Duration {
	return parseDuration(e.VideoSettle, 8*time.Second)
}

// UseSecondPublishClick returns whether the two-click quirk workaround is
// enabled (default: true).
func (e EngineConfig) UseSecondPublishClick() bool {
	if e.SecondPublishClick == nil {
		return true
	}
	return *e.SecondPublishClick
}
