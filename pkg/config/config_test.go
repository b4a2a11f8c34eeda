package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got error: %v", err)
	}
}

func TestDefaultConfig_PipelineDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.ReconnectDelay != 5*time.Second {
		t.Errorf("Session.ReconnectDelay = %v, want 5s", cfg.Session.ReconnectDelay)
	}
	if cfg.Session.StatsInterval != 1*time.Second {
		t.Errorf("Session.StatsInterval = %v, want 1s", cfg.Session.StatsInterval)
	}
	if cfg.Session.DefaultQuality != "auto" {
		t.Errorf("Session.DefaultQuality = %q, want auto", cfg.Session.DefaultQuality)
	}
	if cfg.Alerts.MinInterval != 0 {
		t.Errorf("Alerts.MinInterval = %v, want 0 (edge-trigger only)", cfg.Alerts.MinInterval)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "server address must not be empty",
			mutate: func(c *Config) {
				c.Server.Address = ""
			},
		},
		{
			name: "signaling base url must not be empty",
			mutate: func(c *Config) {
				c.Signaling.BaseURL = ""
			},
		},
		{
			name: "channel url must not be empty",
			mutate: func(c *Config) {
				c.Channel.URL = ""
			},
		},
		{
			name: "signaling base url scheme must be http or https",
			mutate: func(c *Config) {
				c.Signaling.BaseURL = "ftp://signal.local"
			},
		},
		{
			name: "channel url scheme must be ws or wss",
			mutate: func(c *Config) {
				c.Channel.URL = "http://channel.local/events"
			},
		},
		{
			name: "pong timeout must exceed ping interval",
			mutate: func(c *Config) {
				c.Channel.PingInterval = time.Minute
				c.Channel.PongTimeout = time.Second
			},
		},
		{
			name: "reconnect delay must be > 0",
			mutate: func(c *Config) {
				c.Session.ReconnectDelay = 0
			},
		},
		{
			name: "stats interval must be > 0",
			mutate: func(c *Config) {
				c.Session.StatsInterval = 0
			},
		},
		{
			name: "default quality must be a known level",
			mutate: func(c *Config) {
				c.Session.DefaultQuality = "ultra"
			},
		},
		{
			name: "alert history must be > 0",
			mutate: func(c *Config) {
				c.Alerts.HistorySize = 0
			},
		},
		{
			name: "redis address required when enabled",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
		},
		{
			name: "backup directory required when enabled",
			mutate: func(c *Config) {
				c.Backup.Enabled = true
				c.Backup.Directory = ""
			},
		},
		{
			name: "jwt secret required when auth enabled",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = ""
			},
		},
		{
			name: "sample rate within [0,1]",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("Server.Address = %q, want :8080", cfg.Server.Address)
	}
}

func TestLoad_YamlOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  address: ":9999"
session:
  reconnect_delay: 2s
alerts:
  min_interval: 30s
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("Server.Address = %q, want :9999", cfg.Server.Address)
	}
	if cfg.Session.ReconnectDelay != 2*time.Second {
		t.Errorf("Session.ReconnectDelay = %v, want 2s", cfg.Session.ReconnectDelay)
	}
	if cfg.Alerts.MinInterval != 30*time.Second {
		t.Errorf("Alerts.MinInterval = %v, want 30s", cfg.Alerts.MinInterval)
	}
	// Untouched sections keep defaults.
	if cfg.Channel.URL != "ws://localhost:8090/events" {
		t.Errorf("Channel.URL = %q, want default", cfg.Channel.URL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FACEVIEW_CHANNEL_URL", "ws://override:7000/events")
	t.Setenv("FACEVIEW_LOG_LEVEL", "debug")
	t.Setenv("FACEVIEW_STATS_INTERVAL", "250ms")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Channel.URL != "ws://override:7000/events" {
		t.Errorf("Channel.URL = %q, want env override", cfg.Channel.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Session.StatsInterval != 250*time.Millisecond {
		t.Errorf("Session.StatsInterval = %v, want 250ms", cfg.Session.StatsInterval)
	}
}

func TestLoad_MalformedStatsIntervalEnvKeepsDefault(t *testing.T) {
	t.Setenv("FACEVIEW_STATS_INTERVAL", "soon")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Session.StatsInterval != time.Second {
		t.Errorf("Session.StatsInterval = %v, want default 1s", cfg.Session.StatsInterval)
	}
}
