package config

import (
	"fmt"
	"os"
	"time"

	"faceview/pkg/utils"
	"faceview/pkg/validation"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signaling struct {
		BaseURL        string        `yaml:"base_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		RetryAttempts  int           `yaml:"retry_attempts"`
	} `yaml:"signaling"`

	Channel struct {
		URL                 string        `yaml:"url"`
		HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`

		Reconnect struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"reconnect"`
	} `yaml:"channel"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	} `yaml:"webrtc"`

	Session struct {
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		StatsInterval  time.Duration `yaml:"stats_interval"`
		DefaultQuality string        `yaml:"default_quality"`
	} `yaml:"session"`

	Alerts struct {
		HistorySize int           `yaml:"history_size"`
		MinInterval time.Duration `yaml:"min_interval"`
	} `yaml:"alerts"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled      bool   `yaml:"enabled"`
		Address      string `yaml:"address"`
		Password     string `yaml:"password"`
		DB           int    `yaml:"db"`
		PoolSize     int    `yaml:"pool_size"`
		AlertChannel string `yaml:"alert_channel"`
	} `yaml:"redis"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Directory     string        `yaml:"directory"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	Auth struct {
		Enabled   bool   `yaml:"enabled"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signaling
	if err := validation.ValidateURL(c.Signaling.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("signaling.base_url: %w", err)
	}
	if c.Signaling.RequestTimeout <= 0 {
		return fmt.Errorf("signaling.request_timeout must be > 0")
	}
	if c.Signaling.RetryAttempts < 0 {
		return fmt.Errorf("signaling.retry_attempts must be >= 0")
	}

	// Channel
	if err := validation.ValidateURL(c.Channel.URL, "ws", "wss"); err != nil {
		return fmt.Errorf("channel.url: %w", err)
	}
	if c.Channel.PingInterval <= 0 {
		return fmt.Errorf("channel.ping_interval must be > 0")
	}
	if c.Channel.PongTimeout <= c.Channel.PingInterval {
		return fmt.Errorf("channel.pong_timeout must be > channel.ping_interval")
	}
	if c.Channel.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("channel.reconnect.max_attempts must be >= 0")
	}
	if c.Channel.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("channel.reconnect.initial_delay must be > 0")
	}
	if c.Channel.Reconnect.MaxDelay < c.Channel.Reconnect.InitialDelay {
		return fmt.Errorf("channel.reconnect.max_delay must be >= initial_delay")
	}

	// WebRTC
	if c.WebRTC.NegotiationTimeout <= 0 {
		return fmt.Errorf("webrtc.negotiation_timeout must be > 0")
	}

	// Session
	if c.Session.ReconnectDelay <= 0 {
		return fmt.Errorf("session.reconnect_delay must be > 0")
	}
	if c.Session.StatsInterval <= 0 {
		return fmt.Errorf("session.stats_interval must be > 0")
	}
	// "auto" defers the choice to the session; anything else must be an
	// explicit level.
	if c.Session.DefaultQuality != "auto" {
		if err := validation.ValidateQuality(c.Session.DefaultQuality); err != nil {
			return fmt.Errorf("session.default_quality: %w", err)
		}
	}

	// Alerts
	if c.Alerts.HistorySize <= 0 {
		return fmt.Errorf("alerts.history_size must be > 0")
	}
	if c.Alerts.MinInterval < 0 {
		return fmt.Errorf("alerts.min_interval must be >= 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.AlertChannel == "" {
			return fmt.Errorf("redis.alert_channel must not be empty when redis.enabled=true")
		}
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}

	// Auth
	if c.Auth.Enabled {
		if err := validation.ValidateNonEmptyString(c.Auth.JWTSecret, "auth.jwt_secret"); err != nil {
			return err
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signaling.BaseURL = "http://localhost:8090"
	cfg.Signaling.RequestTimeout = 10 * time.Second
	cfg.Signaling.RetryAttempts = 2

	cfg.Channel.URL = "ws://localhost:8090/events"
	cfg.Channel.HandshakeTimeout = 10 * time.Second
	cfg.Channel.PingInterval = 30 * time.Second
	cfg.Channel.PongTimeout = 60 * time.Second
	cfg.Channel.MaxMessageSizeBytes = 256 * 1024
	cfg.Channel.Reconnect.MaxAttempts = 8
	cfg.Channel.Reconnect.InitialDelay = 1 * time.Second
	cfg.Channel.Reconnect.MaxDelay = 30 * time.Second

	cfg.WebRTC.NegotiationTimeout = 15 * time.Second

	cfg.Session.ReconnectDelay = 5 * time.Second
	cfg.Session.StatsInterval = 1 * time.Second
	cfg.Session.DefaultQuality = "auto"

	cfg.Alerts.HistorySize = 100
	cfg.Alerts.MinInterval = 0

	cfg.Monitoring.PrometheusEnabled = true

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.AlertChannel = "faceview:alerts"

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "data/snapshots"
	cfg.Backup.Interval = 5 * time.Minute
	cfg.Backup.RetentionDays = 7

	cfg.Auth.Enabled = false
	cfg.Auth.JWTSecret = ""

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "faceview"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("FACEVIEW_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("FACEVIEW_SIGNALING_URL"); url != "" {
		c.Signaling.BaseURL = url
	}
	if url := os.Getenv("FACEVIEW_CHANNEL_URL"); url != "" {
		c.Channel.URL = url
	}
	if level := os.Getenv("FACEVIEW_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("FACEVIEW_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
		c.Auth.Enabled = true
	}
	if addr := os.Getenv("FACEVIEW_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if raw := os.Getenv("FACEVIEW_STATS_INTERVAL"); raw != "" {
		c.Session.StatsInterval = utils.ParseDurationSafe(raw, c.Session.StatsInterval)
	}
}
