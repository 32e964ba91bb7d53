package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Auth        AuthConfig      `toml:"auth"`
	Notify      NotifyConfig    `toml:"notify"`
	Limits      LimitsConfig    `toml:"limits"`
	Sweeper     SweeperConfig   `toml:"sweeper"`
	RateLimit   RateLimitConfig `toml:"rate_limit"`
	Freshness   FreshnessConfig `toml:"freshness"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Type   string       `toml:"type"` // "sqlite" (default) or "badger"
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

type SQLiteConfig struct {
	Path string `toml:"path"` // Database file path
}

type BadgerConfig struct {
	Path string `toml:"path"` // Database directory path
}

// AuthConfig holds the three independent API credentials. These are
// env-first; the TOML fields exist for local development only.
type AuthConfig struct {
	SubmitKey string `toml:"submit_key"`
	RunnerKey string `toml:"runner_key"`
	AdminKey  string `toml:"admin_key"`
}

// NotifyConfig configures the outbound new-job notification relay.
// An empty URL disables notification silently.
type NotifyConfig struct {
	URL        string `toml:"url"`
	PublishKey string `toml:"publish_key"`
	Topic      string `toml:"topic"`
	Timeout    string `toml:"timeout"` // e.g. "10s"
}

// LimitsConfig caps request and result payload sizes in bytes
type LimitsConfig struct {
	MaxInputBytes   int `toml:"max_input_bytes"`
	MaxOutputBytes  int `toml:"max_output_bytes"`
	MaxConsoleBytes int `toml:"max_console_bytes"`
	MaxErrorBytes   int `toml:"max_error_bytes"`
}

// SweeperConfig tunes stale-heartbeat detection
type SweeperConfig struct {
	Threshold string `toml:"threshold"` // e.g. "90s" - heartbeat silence before a job is failed
	Interval  string `toml:"interval"`  // e.g. "30s" - sweep cadence, must be <= threshold
}

// RateLimitConfig sets per-role request budgets within the window
type RateLimitConfig struct {
	Window          string `toml:"window"`            // e.g. "60s"
	SubmitPerWindow int    `toml:"submit_per_window"` // per client IP
	StatusPerWindow int    `toml:"status_per_window"` // per client IP
	RunnerPerWindow int    `toml:"runner_per_window"` // per runner id
}

// FreshnessConfig tunes the cached-result probe
type FreshnessConfig struct {
	Timeout           string  `toml:"timeout"`             // per-probe HTTP timeout, e.g. "10s"
	MaxConcurrent     int     `toml:"max_concurrent"`      // parallel probe cap per job
	RequestsPerSecond float64 `toml:"requests_per_second"` // outbound throttle
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/runpack.db",
			},
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
		},
		Notify: NotifyConfig{
			Topic:   "runpack-jobs",
			Timeout: "10s",
		},
		Limits: LimitsConfig{
			MaxInputBytes:   100 * 1024,
			MaxOutputBytes:  500 * 1024,
			MaxConsoleBytes: 1024 * 1024,
			MaxErrorBytes:   10 * 1024,
		},
		Sweeper: SweeperConfig{
			Threshold: "90s",
			Interval:  "30s",
		},
		RateLimit: RateLimitConfig{
			Window:          "60s",
			SubmitPerWindow: 10,
			StatusPerWindow: 60,
			RunnerPerWindow: 120,
		},
		Freshness: FreshnessConfig{
			Timeout:           "10s",
			MaxConcurrent:     4,
			RequestsPerSecond: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 ->
// file2 -> ... -> env. Later files override earlier files; environment
// variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RUNPACK_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("RUNPACK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RUNPACK_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if storageType := os.Getenv("RUNPACK_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if sqlitePath := os.Getenv("RUNPACK_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if badgerPath := os.Getenv("RUNPACK_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if key := os.Getenv("RUNPACK_SUBMIT_API_KEY"); key != "" {
		config.Auth.SubmitKey = key
	}
	if key := os.Getenv("RUNPACK_RUNNER_API_KEY"); key != "" {
		config.Auth.RunnerKey = key
	}
	if key := os.Getenv("RUNPACK_ADMIN_API_KEY"); key != "" {
		config.Auth.AdminKey = key
	}

	if url := os.Getenv("RUNPACK_NOTIFY_URL"); url != "" {
		config.Notify.URL = url
	}
	if key := os.Getenv("RUNPACK_NOTIFY_PUBLISH_KEY"); key != "" {
		config.Notify.PublishKey = key
	}
	if topic := os.Getenv("RUNPACK_NOTIFY_TOPIC"); topic != "" {
		config.Notify.Topic = topic
	}

	if threshold := os.Getenv("RUNPACK_SWEEPER_THRESHOLD"); threshold != "" {
		config.Sweeper.Threshold = threshold
	}
	if interval := os.Getenv("RUNPACK_SWEEPER_INTERVAL"); interval != "" {
		config.Sweeper.Interval = interval
	}

	if level := os.Getenv("RUNPACK_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// SweepThreshold returns the parsed stale-heartbeat threshold
func (c *Config) SweepThreshold() time.Duration {
	return parseDurationOrDefault(c.Sweeper.Threshold, 90*time.Second)
}

// SweepInterval returns the parsed sweep cadence
func (c *Config) SweepInterval() time.Duration {
	return parseDurationOrDefault(c.Sweeper.Interval, 30*time.Second)
}

// RateWindow returns the parsed rate-limit window
func (c *Config) RateWindow() time.Duration {
	return parseDurationOrDefault(c.RateLimit.Window, 60*time.Second)
}

// NotifyTimeout returns the parsed notifier HTTP timeout
func (c *Config) NotifyTimeout() time.Duration {
	return parseDurationOrDefault(c.Notify.Timeout, 10*time.Second)
}

// FreshnessTimeout returns the parsed per-probe HTTP timeout
func (c *Config) FreshnessTimeout() time.Duration {
	return parseDurationOrDefault(c.Freshness.Timeout, 10*time.Second)
}

func parseDurationOrDefault(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
