package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment" yaml:"environment"` // "development" or "production"
	Server        ServerConfig        `toml:"server" yaml:"server"`
	Storage       StorageConfig       `toml:"storage" yaml:"storage"`
	Logging       LoggingConfig       `toml:"logging" yaml:"logging"`
	Scheduler     SchedulerConfig     `toml:"scheduler" yaml:"scheduler"`
	Tasks         TasksConfig         `toml:"tasks" yaml:"tasks"`
	Downloads     DownloadsConfig     `toml:"downloads" yaml:"downloads"`
	Fetcher       FetcherConfig       `toml:"fetcher" yaml:"fetcher"`
	Tracker       TrackerConfig       `toml:"tracker" yaml:"tracker"`
	Progress      ProgressConfig      `toml:"progress" yaml:"progress"`
	Retry         RetryConfig         `toml:"retry" yaml:"retry"`
	Notifications NotificationsConfig `toml:"notifications" yaml:"notifications"`
	WebSocket     WebSocketConfig     `toml:"websocket" yaml:"websocket"`
}

type ServerConfig struct {
	Port            int    `toml:"port" yaml:"port"`
	Host            string `toml:"host" yaml:"host"`
	ReadTimeout     string `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     string `toml:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Type   string       `toml:"type" yaml:"type"` // only "badger" is supported
	Badger BadgerConfig `toml:"badger" yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" yaml:"path"`                         // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup" yaml:"reset_on_startup"` // Delete database on startup
	InMemory       bool   `toml:"in_memory" yaml:"in_memory"`               // Nothing is written to disk
}

type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Output []string `toml:"output" yaml:"output"` // "stdout", "file"
}

// SchedulerConfig controls the recurring refresh of subscriptions and tracks.
type SchedulerConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Schedule       string `toml:"schedule" yaml:"schedule"`               // Cron expression, 5 fields
	MaxConcurrency int    `toml:"max_concurrency" yaml:"max_concurrency"` // Refreshes dispatched in parallel per tick
	RefreshTimeout string `toml:"refresh_timeout" yaml:"refresh_timeout"` // Upper bound on one refresh
	HonorIntervals bool   `toml:"honor_intervals" yaml:"honor_intervals"` // Skip subscriptions whose interval has not elapsed
}

// TasksConfig holds the simulated duration per task type.
type TasksConfig struct {
	Steps     int               `toml:"steps" yaml:"steps"`
	Durations map[string]string `toml:"durations" yaml:"durations"`
	Default   string            `toml:"default_duration" yaml:"default_duration"`
}

type DownloadsConfig struct {
	Tick         string  `toml:"tick" yaml:"tick"`
	MaxIncrement float64 `toml:"max_increment" yaml:"max_increment"`
}

type FetcherConfig struct {
	Timeout           string  `toml:"timeout" yaml:"timeout"`
	UserAgent         string  `toml:"user_agent" yaml:"user_agent"`
	MaxItems          int     `toml:"max_items" yaml:"max_items"`
	MaxBodySize       int64   `toml:"max_body_size" yaml:"max_body_size"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"` // 0 disables pacing
	Burst             int     `toml:"burst" yaml:"burst"`
}

type TrackerConfig struct {
	DefaultPlatforms []string `toml:"default_platforms" yaml:"default_platforms"`
	PlatformTimeout  string   `toml:"platform_timeout" yaml:"platform_timeout"`
}

type ProgressConfig struct {
	Interval string `toml:"interval" yaml:"interval"`
}

// RetryConfig applies to background refreshes. MaxAttempts of 1 disables retry.
type RetryConfig struct {
	MaxAttempts       int     `toml:"max_attempts" yaml:"max_attempts"`
	InitialBackoff    string  `toml:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        string  `toml:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64 `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	DeactivateAfter   int     `toml:"deactivate_after" yaml:"deactivate_after"` // 0 keeps failing subscriptions active
}

type NotificationsConfig struct {
	Enabled   bool     `toml:"enabled" yaml:"enabled"`
	ListLimit int      `toml:"list_limit" yaml:"list_limit"`
	Events    []string `toml:"events" yaml:"events"`
}

type WebSocketConfig struct {
	ReadBufferSize  int `toml:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int `toml:"write_buffer_size" yaml:"write_buffer_size"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            3001,
			Host:            "localhost",
			ReadTimeout:     "15s",
			WriteTimeout:    "15s",
			IdleTimeout:     "60s",
			ShutdownTimeout: "10s",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			Schedule:       "*/5 * * * *",
			MaxConcurrency: 4,
			RefreshTimeout: "30s",
		},
		Tasks: TasksConfig{
			Steps: 10,
			Durations: map[string]string{
				"download": "5s",
				"scrape":   "8s",
				"analysis": "3s",
			},
			Default: "2s",
		},
		Downloads: DownloadsConfig{
			Tick:         "1s",
			MaxIncrement: 15,
		},
		Fetcher: FetcherConfig{
			Timeout:     "10s",
			UserAgent:   "Mozilla/5.0 (compatible; AgentHub/1.0)",
			MaxItems:    20,
			MaxBodySize: 5 * 1024 * 1024,
			Burst:       1,
		},
		Tracker: TrackerConfig{
			DefaultPlatforms: []string{"weibo", "zhihu", "baidu"},
			PlatformTimeout:  "5s",
		},
		Progress: ProgressConfig{
			Interval: "1s",
		},
		Retry: RetryConfig{
			MaxAttempts:       1,
			InitialBackoff:    "500ms",
			MaxBackoff:        "10s",
			BackoffMultiplier: 2.0,
		},
		Notifications: NotificationsConfig{
			Enabled:   true,
			ListLimit: 20,
			Events:    []string{"task_completed", "download_completed", "subscription_deactivated"},
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// CLI flags are applied afterwards by ApplyFlagOverrides.
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

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies AGENTHUB_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AGENTHUB_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("AGENTHUB_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AGENTHUB_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("AGENTHUB_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if reset := os.Getenv("AGENTHUB_BADGER_RESET_ON_STARTUP"); reset != "" {
		config.Storage.Badger.ResetOnStartup = reset == "true" || reset == "1"
	}

	if level := os.Getenv("AGENTHUB_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("AGENTHUB_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	if schedule := os.Getenv("AGENTHUB_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if enabled := os.Getenv("AGENTHUB_SCHEDULER_ENABLED"); enabled != "" {
		config.Scheduler.Enabled = enabled == "true" || enabled == "1"
	}
	if honor := os.Getenv("AGENTHUB_SCHEDULER_HONOR_INTERVALS"); honor != "" {
		config.Scheduler.HonorIntervals = honor == "true" || honor == "1"
	}

	if timeout := os.Getenv("AGENTHUB_FETCHER_TIMEOUT"); timeout != "" {
		config.Fetcher.Timeout = timeout
	}
	if userAgent := os.Getenv("AGENTHUB_FETCHER_USER_AGENT"); userAgent != "" {
		config.Fetcher.UserAgent = userAgent
	}

	if attempts := os.Getenv("AGENTHUB_RETRY_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Retry.MaxAttempts = n
		}
	}
	if deactivate := os.Getenv("AGENTHUB_RETRY_DEACTIVATE_AFTER"); deactivate != "" {
		if n, err := strconv.Atoi(deactivate); err == nil {
			config.Retry.DeactivateAfter = n
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Scheduler.Enabled {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler.schedule: %w", err)
		}
	}

	durations := map[string]string{
		"server.read_timeout":       c.Server.ReadTimeout,
		"server.write_timeout":      c.Server.WriteTimeout,
		"server.idle_timeout":       c.Server.IdleTimeout,
		"server.shutdown_timeout":   c.Server.ShutdownTimeout,
		"scheduler.refresh_timeout": c.Scheduler.RefreshTimeout,
		"tasks.default_duration":    c.Tasks.Default,
		"downloads.tick":            c.Downloads.Tick,
		"fetcher.timeout":           c.Fetcher.Timeout,
		"tracker.platform_timeout":  c.Tracker.PlatformTimeout,
		"progress.interval":         c.Progress.Interval,
		"retry.initial_backoff":     c.Retry.InitialBackoff,
		"retry.max_backoff":         c.Retry.MaxBackoff,
	}
	for taskType, d := range c.Tasks.Durations {
		durations["tasks.durations."+taskType] = d
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// ValidateSchedule validates a 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDurationOr parses a duration string, returning fallback when the value is empty or invalid.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DeepCloneConfig creates a deep copy of the Config struct
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	clone.Logging.Output = append([]string(nil), c.Logging.Output...)
	clone.Tracker.DefaultPlatforms = append([]string(nil), c.Tracker.DefaultPlatforms...)
	clone.Notifications.Events = append([]string(nil), c.Notifications.Events...)

	if c.Tasks.Durations != nil {
		clone.Tasks.Durations = make(map[string]string, len(c.Tasks.Durations))
		for k, v := range c.Tasks.Durations {
			clone.Tasks.Durations[k] = v
		}
	}

	return &clone
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
