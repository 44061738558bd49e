package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete metagent configuration
type Config struct {
	// Agent is the default agent kind ("code" or "writer")
	Agent string `mapstructure:"agent"`
	// Model is the default model. When set it counts as an explicit choice.
	Model      string           `mapstructure:"model"`
	Claims     ClaimsConfig     `mapstructure:"claims"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Prompts    PromptsConfig    `mapstructure:"prompts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ClaimsConfig controls task claims
type ClaimsConfig struct {
	// TTLSeconds is how long a claim is honoured before it may be reclaimed
	TTLSeconds int `mapstructure:"ttl_seconds"`
	// Backend selects the claim store
	// Options: "file", "sqlite"
	Backend string `mapstructure:"backend"`
}

// SupervisorConfig controls how agent processes are watched and stopped
type SupervisorConfig struct {
	PollIntervalMs    int `mapstructure:"poll_interval_ms"`
	InterruptAttempts int `mapstructure:"interrupt_attempts"`
	InterruptWaitMs   int `mapstructure:"interrupt_wait_ms"`
	TerminateWaitMs   int `mapstructure:"terminate_wait_ms"`
	KillWaitMs        int `mapstructure:"kill_wait_ms"`
	// WatchSessions wakes the poll loop on session file changes (fsnotify)
	WatchSessions bool `mapstructure:"watch_sessions"`
}

// QueueConfig controls run-queue
type QueueConfig struct {
	// LoopLimit is the number of review to build round trips before a task
	// is held (0 = default of 100)
	LoopLimit int `mapstructure:"loop_limit"`
}

// PromptsConfig locates prompt templates
type PromptsConfig struct {
	// Dir overrides ~/.metagent/<agent>
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls the debug log in <agent root>/logs
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Agent: "code",
		Model: "",
		Claims: ClaimsConfig{
			TTLSeconds: 3600,
			Backend:    "file",
		},
		Supervisor: SupervisorConfig{
			PollIntervalMs:    500,
			InterruptAttempts: 3,
			InterruptWaitMs:   500,
			TerminateWaitMs:   1000,
			KillWaitMs:        1000,
			WatchSessions:     true,
		},
		Queue: QueueConfig{
			LoopLimit: 0,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// TTL returns the claim TTL as a time.Duration
func (c *ClaimsConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// PollInterval returns the poll interval as a time.Duration
func (c *SupervisorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// InterruptWait returns the wait after each SIGINT as a time.Duration
func (c *SupervisorConfig) InterruptWait() time.Duration {
	return time.Duration(c.InterruptWaitMs) * time.Millisecond
}

// TerminateWait returns the wait after SIGTERM as a time.Duration
func (c *SupervisorConfig) TerminateWait() time.Duration {
	return time.Duration(c.TerminateWaitMs) * time.Millisecond
}

// KillWait returns the wait after SIGKILL as a time.Duration
func (c *SupervisorConfig) KillWait() time.Duration {
	return time.Duration(c.KillWaitMs) * time.Millisecond
}

// ResolveDir returns the prompt directory for agent. An empty Dir means
// ~/.metagent/<agent>; a leading ~ is expanded.
func (p *PromptsConfig) ResolveDir(agent string) string {
	path := p.Dir
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".metagent", agent)
		}
		return filepath.Join(home, ".metagent", agent)
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("agent", defaults.Agent)
	viper.SetDefault("model", defaults.Model)

	// Claims defaults
	viper.SetDefault("claims.ttl_seconds", defaults.Claims.TTLSeconds)
	viper.SetDefault("claims.backend", defaults.Claims.Backend)

	// Supervisor defaults
	viper.SetDefault("supervisor.poll_interval_ms", defaults.Supervisor.PollIntervalMs)
	viper.SetDefault("supervisor.interrupt_attempts", defaults.Supervisor.InterruptAttempts)
	viper.SetDefault("supervisor.interrupt_wait_ms", defaults.Supervisor.InterruptWaitMs)
	viper.SetDefault("supervisor.terminate_wait_ms", defaults.Supervisor.TerminateWaitMs)
	viper.SetDefault("supervisor.kill_wait_ms", defaults.Supervisor.KillWaitMs)
	viper.SetDefault("supervisor.watch_sessions", defaults.Supervisor.WatchSessions)

	// Queue defaults
	viper.SetDefault("queue.loop_limit", defaults.Queue.LoopLimit)

	// Prompts defaults
	viper.SetDefault("prompts.dir", defaults.Prompts.Dir)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "metagent")
	}
	// Fall back to ~/.config/metagent
	home, err := os.UserHomeDir()
	if err != nil {
		return ".metagent"
	}
	return filepath.Join(home, ".config", "metagent")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
