package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if cfg.Agent != "code" {
		t.Errorf("Agent = %q, want %q", cfg.Agent, "code")
	}
	if cfg.Model != "" {
		t.Errorf("Model = %q, want empty", cfg.Model)
	}
	if cfg.Claims.TTLSeconds != 3600 {
		t.Errorf("Claims.TTLSeconds = %d, want 3600", cfg.Claims.TTLSeconds)
	}
	if cfg.Claims.Backend != "file" {
		t.Errorf("Claims.Backend = %q, want file", cfg.Claims.Backend)
	}
	if cfg.Supervisor.PollIntervalMs != 500 {
		t.Errorf("Supervisor.PollIntervalMs = %d, want 500", cfg.Supervisor.PollIntervalMs)
	}
	if cfg.Supervisor.InterruptAttempts != 3 {
		t.Errorf("Supervisor.InterruptAttempts = %d, want 3", cfg.Supervisor.InterruptAttempts)
	}
	if !cfg.Supervisor.WatchSessions {
		t.Error("Supervisor.WatchSessions should be true by default")
	}
	if cfg.Queue.LoopLimit != 0 {
		t.Errorf("Queue.LoopLimit = %d, want 0", cfg.Queue.LoopLimit)
	}
	if !cfg.Logging.Enabled || cfg.Logging.Level != "info" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"claim ttl", cfg.Claims.TTL(), time.Hour},
		{"poll interval", cfg.Supervisor.PollInterval(), 500 * time.Millisecond},
		{"interrupt wait", cfg.Supervisor.InterruptWait(), 500 * time.Millisecond},
		{"terminate wait", cfg.Supervisor.TerminateWait(), time.Second},
		{"kill wait", cfg.Supervisor.KillWait(), time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestPromptsConfig_ResolveDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"default", "", filepath.Join(home, ".metagent", "code")},
		{"tilde", "~/prompts", filepath.Join(home, "prompts")},
		{"absolute", "/opt/prompts", "/opt/prompts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PromptsConfig{Dir: tt.dir}
			if got := p.ResolveDir("code"); got != tt.want {
				t.Errorf("ResolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/metagent" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/metagent")
		}
	})

	t.Run("falls back to ~/.config/metagent", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		want := filepath.Join(home, ".config", "metagent")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/metagent/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	yaml := `
agent: writer
claims:
  backend: sqlite
  ttl_seconds: 60
queue:
  loop_limit: 5
`
	viper.SetConfigType("yaml")
	if err := viper.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent != "writer" {
		t.Errorf("Agent = %q, want writer", cfg.Agent)
	}
	if cfg.Claims.Backend != "sqlite" || cfg.Claims.TTLSeconds != 60 {
		t.Errorf("Claims = %+v", cfg.Claims)
	}
	if cfg.Queue.LoopLimit != 5 {
		t.Errorf("Queue.LoopLimit = %d, want 5", cfg.Queue.LoopLimit)
	}
	// Untouched keys keep their defaults.
	if cfg.Supervisor.KillWaitMs != 1000 {
		t.Errorf("Supervisor.KillWaitMs = %d, want 1000", cfg.Supervisor.KillWaitMs)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("claims.backend", "redis")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject an unknown claim backend")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok || len(verrs) != 1 || verrs[0].Field != "claims.backend" {
		t.Errorf("Load() error = %v", err)
	}
}
