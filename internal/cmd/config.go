package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iskng/metagent/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify metagent configuration",
	Long: `View or modify metagent configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  metagent config set model codex
  metagent config set claims.backend sqlite
  metagent config set queue.loop_limit 20

Valid keys:
  agent                          - Default agent (code, writer)
  model                          - Default model (claude, codex)
  claims.ttl_seconds             - Seconds before a claim may be taken over
  claims.backend                 - Claim store (file, sqlite)
  supervisor.poll_interval_ms    - Session poll interval
  supervisor.interrupt_attempts  - Ctrl+C deliveries before SIGTERM
  supervisor.interrupt_wait_ms   - Wait after each Ctrl+C
  supervisor.terminate_wait_ms   - Wait after SIGTERM
  supervisor.kill_wait_ms        - Wait after SIGKILL
  supervisor.watch_sessions      - Watch session files for changes (true/false)
  queue.loop_limit               - Review/build round trips before holding (0 = 100)
  prompts.dir                    - Prompt template directory
  logging.enabled                - Write logs/metagent.log (true/false)
  logging.level                  - Log level (debug, info, warn, error)
  logging.max_size_mb            - Rotate the log at this size
  logging.max_backups            - Rotated logs to keep
  logging.compress               - Gzip rotated logs (true/false)`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/metagent/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

// configKeys maps each settable key to its value type.
var configKeys = map[string]string{
	"agent":                         "string",
	"model":                         "string",
	"claims.ttl_seconds":            "int",
	"claims.backend":                "string",
	"supervisor.poll_interval_ms":   "int",
	"supervisor.interrupt_attempts": "int",
	"supervisor.interrupt_wait_ms":  "int",
	"supervisor.terminate_wait_ms":  "int",
	"supervisor.kill_wait_ms":       "int",
	"supervisor.watch_sessions":     "bool",
	"queue.loop_limit":              "int",
	"prompts.dir":                   "string",
	"logging.enabled":               "bool",
	"logging.level":                 "string",
	"logging.max_size_mb":           "int",
	"logging.max_backups":           "int",
	"logging.compress":              "bool",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "agent: %s\n", cfg.Agent)
	fmt.Fprintf(out, "model: %s\n", cfg.Model)

	fmt.Fprintln(out, "claims:")
	fmt.Fprintf(out, "  ttl_seconds: %d\n", cfg.Claims.TTLSeconds)
	fmt.Fprintf(out, "  backend: %s\n", cfg.Claims.Backend)

	fmt.Fprintln(out, "supervisor:")
	fmt.Fprintf(out, "  poll_interval_ms: %d\n", cfg.Supervisor.PollIntervalMs)
	fmt.Fprintf(out, "  interrupt_attempts: %d\n", cfg.Supervisor.InterruptAttempts)
	fmt.Fprintf(out, "  interrupt_wait_ms: %d\n", cfg.Supervisor.InterruptWaitMs)
	fmt.Fprintf(out, "  terminate_wait_ms: %d\n", cfg.Supervisor.TerminateWaitMs)
	fmt.Fprintf(out, "  kill_wait_ms: %d\n", cfg.Supervisor.KillWaitMs)
	fmt.Fprintf(out, "  watch_sessions: %v\n", cfg.Supervisor.WatchSessions)

	fmt.Fprintln(out, "queue:")
	fmt.Fprintf(out, "  loop_limit: %d\n", cfg.Queue.LoopLimit)

	fmt.Fprintln(out, "prompts:")
	fmt.Fprintf(out, "  dir: %s\n", cfg.Prompts.Dir)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)
	fmt.Fprintf(out, "  compress: %v\n", cfg.Logging.Compress)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	keyType, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'metagent config set --help' to see valid keys", key)
	}

	var typedValue any
	switch keyType {
	case "string":
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typedValue = intVal
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := config.Load(); err != nil {
		viper.Set(key, previous)
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := config.ConfigFile()
	if used := viper.ConfigFileUsed(); used != "" {
		configFile = used
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", configFile)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'metagent config set' to modify values", configFile)
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	d := config.Default()
	configContent := fmt.Sprintf(`# metagent configuration

# Default agent: %s
agent: %s

# Default model; leave empty to use each stage's default.
# Options: %s
model: ""

claims:
  # Seconds a claim is honoured before another process may take it over
  ttl_seconds: %d
  # Options: %s
  backend: %s

supervisor:
  poll_interval_ms: %d
  # Ctrl+C deliveries before escalating to SIGTERM and SIGKILL
  interrupt_attempts: %d
  interrupt_wait_ms: %d
  terminate_wait_ms: %d
  kill_wait_ms: %d
  watch_sessions: %v

queue:
  # Review/build round trips before run-queue holds a task (0 = 100)
  loop_limit: %d

prompts:
  # Defaults to ~/.metagent/<agent>
  dir: ""

logging:
  enabled: %v
  # Options: %s
  level: %s
  max_size_mb: %d
  max_backups: %d
  compress: %v
`,
		strings.Join(config.ValidAgents(), ", "), d.Agent,
		strings.Join(config.ValidModels(), ", "),
		d.Claims.TTLSeconds, strings.Join(config.ValidClaimBackends(), ", "), d.Claims.Backend,
		d.Supervisor.PollIntervalMs, d.Supervisor.InterruptAttempts, d.Supervisor.InterruptWaitMs,
		d.Supervisor.TerminateWaitMs, d.Supervisor.KillWaitMs, d.Supervisor.WatchSessions,
		d.Queue.LoopLimit,
		d.Logging.Enabled, strings.Join(config.ValidLogLevels(), ", "), d.Logging.Level,
		d.Logging.MaxSizeMB, d.Logging.MaxBackups, d.Logging.Compress,
	)

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/metagent/config.yaml\n")

	fmt.Fprintln(out, "\nEnvironment variables: METAGENT_* (e.g., METAGENT_CLAIMS_BACKEND for claims.backend)")
	return nil
}
