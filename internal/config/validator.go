package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "claims.ttl_seconds")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidAgents returns the agent kinds accepted by the agent key
func ValidAgents() []string {
	return []string{"code", "writer"}
}

// ValidModels returns the models accepted by the model key
func ValidModels() []string {
	return []string{"claude", "codex"}
}

// ValidClaimBackends returns the claim stores accepted by claims.backend
func ValidClaimBackends() []string {
	return []string{"file", "sqlite"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateClaims()...)
	errors = append(errors, c.validateSupervisor()...)
	errors = append(errors, c.validateQueue()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	if c.Agent != "" && !slices.Contains(ValidAgents(), c.Agent) {
		errors = append(errors, ValidationError{
			Field:   "agent",
			Value:   c.Agent,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAgents(), ", ")),
		})
	}

	if c.Model != "" && !slices.Contains(ValidModels(), strings.ToLower(c.Model)) {
		errors = append(errors, ValidationError{
			Field:   "model",
			Value:   c.Model,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModels(), ", ")),
		})
	}

	return errors
}

// validateClaims validates the ClaimsConfig
func (c *Config) validateClaims() []ValidationError {
	var errors []ValidationError

	if c.Claims.TTLSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "claims.ttl_seconds",
			Value:   c.Claims.TTLSeconds,
			Message: "must be positive",
		})
	}

	if c.Claims.Backend != "" && !slices.Contains(ValidClaimBackends(), c.Claims.Backend) {
		errors = append(errors, ValidationError{
			Field:   "claims.backend",
			Value:   c.Claims.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidClaimBackends(), ", ")),
		})
	}

	return errors
}

// validateSupervisor validates the SupervisorConfig
func (c *Config) validateSupervisor() []ValidationError {
	var errors []ValidationError

	if c.Supervisor.PollIntervalMs < 10 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.poll_interval_ms",
			Value:   c.Supervisor.PollIntervalMs,
			Message: "must be at least 10",
		})
	}

	if c.Supervisor.InterruptAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "supervisor.interrupt_attempts",
			Value:   c.Supervisor.InterruptAttempts,
			Message: "must be non-negative",
		})
	}

	waits := []struct {
		field string
		value int
	}{
		{"supervisor.interrupt_wait_ms", c.Supervisor.InterruptWaitMs},
		{"supervisor.terminate_wait_ms", c.Supervisor.TerminateWaitMs},
		{"supervisor.kill_wait_ms", c.Supervisor.KillWaitMs},
	}
	for _, w := range waits {
		if w.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   w.field,
				Value:   w.value,
				Message: "must be positive",
			})
		}
	}

	return errors
}

// validateQueue validates the QueueConfig
func (c *Config) validateQueue() []ValidationError {
	var errors []ValidationError

	if c.Queue.LoopLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "queue.loop_limit",
			Value:   c.Queue.LoopLimit,
			Message: "must be non-negative (0 uses the default)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
