package state

import (
	"strings"

	"github.com/iskng/metagent/internal/errors"
)

// MaxTaskNameLen bounds task names, which double as directory names.
const MaxTaskNameLen = 100

// ValidateTaskName accepts lowercase ASCII letters, digits and hyphens, up
// to MaxTaskNameLen characters, with no leading dot and no "..".
func ValidateTaskName(name string) error {
	if name == "" {
		return errors.Validation("Task name required")
	}
	if len(name) > MaxTaskNameLen {
		return errors.Validation("Task name too long (max %d chars)", MaxTaskNameLen)
	}
	if strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return errors.Validation("Invalid task name '%s'", name)
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return errors.Validation("Invalid task name '%s'", name)
		}
	}
	return nil
}
