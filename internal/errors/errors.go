// Package errors provides centralized error definitions and classification
// for metagent. Every failure that crosses a package boundary is either a
// sentinel error, an *Error carrying a Kind, or a wrapped standard error.
//
// # Kinds
//
// Failures are classified by what went wrong, not by which package noticed:
//   - KindNotFound: a task, session or issue does not exist
//   - KindConflict: a claim is held by someone else
//   - KindInvalidState: the operation is not legal in the record's current state
//   - KindValidation: user input (names, stages, flags) was rejected
//   - KindCorruption: a record on disk could not be decoded
//   - KindExternalProcess: the agent process could not be spawned or controlled
//
// # Usage
//
//	err := errors.NotFound("task", name)
//	if errors.Is(err, errors.ErrTaskNotFound) { ... }
//	if errors.KindOf(err) == errors.KindInvalidState { ... }
//
// Errors propagate up to the command boundary, which prints them and exits
// with a non-zero status.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalidState
	KindValidation
	KindCorruption
	KindExternalProcess
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid state"
	case KindValidation:
		return "validation"
	case KindCorruption:
		return "corruption"
	case KindExternalProcess:
		return "external process"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Record sentinel errors
var (
	// ErrTaskNotFound indicates that a task record could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrSessionNotFound indicates that a session record could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrIssueNotFound indicates that an issue file could not be found.
	ErrIssueNotFound = New("issue not found")
	// ErrCorruptRecord indicates that a record exists but cannot be decoded.
	ErrCorruptRecord = New("record is corrupt")
)

// Coordination sentinel errors
var (
	// ErrClaimed indicates that a task is claimed by another live process.
	ErrClaimed = New("task is already claimed")
	// ErrNoSession indicates that no unique running session could be resolved.
	ErrNoSession = New("no active session")
	// ErrSessionTerminal indicates an attempt to move a finished or failed
	// session to another status.
	ErrSessionTerminal = New("session already ended")
)

// Input sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrUnknownStage indicates a stage name outside the agent's stage list.
	ErrUnknownStage = New("unknown stage")
)

// -----------------------------------------------------------------------------
// Error
// -----------------------------------------------------------------------------

// Error is a classified error. Subject and ID identify the record involved,
// when there is one.
type Error struct {
	Kind    Kind
	Subject string
	ID      string
	Message string
	Err     error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Subject != "" && e.ID != "" {
		msg = fmt.Sprintf("%s '%s': %s", e.Subject, e.ID, msg)
	}
	if e.Err != nil && e.Err.Error() != "" {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Subject == "" && t.Message == ""
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

// NotFound reports a missing record. Subjects "task", "session" and "issue"
// wrap their sentinel so callers can match with errors.Is.
func NotFound(subject, id string) error {
	var cause error
	switch subject {
	case "task":
		cause = ErrTaskNotFound
	case "session":
		cause = ErrSessionNotFound
	case "issue":
		cause = ErrIssueNotFound
	}
	return &Error{Kind: KindNotFound, Subject: subject, ID: id, Message: "not found", Err: quiet(cause)}
}

// quiet wraps a sentinel so errors.Is still finds it without its text being
// appended to the message a second time.
func quiet(err error) error {
	if err == nil {
		return nil
	}
	return silent{err}
}

type silent struct{ err error }

func (s silent) Error() string { return "" }
func (s silent) Unwrap() error { return s.err }

// NotFoundf reports a missing record with a caller-supplied message. The
// subject's sentinel is wrapped as in NotFound.
func NotFoundf(subject, format string, args ...any) error {
	err := NotFound(subject, "").(*Error)
	err.Subject = ""
	err.Message = fmt.Sprintf(format, args...)
	return err
}

// UnknownStage reports a stage name outside the agent's stage list.
func UnknownStage(stage string) error {
	return &Error{Kind: KindValidation, Message: "Unknown stage: " + stage, Err: quiet(ErrUnknownStage)}
}

// Conflict reports a coordination conflict such as a held claim.
func Conflict(subject, id string, cause error) error {
	return &Error{Kind: KindConflict, Subject: subject, ID: id, Message: "conflict", Err: cause}
}

// InvalidState reports an operation that is illegal in the current state.
func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Validation reports rejected user input.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Err: quiet(ErrInvalidInput)}
}

// Corrupt reports a record that exists but could not be decoded.
func Corrupt(path string, cause error) error {
	return &Error{Kind: KindCorruption, Message: fmt.Sprintf("failed to parse %s", path), Err: fmt.Errorf("%w: %w", ErrCorruptRecord, cause)}
}

// ExternalProcess reports a failure to start or control the agent process.
func ExternalProcess(message string, cause error) error {
	return &Error{Kind: KindExternalProcess, Message: message, Err: cause}
}

// Sentinel returns an *Error usable as an errors.Is target for a kind.
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}

// ExitCode maps an error to the process exit status used by the CLI.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
