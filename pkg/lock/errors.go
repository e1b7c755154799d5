package lock

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies configuration validation failures.
	ErrValidation = errors.New("lock validation error")
	// ErrConflict classifies failed store conditions and lifecycle conflicts (for example already running).
	ErrConflict = errors.New("lock conflict")
	// ErrRetryable classifies transient store failures safe to retry.
	ErrRetryable = errors.New("lock retryable error")
	// ErrInvalidArgument classifies invalid caller arguments.
	ErrInvalidArgument = errors.New("lock invalid argument")
	// ErrNotInitialized classifies missing provider or store initialization.
	ErrNotInitialized = errors.New("lock not initialized")
)

// Error builds an error of the given kind. Store backends use it so callers can
// classify failures with errors.Is.
func Error(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// Wrap joins a classified error with its underlying cause.
func Wrap(kind error, message string, cause error) error {
	if cause == nil {
		return Error(kind, message)
	}
	return errors.Join(Error(kind, message), cause)
}

// IsConflict reports whether err is a failed store condition.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
