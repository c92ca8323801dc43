package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, checked with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Leveling failure taxonomy
	ErrConfigurationUnavailable = errors.New("configuration unavailable")
	ErrStorageUnavailable       = errors.New("storage unavailable")
	ErrPlatformActionFailed     = errors.New("platform action failed")
	ErrRaceLost                 = errors.New("concurrent update won the race")

	// Infrastructure errors
	ErrTimeout = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "award", "progression", "rank_store"
	Op      string // Operation that failed, e.g., "ApplyAward", "GrantRole"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Storage wraps a driver error as StorageUnavailable.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError("rank_store", op, ErrStorageUnavailable, "storage call failed", err)
}

// Platform wraps a Discord API error as PlatformActionFailed.
func Platform(op string, err error) error {
	if err == nil {
		return nil
	}
	return WrapError("platform", op, ErrPlatformActionFailed, "platform call failed", err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorageUnavailable reports storage failures.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsPlatformFailure reports failed role grants, sends and lookups.
func IsPlatformFailure(err error) bool {
	return errors.Is(err, ErrPlatformActionFailed)
}

// IsRaceLost reports a lost conditional update.
func IsRaceLost(err error) bool {
	return errors.Is(err, ErrRaceLost)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRaceLost)
}
