package db

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCategory classifies initialization failures to decide retry
// eligibility and the human-readable cause shown to operators.
type ErrorCategory string

const (
	// CategoryConfiguration: provider/credentials misconfiguration. Fatal.
	CategoryConfiguration ErrorCategory = "configuration"
	// CategorySchema: the store is reachable but was never set up. Fatal.
	CategorySchema ErrorCategory = "schema"
	// CategoryTransient: timeouts and network failures. Retryable.
	CategoryTransient ErrorCategory = "transient"
	// CategoryReadiness: a call reached the store before initialization
	// succeeded. Sequencing bug, raised loudly.
	CategoryReadiness ErrorCategory = "readiness"
	CategoryUnknown   ErrorCategory = "unknown"
)

// InitError wraps a backend failure with its category and a short
// human-readable cause ("database not set up", "connection timeout", ...).
type InitError struct {
	Category ErrorCategory
	Cause    string
	Err      error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Cause, e.Err)
	}
	return e.Cause
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// ErrNotInitialized is returned by the proxy when a method is invoked before
// Initialize has resolved.
var ErrNotInitialized = &InitError{
	Category: CategoryReadiness,
	Cause:    "backend not initialized: call Initializer.Initialize before using the store",
}

// ErrHelpersUnavailable is returned when initialization reported success but
// the underlying client is unexpectedly absent.
var ErrHelpersUnavailable = &InitError{
	Category: CategoryReadiness,
	Cause:    "backend helpers not available",
}

// ConfigError marks err as a non-retryable configuration failure.
func ConfigError(err error) *InitError {
	return &InitError{Category: CategoryConfiguration, Cause: "invalid backend configuration", Err: err}
}

// SchemaError marks err as a non-retryable missing-schema failure.
func SchemaError(err error) *InitError {
	return &InitError{Category: CategorySchema, Cause: "database not set up: run the seed script first", Err: err}
}

// Classify assigns an error category based on the gRPC status code of the
// Firestore RPC, falling back to message content for non-RPC failures.
func Classify(err error) *InitError {
	var initErr *InitError
	if errors.As(err, &initErr) {
		return initErr
	}

	switch status.Code(err) {
	case codes.NotFound:
		return SchemaError(err)
	case codes.DeadlineExceeded:
		return &InitError{Category: CategoryTransient, Cause: "connection timeout", Err: err}
	case codes.Unavailable:
		return &InitError{Category: CategoryTransient, Cause: "backend unreachable", Err: err}
	case codes.PermissionDenied, codes.Unauthenticated:
		return &InitError{Category: CategoryConfiguration, Cause: "backend rejected the credentials", Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "credential") || strings.Contains(msg, "project"):
		return &InitError{Category: CategoryConfiguration, Cause: "invalid backend configuration", Err: err}
	case strings.Contains(msg, "schema") || strings.Contains(msg, "not set up"):
		return SchemaError(err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &InitError{Category: CategoryTransient, Cause: "connection timeout", Err: err}
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "network"):
		return &InitError{Category: CategoryTransient, Cause: "backend unreachable", Err: err}
	}

	return &InitError{Category: CategoryUnknown, Cause: "backend initialization failed", Err: err}
}

// IsRetryable reports whether a retry loop should make another attempt for
// this error. Configuration and schema errors short-circuit immediately.
func IsRetryable(err error) bool {
	var initErr *InitError
	if !errors.As(err, &initErr) {
		return true
	}
	switch initErr.Category {
	case CategoryConfiguration, CategorySchema, CategoryReadiness:
		return false
	}
	return true
}
