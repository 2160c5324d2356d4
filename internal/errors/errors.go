// Package errors provides structured error handling for logsift.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration errors (fatal, surfaced before any I/O)
//   - 2XX: per-source read errors (recovered, recorded in the report)
//   - 3XX: network errors (timeouts and unavailability are retryable, HTTP
//     status errors are not)
//   - 4XX: discovery and training errors
//   - 5XX: model and internal errors
package errors

import (
	"fmt"
)

// SiftError is the structured error type for logsift. It carries enough
// context for logging, report entries, and user presentation.
type SiftError struct {
	// Code is the unique error code (e.g. "ERR_201_SOURCE_READ").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Read, Network, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error.
	Cause error

	// Retryable indicates whether the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SiftError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SiftError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so that errors.Is works across wrapping.
func (e *SiftError) Is(target error) bool {
	if t, ok := target.(*SiftError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithSuggestion attaches an actionable hint. Returns the error for chaining.
func (e *SiftError) WithSuggestion(suggestion string) *SiftError {
	e.Suggestion = suggestion
	return e
}

// New creates a SiftError with the given code and message. Category,
// severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *SiftError {
	return &SiftError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SiftError from an existing error, keeping its message.
func Wrap(code string, err error) *SiftError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a fatal configuration error.
func ConfigError(message string, cause error) *SiftError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ReadError creates a per-source read error. Read errors are recovered
// locally and recorded in the report; they never abort a run.
func ReadError(message string, cause error) *SiftError {
	return New(ErrCodeSourceRead, message, cause)
}

// NetworkError creates a retryable network error.
func NetworkError(message string, cause error) *SiftError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// DiscoveryError creates a fatal baseline-discovery error.
func DiscoveryError(message string, cause error) *SiftError {
	return New(ErrCodeNoBaselines, message, cause).
		WithSuggestion("provide an explicit baseline with the diff command")
}

// TrainingError creates a per-index training error. It downgrades the
// affected target sources to unknown files; it is not fatal.
func TrainingError(message string, cause error) *SiftError {
	return New(ErrCodeTraining, message, cause)
}

// ModelError creates a fatal model-compatibility error.
func ModelError(message string, cause error) *SiftError {
	return New(ErrCodeModelVersion, message, cause).
		WithSuggestion("re-train the model with the current version")
}

// IsRetryable reports whether an error is marked retryable.
func IsRetryable(err error) bool {
	if se, ok := err.(*SiftError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal reports whether an error has fatal severity.
func IsFatal(err error) bool {
	if se, ok := err.(*SiftError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	if se, ok := err.(*SiftError); ok {
		return se.Code
	}
	return ""
}
