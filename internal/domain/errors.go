package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates that the request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidConfig indicates that caller-supplied run parameters are invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDiscovery indicates that identifier discovery failed.
	ErrDiscovery = errors.New("discovery failed")

	// ErrNoResults indicates that discovery succeeded but matched no records.
	ErrNoResults = errors.New("no results")

	// ErrEmptyResult indicates that every discovered identifier failed to fetch.
	ErrEmptyResult = errors.New("no records fetched")

	// ErrUnsupportedFormat indicates an export format token that has no encoder.
	ErrUnsupportedFormat = errors.New("unsupported export format")

	// ErrAborted indicates that the caller declined to continue after discovery.
	ErrAborted = errors.New("aborted")
)

// ConfigError describes an invalid caller-supplied run parameter.
// It is detected before any network activity.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// DiscoveryError wraps a failure of the identifier discovery step,
// including the zero-results case.
type DiscoveryError struct {
	Query string
	Cause error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("discovery failed for %q", e.Query)
	}
	return fmt.Sprintf("discovery failed for %q: %v", e.Query, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *DiscoveryError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDiscovery}
	}
	return []error{ErrDiscovery, e.Cause}
}

// EmptyResultError reports that discovery succeeded but no record could be fetched.
type EmptyResultError struct {
	Attempted int
}

// Error implements the error interface.
func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("failed to fetch any of %d records", e.Attempted)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *EmptyResultError) Unwrap() error {
	return ErrEmptyResult
}

// ExportError reports an export format token with no registered encoder.
type ExportError struct {
	Format string
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("unsupported export format: %s", e.Format)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ExportError) Unwrap() error {
	return ErrUnsupportedFormat
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewDiscoveryError creates a new DiscoveryError.
func NewDiscoveryError(query string, cause error) *DiscoveryError {
	return &DiscoveryError{
		Query: query,
		Cause: cause,
	}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
