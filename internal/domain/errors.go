package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrServerUnreachable = errors.New("server unreachable")
	ErrInvalidStatus     = errors.New("invalid http status")
	ErrDownloadFailed    = errors.New("download failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")

	// Cache errors
	ErrInvalidCacheKey = errors.New("invalid cache key")
	ErrCacheDisabled   = errors.New("cache is disabled")
	ErrNilStagingFile  = errors.New("staging file cannot be nil")
)

// ServerUnreachableError is returned when the connection to the server is
// refused or its host cannot be resolved.
type ServerUnreachableError struct {
	URL string
	Err error
}

// Error returns the error message
func (e *ServerUnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server can not be reached at %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("server can not be reached at %s", e.URL)
}

// Unwrap returns the underlying error
func (e *ServerUnreachableError) Unwrap() error {
	return e.Err
}

// Is reports ErrServerUnreachable as a match
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}

// NewServerUnreachableError creates a new ServerUnreachableError
func NewServerUnreachableError(url string, err error) *ServerUnreachableError {
	return &ServerUnreachableError{URL: url, Err: err}
}

// InvalidStatusError is returned when the server answers with a non-2xx status.
type InvalidStatusError struct {
	URL        string
	StatusCode int
}

// Error returns the error message
func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("status returned by url [%s] is not valid: [%d]", e.URL, e.StatusCode)
}

// Is reports ErrInvalidStatus as a match
func (e *InvalidStatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// NewInvalidStatusError creates a new InvalidStatusError
func NewInvalidStatusError(url string, statusCode int) *InvalidStatusError {
	return &InvalidStatusError{URL: url, StatusCode: statusCode}
}

// DownloadError wraps a transport failure that happened while streaming a
// response body to its destination.
type DownloadError struct {
	URL string
	Err error
}

// Error returns the error message
func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fail to download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fail to download %s", e.URL)
}

// Unwrap returns the underlying error
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is reports ErrDownloadFailed as a match
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownloadFailed
}

// NewDownloadError creates a new DownloadError
func NewDownloadError(url string, err error) *DownloadError {
	return &DownloadError{URL: url, Err: err}
}

// BootstrapError is the single outward-facing error of a bootstrap call.
// Op names the step that failed; Err keeps the original cause chain.
type BootstrapError struct {
	Op  string
	Err error
}

// Error returns the error message
func (e *BootstrapError) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return "bootstrap failed: " + e.Op + ": " + e.Err.Error()
		}
		return "bootstrap failed: " + e.Op
	}
	if e.Err != nil {
		return "bootstrap failed: " + e.Err.Error()
	}
	return "bootstrap failed"
}

// Unwrap returns the underlying error
func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// NewBootstrapError creates a new BootstrapError
func NewBootstrapError(op string, err error) *BootstrapError {
	return &BootstrapError{Op: op, Err: err}
}

// IsServerUnreachable returns true if the error chain contains an unreachable server
func IsServerUnreachable(err error) bool {
	return errors.Is(err, ErrServerUnreachable)
}

// IsBootstrapError returns true if the error is a bootstrap failure
func IsBootstrapError(err error) bool {
	var be *BootstrapError
	return errors.As(err, &be)
}

// StatusCode returns the HTTP status carried by an InvalidStatusError in the chain
func StatusCode(err error) (int, bool) {
	var se *InvalidStatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}
