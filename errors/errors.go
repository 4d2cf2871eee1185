package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrToolNotFound indicates that the model requested a tool that is not registered
	ErrToolNotFound = errors.New("tool not found")

	// ErrDuplicateTool indicates that a tool name was registered twice
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrTruncated indicates that a run exhausted its iteration or token
	// budget before producing a final answer; the run may be retried
	ErrTruncated = errors.New("run truncated")

	// ErrProviderUnavailable indicates that the model backend could not be reached
	ErrProviderUnavailable = errors.New("model provider unavailable")
)
