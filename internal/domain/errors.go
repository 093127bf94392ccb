package domain

import "errors"

// Domain errors represent error conditions in the telship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("telship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("telship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("telship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("telship: invalid configuration")

	// ErrUnknownSink is returned when the configured sink type is not registered.
	ErrUnknownSink = errors.New("telship: unknown sink type")

	// ErrSinkUnavailable is returned by a sink adapter once its retries are exhausted.
	ErrSinkUnavailable = errors.New("telship: sink unavailable")
)
