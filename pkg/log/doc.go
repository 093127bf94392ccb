// Package log provides the logging abstraction shared by telship components.
//
// Components receive a Logger through their constructor and never reach for a
// package-level logger. A zerolog adapter is provided for the CLI and a no-op
// logger for tests and embedders that bring no logger.
//
// # Usage
//
//	logger := log.NewZerologLogger(os.Stderr, "info", false)
//	pl := logger.With(log.String("pipeline", "host"))
//	pl.Info("batch sealed", log.Int("events", 42))
//
// # Custom Loggers
//
// Implement the Logger interface to integrate with an existing logging
// setup. With must return a logger that carries the given fields on every
// subsequent record.
package log
