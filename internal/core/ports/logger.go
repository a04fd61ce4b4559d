package ports

import "io"

// Logger defines the interface for logging.
//
//go:generate go run go.uber.org/mock/mockgen -source=logger.go -destination=mocks/mock_logger.go -package=mocks
type Logger interface {
	// Info logs an informational message.
	Info(msg string)

	// Warn logs a warning message.
	Warn(msg string)

	// Error logs an error, rendering wrapped causes hierarchically.
	Error(err error)

	// SetOutput redirects log output. Passing nil restores the default.
	SetOutput(w io.Writer)

	// SetJSON switches between JSON and human-readable output.
	SetJSON(enable bool)
}
