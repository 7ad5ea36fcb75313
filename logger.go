package hotswap

// Logger defines the interface for runtime logging.
// The runtime uses structured logging with key-value pairs so that
// embedding applications control how hot-update diagnostics appear.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// *slog.Logger from the standard library satisfies this interface directly.
type Logger interface {
	// Info logs an informational message, such as a completed apply.
	Info(msg string, args ...any)

	// Error logs an error message, such as a failed cycle.
	Error(msg string, args ...any)

	// Warn logs a warning, such as an aborted update or a require
	// issued from a disposed module.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics like status transitions.
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return noopLogger{} }
