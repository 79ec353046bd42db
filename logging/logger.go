// Package logging defines the structured logger used across alouette and
// adapters for concrete logging backends.
package logging

// Logger defines the interface for application logging.
// Every package in alouette logs through this interface with key-value
// pairs so callers control how output is rendered:
//
//	logger.Info("Service initialized", "service", "tts", "duration", d)
//
// The shape matches log/slog, zap's SugaredLogger *w methods, logrus and
// similar libraries, so adapting one of them is a few lines.
type Logger interface {
	// Info logs an informational message, e.g. a service finished initializing.
	Info(msg string, args ...any)

	// Error logs an error that was handled but should be noted, e.g. a
	// subscriber that failed during event dispatch.
	Error(msg string, args ...any)

	// Warn logs an unusual condition that does not stop normal operation,
	// e.g. a second call to Initialize.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostic information.
	Debug(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
