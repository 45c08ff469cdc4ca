// Package logger provides the appliance-wide structured logger.
package logger

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// New returns a console logger at the given level. Unknown level strings
// fall back to debug.
func New(level string) *Logger {
	return newZapLogger(level)
}
