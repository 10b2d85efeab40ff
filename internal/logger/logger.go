package logger

// Log levels accepted by New.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// New returns a console logger at the given level. Loggers are built once in
// cmd and passed down; there is no package-level instance.
func New(level string) *Logger {
	return newZapLogger(level)
}
