package pigeon

import (
	"fmt"
	"os"
	"time"
)

// Logger defines logging methods used across the process. Implementations
// should be cheap. Default is FmtLogger which writes to stdout/stderr
// using fmt.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// FmtLogger is a minimal logger that prints timestamped messages with level
// prefixes. Debug/Info go to stdout; Warn/Error go to stderr.
type FmtLogger struct{}

// NewFmtLogger creates a new FmtLogger.
func NewFmtLogger() *FmtLogger { return &FmtLogger{} }

func stamp() string { return time.Now().Format("15:04:05") }

func (FmtLogger) Debugf(format string, args ...any) {
	fmt.Printf(stamp()+" [DEBUG] "+format+"\n", args...)
}

func (FmtLogger) Infof(format string, args ...any) {
	fmt.Printf(stamp()+" [INFO]  "+format+"\n", args...)
}

func (FmtLogger) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, stamp()+" [WARN]  "+format+"\n", args...)
}

func (FmtLogger) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, stamp()+" [ERROR] "+format+"\n", args...)
}

// NopLogger discards everything. Useful in tests.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
