// Package logflags configures per-subsystem loggers shared by the rest of
// the module. It mirrors delve's pkg/logflags: a small set of named
// loggers, each a *logrus.Entry tagged with a "subsystem" field, backed by
// one process-wide logrus.Logger whose level and output can be changed at
// runtime.
package logflags

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	logger = newLogger()
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Level = logrus.WarnLevel
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	return l
}

// SetLevel changes the minimum level logged by every subsystem logger.
func SetLevel(level logrus.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger.Level = level
}

// SetOutput redirects all subsystem loggers to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.Out = w
}

func entry(subsystem string) *logrus.Entry {
	mu.Lock()
	defer mu.Unlock()
	return logger.WithField("subsystem", subsystem)
}

// PtraceLogger returns the logger used by pkg/ptrace for attach/detach and
// thread enumeration diagnostics.
func PtraceLogger() *logrus.Entry { return entry("ptrace") }

// TraceLogger returns the logger used by pkg/rstack's Tracer.
func TraceLogger() *logrus.Entry { return entry("trace") }

// SymbolLogger returns the logger used by pkg/symbol's Index construction
// and lookup paths.
func SymbolLogger() *logrus.Entry { return entry("symbol") }

// SelfTraceLogger returns the logger used by pkg/rstackself.
func SelfTraceLogger() *logrus.Entry { return entry("selftrace") }

// UnwindLogger returns the logger used by pkg/unwind backends.
func UnwindLogger() *logrus.Entry { return entry("unwind") }
