
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	s *zap.SugaredLogger
}

// New returns an info-level production logger writing JSON to stderr.
func New() *Logger { return NewLevel(false) }

func NewLevel(debug bool) *Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewExample()
	}
	return &Logger{s: l.Sugar()}
}

// Nop discards everything. Used by tests and library callers without a logger.
func Nop() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *Logger { return &Logger{s: l.Sugar()} }

// With returns a child logger carrying key/value pairs on every entry.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.s.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.s.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.s.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.s.Errorf(format, args...)
}

func (l *Logger) Sync() error { return l.s.Sync() }
