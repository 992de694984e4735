package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger with key/value call style.
type Logger struct {
	sugar *zap.SugaredLogger
	base  *zap.Logger
}

// New builds a logger for the given level and environment. Production
// uses the JSON encoder; everything else gets the console encoder.
func New(level, environment string) (*Logger, error) {
	var cfg zap.Config
	if environment == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{sugar: base.Sugar(), base: base}, nil
}

// Zap exposes the underlying desugared logger for packages that want
// strongly typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// ForRequest returns a child logger with the request identity bound.
func (l *Logger) ForRequest(requestID, method, path string) *Logger {
	sugar := l.sugar.With("request_id", requestID, "method", method, "path", path)
	return &Logger{sugar: sugar, base: l.base}
}

// With returns a child logger with extra key/value context bound.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), base: l.base}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

// Critical logs at Error level with a severity marker that alerting
// rules match on. Used where losing the message would mean losing the
// only durable copy of an audit record.
func (l *Logger) Critical(msg string, keysAndValues ...interface{}) {
	kv := append([]interface{}{"severity", "CRITICAL"}, keysAndValues...)
	l.sugar.Errorw(msg, kv...)
}

// Aliases matching the *w sugared naming used in middleware.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) { l.Debug(msg, keysAndValues...) }
func (l *Logger) Infow(msg string, keysAndValues ...interface{})  { l.Info(msg, keysAndValues...) }
func (l *Logger) Warnw(msg string, keysAndValues ...interface{})  { l.Warn(msg, keysAndValues...) }
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) { l.Error(msg, keysAndValues...) }

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
