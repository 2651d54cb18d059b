// Package logger provides the process-wide leveled logger.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var defaultLogger *zap.SugaredLogger

// Init initializes the default logger with the specified level and format.
// Format "json" selects the production encoder; anything else gets the
// human-readable console encoder.
func Init(level string, format string) {
	var cfg zap.Config
	if strings.ToLower(format) == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		zl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zl)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	defaultLogger = l.Sugar()
}

func get() *zap.SugaredLogger {
	if defaultLogger == nil {
		l, _ := zap.NewDevelopment(zap.AddCallerSkip(1))
		defaultLogger = l.Sugar()
	}
	return defaultLogger
}

func Debug(format string, args ...interface{}) { get().Debugf(format, args...) }
func Info(format string, args ...interface{})  { get().Infof(format, args...) }
func Warn(format string, args ...interface{})  { get().Warnf(format, args...) }
func Error(format string, args ...interface{}) { get().Errorf(format, args...) }
func Fatal(format string, args ...interface{}) { get().Fatalf(format, args...) }

// Sync flushes buffered entries. Called once on shutdown.
func Sync() {
	if defaultLogger != nil {
		_ = defaultLogger.Sync()
	}
}
