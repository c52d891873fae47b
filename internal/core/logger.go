package core

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal logging surface the merge service needs. A no-op
// implementation is used unless the caller injects one.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

// ZapLogger adapts a zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps the provided zap logger for use by the service.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: l.Sugar()}
}

// Debugf logs at debug level.
func (z *ZapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }

// Infof logs at info level.
func (z *ZapLogger) Infof(format string, args ...any) { z.sugar.Infof(format, args...) }

// Warnf logs at warn level.
func (z *ZapLogger) Warnf(format string, args ...any) { z.sugar.Warnf(format, args...) }

// Errorf logs at error level.
func (z *ZapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }

// NewLogger builds the process-wide structured logger. Level and environment
// come from PATIENTCORE_LOG_LEVEL (debug|info|warn|error, default info) and
// PATIENTCORE_ENV (development switches to console-friendly output).
func NewLogger() (*zap.Logger, error) {
	var level zapcore.Level
	switch os.Getenv("PATIENTCORE_LOG_LEVEL") {
	case "debug":
		level = zap.DebugLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}

	development := os.Getenv("PATIENTCORE_ENV") == "development"

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      development,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return cfg.Build()
}
