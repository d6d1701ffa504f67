package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger *zap.Logger

// Init initializes the global logger. In development the console encoder is
// used; everywhere else structured JSON.
func Init(level string, environment string) error {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	globalLogger = logger
	return nil
}

// Get returns the global logger, falling back to a development logger when
// Init has not been called (tests).
func Get() *zap.Logger {
	if globalLogger == nil {
		logger, _ := zap.NewDevelopmentConfig().Build()
		return logger
	}
	return globalLogger
}

// Sync flushes any buffered log entries.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Get().Fatal(msg, fields...) }

// Field helpers so callers don't import zap directly.

func String(key, value string) zap.Field             { return zap.String(key, value) }
func Int(key string, value int) zap.Field            { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field        { return zap.Int64(key, value) }
func Bool(key string, value bool) zap.Field          { return zap.Bool(key, value) }
func Duration(key string, v time.Duration) zap.Field { return zap.Duration(key, v) }
func Time(key string, value time.Time) zap.Field     { return zap.Time(key, value) }
func ErrorField(err error) zap.Field                 { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field    { return zap.Any(key, value) }
