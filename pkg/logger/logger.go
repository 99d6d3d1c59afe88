package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger. It defaults to a no-op logger so packages can
// log before Init runs (and so tests need no setup).
var Log = zap.NewNop()

// Init initializes the global logger. level is one of debug/info/warn/error
// (empty falls back to LOOMD_LOG_LEVEL, then info); format is "json" or
// "console". The optional LOOMD_LOG_SINK env var ("file:/path") redirects
// output to a file.
func Init(level, format string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("LOOMD_LOG_LEVEL")))
	}
	zl, err := zapcore.ParseLevel(lvl)
	if err != nil {
		zl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if sink := os.Getenv("LOOMD_LOG_SINK"); strings.HasPrefix(sink, "file:") {
		cfg.OutputPaths = []string{strings.TrimPrefix(sink, "file:")}
	}

	l, err := cfg.Build(zap.WithCaller(false))
	if err != nil {
		// keep the no-op logger rather than crash on a bad sink
		return
	}
	Log = l
}

// Sync flushes buffered log entries. Safe to call at shutdown.
func Sync() {
	_ = Log.Sync()
}

// Debug logs at debug level with zap fields.
func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }

// Info logs at info level with zap fields.
func Info(msg string, fields ...zap.Field) { Log.Info(msg, fields...) }

// Warn logs at warn level with zap fields.
func Warn(msg string, fields ...zap.Field) { Log.Warn(msg, fields...) }

// Error logs at error level with zap fields.
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }
