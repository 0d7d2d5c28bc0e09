package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// New builds the process logger. format is "json", "console" or "auto";
// auto picks a colored console encoder when stderr is a terminal.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	if format == "" || format == "auto" {
		format = "json"
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "console"
		}
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// LogRequest logs an outbound API request.
func LogRequest(l *zap.Logger, component, method, url string) {
	l.Debug("request",
		zap.String("component", component),
		zap.String("method", method),
		zap.String("url", url))
}

// LogResponse logs an API response received.
func LogResponse(l *zap.Logger, component string, statusCode int, duration time.Duration) {
	l.Debug("response",
		zap.String("component", component),
		zap.Int("status", statusCode),
		zap.Int64("duration_ms", duration.Milliseconds()))
}

// LogError logs an error from an operation.
func LogError(l *zap.Logger, component, operation string, err error) {
	l.Warn("operation failed",
		zap.String("component", component),
		zap.String("op", operation),
		zap.Error(err))
}
