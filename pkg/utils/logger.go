package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	loggerMu sync.RWMutex
	logger   = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo, TimeFormat: time.Kitchen}))
)

// LogOptions controls how InitLogger builds the process logger.
type LogOptions struct {
	Level  string    // debug, info, warn, error
	Format string    // text (colored console) or json
	Output io.Writer // defaults to stderr
}

// InitLogger replaces the process logger and slog's default logger.
func InitLogger(opts LogOptions) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    out != os.Stderr && out != os.Stdout,
		})
	}

	l := slog.New(handler)
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	slog.SetDefault(l)
	return l
}

// GetLogger returns the process logger.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MaskSensitiveString keeps the first and last four characters of a secret.
func MaskSensitiveString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
