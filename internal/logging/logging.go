package logging

import (
	"io"
	log "log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var levels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// ParseLevel maps a level name to a slog level; unknown names are info.
func ParseLevel(name string) log.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return log.LevelInfo
}

// Setup installs a tint handler writing to w as the default logger.
func Setup(w io.Writer, level string) *log.Logger {
	logger := log.New(tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.TimeOnly,
	}))
	log.SetDefault(logger)
	return logger
}
