// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel names the environment variable that sets the log level.
const EnvLevel = "FEDGRAPH_LOG_LEVEL"

var level = new(slog.LevelVar)

// Configure installs a text handler on w as the default logger. The level
// comes from name when non-empty, otherwise from FEDGRAPH_LOG_LEVEL, and
// defaults to Info.
func Configure(w io.Writer, name string) *slog.Logger {
	if name == "" {
		name = os.Getenv(EnvLevel)
	}
	level.Set(ParseLevel(name))
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a level; anything
// else is Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the level of the logger installed by Configure.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
