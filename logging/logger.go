package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const EnvLogLevel = "KINARCH_LOG_LEVEL"

// LogLevelOff disables logging altogether
const LogLevelOff = slog.Level(100)

func Initialize() {
	slog.SetDefault(archiverLogger())
}

// archiverLogger returns a JSON logger that writes to stderr, leaving stdout
// for command output
func archiverLogger() *slog.Logger {
	level := getLogLevel()
	if level == LogLevelOff {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	}

	handlerOptions := &slog.HandlerOptions{
		Level: level,
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, handlerOptions)).With("source", "kinarch")
}

func getLogLevel() slog.Leveler {
	levelEnv := os.Getenv(EnvLogLevel)

	switch strings.ToLower(levelEnv) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "off":
		return LogLevelOff
	default:
		return slog.LevelInfo
	}
}
