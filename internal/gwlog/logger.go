// Package gwlog wires the gateway's zerolog setup: console output for a
// terminal, JSON output otherwise, with the level given by the caller.
// cmd/gatewayd passes its --log-level flag, or GATEWAY_LOG_LEVEL when the
// flag is unset; the config file's log_level is not used for this.
package gwlog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger for the given level string ("debug",
// "info", "warn", "error"; unknown values fall back to "info"). When
// console is true, output is a human-readable ConsoleWriter; otherwise
// structured JSON to stderr.
func New(level string, console bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	if console {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
	}
	return logger
}

// LevelFromEnv reads GATEWAY_LOG_LEVEL, defaulting to "info".
func LevelFromEnv() string {
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		return v
	}
	return "info"
}
