package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the root zerolog.Logger. Every component logger derives
// from this one, so the per-job and per-request fields land on a shared
// timestamped stream. Development gets a console writer at debug level;
// anything else emits JSON at info.
func NewLogger(appEnv string) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "enhancement-api").
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}
