// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global zerolog logger level and writer. level is one of
// debug/info/warn/error; an unrecognized value falls back to info.
func Init(level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component,
// e.g. logging.Component("provider.kalshi").
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
