// Package logging sets up the zerolog logger every component takes by
// value, matching the teacher's preference for one shared structured
// logger over per-package ad-hoc logging.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-friendly zerolog.Logger when env is "dev" or empty,
// or a plain JSON logger for any other env.
func New(env, instanceName string) zerolog.Logger {
	var w zerolog.ConsoleWriter
	var logger zerolog.Logger
	if env == "" || env == "dev" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Str("scheduler", instanceName).Logger()
}
