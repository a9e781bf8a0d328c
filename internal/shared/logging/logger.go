// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to stdout, or a human-readable console
// logger in development. Unknown levels fall back to info.
func New(level string, dev bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if dev {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "casetracker").Logger()
}
