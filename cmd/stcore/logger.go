package main

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// newLogger returns a console logger on w. Info level by default, debug with
// verbose.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "stcore").Logger()
}
