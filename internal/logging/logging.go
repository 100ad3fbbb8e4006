// Package logging builds the component loggers handed to the engines.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger tagged with component.
func New(w io.Writer, level zerolog.Level, component string) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
}

// Console is New with human readable output.
func Console(w io.Writer, level zerolog.Level, component string) zerolog.Logger {
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}, level, component)
}

// Nop discards everything.
func Nop() zerolog.Logger { return zerolog.Nop() }

// ParseLevel accepts zerolog level names plus the firmware's "crit". An
// empty string means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, nil
	case "crit":
		return zerolog.FatalLevel, nil
	}
	return zerolog.ParseLevel(s)
}
