// Package logging builds the service-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       string // debug, info, warn, error
	Console     bool   // human-readable output instead of JSON
	Output      io.Writer
}

// New returns a logger stamped with the service name. Unknown levels
// fall back to info.
func New(opts Options) zerolog.Logger {
	var output io.Writer = opts.Output
	if output == nil {
		output = os.Stdout
	}
	if opts.Console {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.
		New(output).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger().
		Level(ParseLevel(opts.Level))
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(s); err == nil {
		return lvl
	}
	return zerolog.InfoLevel
}
