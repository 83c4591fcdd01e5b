// Package logging builds the zerolog loggers used by every server. Output
// always goes to stderr because stdout carries the protocol.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger creates the process logger for app at level and installs it as
// the global zerolog logger. An unknown level falls back to info.
func InitLogger(app, level string) zerolog.Logger {
	return New(os.Stderr, app, level)
}

// New creates a console logger writing to w
func New(w io.Writer, app, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// Nop returns a disabled logger
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
