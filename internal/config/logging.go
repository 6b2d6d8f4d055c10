package config

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Logger builds the zerolog logger described by c. Level names were checked
// by Validate; an unknown one falls back to info.
func (c LoggingConfig) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if c.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
