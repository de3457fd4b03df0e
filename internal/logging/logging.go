// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tessro/elixir/internal/config"
)

// Setup returns a logger configured from the [log] section. Verbose forces
// debug level. With a log file set, output goes to a rotating file instead
// of stderr so the TUI is not disturbed.
func Setup(cfg config.LogConfig, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.WarnLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(output(cfg)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func output(cfg config.LogConfig) io.Writer {
	switch cfg.File {
	case "":
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		}
	}
}

// Nop is a disabled logger for tests and callers without configuration.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
