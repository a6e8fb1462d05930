// Package logger provides structured logging using zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) Logger
	SetLevel(level zerolog.Level)
}

type Config struct {
	Level      string `mapstructure:"level"`
	Debug      bool   `mapstructure:"debug"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
	// Console switches to the human readable writer used by the CLI.
	Console bool `mapstructure:"console"`
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Output:  "stderr",
		Console: true,
	}
}

type zlog struct {
	z zerolog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) (Logger, error) {
	var output io.Writer = os.Stderr

	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		output = os.Stdout
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	if cfg.Console {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	level := zerolog.InfoLevel

	if cfg.Debug {
		level = zerolog.DebugLevel
	} else if cfg.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
	}

	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	return &zlog{z: zerolog.New(output).Level(level).With().Timestamp().Logger()}, nil
}

// NewWriter logs JSON lines to w at the given level.
func NewWriter(w io.Writer, level zerolog.Level) Logger {
	return &zlog{z: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

func (l *zlog) Trace() *zerolog.Event { return l.z.Trace() }
func (l *zlog) Debug() *zerolog.Event { return l.z.Debug() }
func (l *zlog) Info() *zerolog.Event  { return l.z.Info() }
func (l *zlog) Warn() *zerolog.Event  { return l.z.Warn() }
func (l *zlog) Error() *zerolog.Event { return l.z.Error() }
func (l *zlog) With() zerolog.Context { return l.z.With() }

func (l *zlog) WithComponent(component string) Logger {
	return &zlog{z: l.z.With().Str("component", component).Logger()}
}

func (l *zlog) SetLevel(level zerolog.Level) {
	l.z = l.z.Level(level)
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return &zlog{z: zerolog.New(io.Discard).Level(zerolog.Disabled)}
}
