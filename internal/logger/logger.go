// Package logger builds the zerolog.Logger handed to every component.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Verbose enables debug output, including relayed image build output.
	Verbose bool
	// Silent disables logging entirely. It wins over Verbose.
	Silent bool
	// Out is the console destination. Defaults to stderr.
	Out io.Writer
	// File, when set, also writes JSON log lines to a rotated file.
	File string
}

// New returns a logger configured by opts and a function releasing the log
// file, if any.
func New(opts Options) (zerolog.Logger, func() error) {
	noop := func() error { return nil }
	if opts.Silent {
		return zerolog.Nop(), noop
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	closer := noop
	if opts.File != "" {
		fw := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20,
			MaxBackups: 3,
			LocalTime:  true,
		}
		w = io.MultiWriter(w, fw)
		closer = fw.Close
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger(), closer
}
