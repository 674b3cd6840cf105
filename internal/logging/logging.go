// Package logging constructs the process-wide zerolog.Logger handle.
// The logger itself is never a package-global: callers receive one
// value from New and thread it through constructors explicitly (spec
// §9 "Global mutable state").
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Options controls the logger's destination format and verbosity.
type Options struct {
	// JSON selects line-delimited JSON output (for production log
	// shipping) over a human-readable console writer (for local runs).
	JSON bool
	// Debug enables debug-level output; otherwise info.
	Debug bool
}

// New builds a configured zerolog.Logger per Options.
func New(opts Options) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if opts.Debug {
		lvl = zerolog.DebugLevel
	}

	var base zerolog.Logger
	if opts.JSON {
		base = zerolog.New(os.Stderr)
	} else {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	return base.Level(lvl).With().Timestamp().Logger()
}
