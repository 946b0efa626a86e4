// Package logging builds sdb's structured logger: a single log/slog.Logger
// fanning out to one or more handlers via samber/slog-multi, so a session
// can log to stderr for the user and, independently, to a debug log file
// without threading two loggers through every call site.
package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures the fan-out handler set.
type Options struct {
	Level     slog.Level
	JSON      bool
	Stderr    io.Writer // defaults to os.Stderr
	ExtraFile io.Writer // optional second sink, e.g. a debug log file
}

// New builds the logger described by opts.
func New(opts Options) *slog.Logger {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var handlers []slog.Handler
	if opts.JSON {
		handlers = append(handlers, slog.NewJSONHandler(stderr, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, handlerOpts))
	}
	if opts.ExtraFile != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.ExtraFile, handlerOpts))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// LevelFromString maps a config string ("debug"/"info"/"warn"/"error") to a
// slog.Level, defaulting to Info for anything unrecognized.
func LevelFromString(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
