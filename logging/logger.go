// Package logging builds the structured logger shared by the command line
// tools and the solver packages.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/bcdannyboy/jdpide/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New returns a JSON logger writing to w. When cfg.File is set records go to
// a lumberjack-rotated file instead, and the returned closer releases it.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}
		w, closer = fileWriter, fileWriter
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	})
	return slog.New(handler).With(slog.String("service", "jdpide")), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
