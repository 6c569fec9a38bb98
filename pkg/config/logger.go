package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a level string to slog.Level, following the teacher's
// pkg/logger.ParseLevel (minus its third-party-log filtering handler, which
// agentcore has no use for as a library rather than a CLI front-end).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}

// NewLogger builds a slog.Logger from a LoggerConfig, writing to w. Format
// "json" uses slog.NewJSONHandler; anything else ("simple" or unset) uses
// slog.NewTextHandler, matching the teacher's simple/verbose/json format
// switch (cmd/hector's --log-format flag).
func (c LoggerConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(c.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}
