// Package obslog configures the process-wide structured logger
// (slog.Default()) and hands out component-scoped loggers from it. The
// CLI driver installs it at startup; the transfer packages themselves
// (coordinator, mapper, grid) do not log.
package obslog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Configure installs a process-wide slog default logger.
//
// Supported levels: debug, info, warn, error.
func Configure(level string) error {
	parsed, err := parseLevel(level)
	if err != nil {
		return err
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	slog.SetDefault(slog.New(h))
	return nil
}

// With returns a logger scoped to the given component, e.g. a chunk id
// or "grid" or "mapper", so log lines can be filtered per actor.
func With(component string, kv ...any) *slog.Logger {
	args := make([]any, 0, len(kv)+2)
	args = append(args, "component", component)
	args = append(args, kv...)
	return slog.With(args...)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}
