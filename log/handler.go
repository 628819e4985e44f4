package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func levelColor(l slog.Level) string {
	switch {
	case l >= LevelCrit:
		return colorRed
	case l >= slog.LevelError:
		return colorRed
	case l >= slog.LevelWarn:
		return colorYellow
	case l >= slog.LevelInfo:
		return colorGreen
	case l >= slog.LevelDebug:
		return colorCyan
	default:
		return colorGray
	}
}

// NewTerminalHandlerWithLevel returns a text handler that prints aligned,
// optionally colored level names, including TRACE and CRIT.
func NewTerminalHandlerWithLevel(w io.Writer, lvl slog.Level, useColor bool) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) != 0 || a.Key != slog.LevelKey {
				return a
			}
			level, ok := a.Value.Any().(slog.Level)
			if !ok {
				return a
			}
			name := LevelAlignedString(level)
			if useColor {
				name = levelColor(level) + name + colorReset
			}
			return slog.String(slog.LevelKey, name)
		},
	})
}

// NewJSONFileHandler appends JSON records to the file at path.
func NewJSONFileHandler(path string, lvl slog.Level) (slog.Handler, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return slog.NewJSONHandler(f, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.LevelKey {
				if level, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, LevelString(level))
				}
			}
			return a
		},
	}), nil
}

// NewFanoutHandler sends every record to all handlers.
func NewFanoutHandler(handlers ...slog.Handler) slog.Handler {
	return slogmulti.Fanout(handlers...)
}

type discardHandler struct{}

// DiscardHandler returns a no-op handler
func DiscardHandler() slog.Handler {
	return &discardHandler{}
}

func (h *discardHandler) Handle(_ context.Context, r slog.Record) error {
	return nil
}

func (h *discardHandler) Enabled(_ context.Context, level slog.Level) bool {
	return false
}

func (h *discardHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *discardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}
