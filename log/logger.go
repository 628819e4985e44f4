package log

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"time"
)

// slog levels plus TRACE below DEBUG and CRIT above ERROR.
const (
	levelMaxVerbosity slog.Level = math.MinInt
	LevelTrace        slog.Level = -8
	LevelDebug                   = slog.LevelDebug
	LevelInfo                    = slog.LevelInfo
	LevelWarn                    = slog.LevelWarn
	LevelError                   = slog.LevelError
	LevelCrit         slog.Level = 12
)

var levelNames = []struct {
	level   slog.Level
	name    string
	aligned string
}{
	{LevelTrace, "trace", "TRACE"},
	{LevelDebug, "debug", "DEBUG"},
	{LevelInfo, "info", "INFO "},
	{LevelWarn, "warn", "WARN "},
	{LevelError, "error", "ERROR"},
	{LevelCrit, "crit", "CRIT "},
}

func LevelString(l slog.Level) string {
	for _, n := range levelNames {
		if n.level == l {
			return n.name
		}
	}
	return "unknown"
}

// LevelAlignedString pads the level name to five characters for terminal output.
func LevelAlignedString(l slog.Level) string {
	for _, n := range levelNames {
		if n.level == l {
			return n.aligned
		}
	}
	return "?????"
}

// Logger writes records tagged with the module that produced them.
type Logger interface {
	With(attrs ...any) Logger
	Write(level slog.Level, module string, msg string, attrs ...any)
	Enabled(ctx context.Context, level slog.Level) bool
	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

func NewLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

func (l *logger) Handler() slog.Handler { return l.inner.Handler() }

func (l *logger) With(attrs ...any) Logger {
	return &logger{inner: l.inner.With(attrs...)}
}

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

// Write records the caller of the package-level helper, two frames up.
func (l *logger) Write(level slog.Level, module string, msg string, attrs ...any) {
	ctx := context.Background()
	if !l.inner.Enabled(ctx, level) {
		return
	}
	var pc [1]uintptr
	runtime.Callers(3, pc[:])
	r := slog.NewRecord(time.Now(), level, msg, pc[0])
	if module != "" {
		r.AddAttrs(slog.String("module", module))
	}
	r.Add(attrs...)
	_ = l.inner.Handler().Handle(ctx, r)
}
