package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	AsmMonitoring      = "asm_mod"      // assembler
	EngineMonitoring   = "engine_mod"   // engine binding
	SnapshotMonitoring = "snapshot_mod" // snapshot decoding
	StoreMonitoring    = "store_mod"    // program store and recorder
	FeedMonitoring     = "feed_mod"     // websocket feed and poller
	ConsoleMonitoring  = "console_mod"  // interactive console
)

var root atomic.Value

func init() {
	root.Store(NewLogger(DiscardHandler()))
}

func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(lvl) {
	case "MAX", "MAXVERBOSITY":
		return levelMaxVerbosity, nil
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	default:
		return 0, fmt.Errorf("invalid level: %s", lvl)
	}
}

// InitLogger logs to stderr at the named level. An unknown level name is
// fatal.
func InitLogger(logLevel string) {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log: %v\n", err)
		os.Exit(1)
	}
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}

// InitLoggerWithFile logs to the terminal and, as JSON lines, to path.
func InitLoggerWithFile(logLevel string, path string) error {
	logLvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	fileHandler, err := NewJSONFileHandler(path, logLvl)
	if err != nil {
		return err
	}
	SetDefault(NewLogger(NewFanoutHandler(
		NewTerminalHandlerWithLevel(os.Stderr, logLvl, true),
		fileHandler,
	)))
	return nil
}

// SetDefault replaces the logger behind the package-level helpers and
// slog's default.
func SetDefault(l Logger) {
	root.Store(l)
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

func Root() Logger {
	return root.Load().(Logger)
}

// Debug and Trace records are dropped unless their module is enabled.
var (
	moduleMu      sync.RWMutex
	moduleEnabled = map[string]bool{
		AsmMonitoring:      false,
		EngineMonitoring:   false,
		SnapshotMonitoring: false,
		StoreMonitoring:    false,
		FeedMonitoring:     false,
		ConsoleMonitoring:  false,
	}
)

func EnableModule(module string) {
	moduleMu.Lock()
	defer moduleMu.Unlock()
	moduleEnabled[module] = true
}

// EnableModules enables a comma separated list of modules. Bare names
// without the "_mod" suffix are accepted.
func EnableModules(modules string) {
	for _, m := range strings.Split(modules, ",") {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if !strings.HasSuffix(m, "_mod") {
			m += "_mod"
		}
		EnableModule(m)
	}
}

func DisableModule(module string) {
	moduleMu.Lock()
	defer moduleMu.Unlock()
	moduleEnabled[module] = false
}

func isModuleEnabled(module string) bool {
	moduleMu.RLock()
	defer moduleMu.RUnlock()
	enabled, ok := moduleEnabled[module]
	return ok && enabled
}

func Trace(module string, msg string, attrs ...any) {
	if isModuleEnabled(module) {
		Root().Write(LevelTrace, module, msg, attrs...)
	}
}

func Debug(module string, msg string, attrs ...any) {
	if isModuleEnabled(module) {
		Root().Write(LevelDebug, module, msg, attrs...)
	}
}

func Info(module string, msg string, attrs ...any) {
	Root().Write(LevelInfo, module, msg, attrs...)
}

func Warn(module string, msg string, attrs ...any) {
	Root().Write(LevelWarn, module, msg, attrs...)
}

func Error(module string, msg string, attrs ...any) {
	Root().Write(LevelError, module, msg, attrs...)
}

// Crit logs and exits the process.
func Crit(module string, msg string, attrs ...any) {
	Root().Write(LevelCrit, module, msg, attrs...)
	os.Exit(1)
}

// New returns the root logger with attrs attached to every record.
func New(attrs ...any) Logger {
	return Root().With(attrs...)
}
