package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, lvl)

	lvl, err = ParseLevel("TRACE")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false)))

	DisableModule(AsmMonitoring)
	Debug(AsmMonitoring, "hidden")
	assert.Empty(t, buf.String())

	EnableModules("asm")
	defer DisableModule(AsmMonitoring)
	Debug(AsmMonitoring, "shown", "line", 3)
	out := buf.String()
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "module=asm_mod")
	assert.Contains(t, out, "line=3")
	assert.Contains(t, out, "DEBUG")

	buf.Reset()
	Info(EngineMonitoring, "always")
	assert.True(t, strings.Contains(buf.String(), "always"))
}

func TestFanoutToFile(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	path := filepath.Join(t.TempDir(), "feauxviz.log")
	fileHandler, err := NewJSONFileHandler(path, LevelInfo)
	require.NoError(t, err)

	var buf bytes.Buffer
	SetDefault(NewLogger(NewFanoutHandler(NewTerminalHandlerWithLevel(&buf, LevelInfo, false), fileHandler)))
	Warn(StoreMonitoring, "fanout", "key", "v")

	assert.Contains(t, buf.String(), "fanout")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "warn", rec[slog.LevelKey])
	assert.Equal(t, "store_mod", rec["module"])
	assert.Equal(t, "v", rec["key"])
}
