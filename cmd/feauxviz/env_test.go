package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/colorfulnotion/feauxviz/config"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

func TestOpenEnvInstallsPrograms(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spin.s"), []byte("work 4\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idle.asm"), []byte("nop\n"), 0o644))

	cfg := config.Default()
	cfg.ProgramsDir = dir
	cfg.Engine.Cores = 3
	cfg.Engine.Strategy = "mlf"

	ctx := context.Background()
	e, err := openEnv(ctx, cfg)
	require.NoError(t, err)
	defer e.Close(ctx)

	pid, err := e.client.Spawn(ctx, "spin")
	require.NoError(t, err)
	assert.EqualValues(t, 1, pid)

	f, err := e.client.Snapshot(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), f.Machine.NumCores)
	require.Len(t, f.OS.MLFReadyLists[0], 1)
	assert.Equal(t, int32(4), f.OS.MLFReadyLists[0][0].RequiredProcessorTime)
	assert.Equal(t, snapshot.Ready, f.OS.Processes[0].State)
}

func TestOpenEnvMissingWasm(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Mock = false
	cfg.Engine.Wasm = filepath.Join(t.TempDir(), "missing.wasm")

	_, err := openEnv(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenEnvTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := config.Default()
	cfg.Trace = config.TraceConfig{Endpoint: "127.0.0.1:4318", Insecure: true}
	ctx := context.Background()
	e, err := openEnv(ctx, cfg)
	require.NoError(t, err)
	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)
	require.NotNil(t, e.stopTracing)

	// no spans were started, so shutdown has nothing to send
	require.NoError(t, e.Close(ctx))
}

func TestTraceEndpointFlag(t *testing.T) {
	g := &globalFlags{}
	cmd := &cobra.Command{Use: "test"}
	g.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--trace-endpoint", "collector:4318"}))

	cfg, err := g.load(cmd)
	require.NoError(t, err)
	assert.Equal(t, "collector:4318", cfg.Trace.Endpoint)
}
