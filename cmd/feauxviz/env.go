package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colorfulnotion/feauxviz/config"
	"github.com/colorfulnotion/feauxviz/engine"
	"github.com/colorfulnotion/feauxviz/engine/wasmengine"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/storage"
	"github.com/colorfulnotion/feauxviz/tracing"
)

// globalFlags override the config file when set on the command line.
type globalFlags struct {
	configPath string
	debug      string
	logLevel   string
	logFile    string
	db         string
	wasm       string
	programs   string
	trace      string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "YAML config file")
	f.StringVar(&g.debug, "debug", "", "Debug modules to enable (asm,engine,snapshot,store,feed,console)")
	f.StringVar(&g.logLevel, "log-level", config.DefaultLogLevel, "Log level")
	f.StringVar(&g.logFile, "log-file", "", "Also write JSON log lines to this file")
	f.StringVar(&g.db, "db", "", "Program and recording database directory (empty = in memory)")
	f.StringVar(&g.wasm, "wasm", "", "Engine wasm module (empty = in-process mock engine)")
	f.StringVar(&g.programs, "programs", "", "Directory of program sources to import on start")
	f.StringVar(&g.trace, "trace-endpoint", "", "OTLP/HTTP collector host:port for engine spans (empty = off)")
}

// load reads the config file, applies changed flags and starts logging.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Log.Modules = g.debug
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = g.logFile
	}
	if flags.Changed("db") {
		cfg.DB = g.db
	}
	if flags.Changed("wasm") {
		cfg.Engine.Wasm = g.wasm
		cfg.Engine.Mock = g.wasm == ""
	}
	if flags.Changed("programs") {
		cfg.ProgramsDir = g.programs
	}
	if flags.Changed("trace-endpoint") {
		cfg.Trace.Endpoint = g.trace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Log.File != "" {
		if err := log.InitLoggerWithFile(cfg.Log.Level, cfg.Log.File); err != nil {
			return nil, err
		}
	} else {
		log.InitLogger(cfg.Log.Level)
	}
	log.EnableModules(cfg.Log.Modules)
	return cfg, nil
}

type env struct {
	cfg    *config.Config
	ps     *storage.PersistenceStore
	lib    *storage.Library
	store  *storage.ProgramStore
	client *engine.Client
	wasm   *wasmengine.Channel

	stopTracing func(context.Context) error
}

func openStore(cfg *config.Config) (*env, error) {
	ps, err := storage.NewPersistenceStore(cfg.DB)
	if err != nil {
		return nil, err
	}
	lib, err := storage.NewLibrary(cfg.LibrarySize)
	if err != nil {
		ps.Close()
		return nil, err
	}
	e := &env{cfg: cfg, ps: ps, lib: lib, store: storage.NewProgramStore(ps, lib)}
	if cfg.ProgramsDir != "" {
		names, err := e.store.ImportDir(cfg.ProgramsDir)
		if err != nil {
			e.Close(context.Background())
			return nil, err
		}
		log.Info(log.StoreMonitoring, "programs imported", "dir", cfg.ProgramsDir, "count", len(names))
	}
	return e, nil
}

// openEnv opens the store and the engine, applies the configured topology
// and installs every stored program.
func openEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	e, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if e.stopTracing, err = tracing.Setup(ctx, cfg.Trace.Endpoint, cfg.Trace.Insecure); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if err := e.startEngine(ctx); err != nil {
		e.Close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *env) startEngine(ctx context.Context) error {
	var ch engine.Channel
	if e.cfg.Engine.Mock {
		ch = engine.NewMockChannel(engine.DefaultArenaSize)
	} else {
		w, err := wasmengine.Open(ctx, e.cfg.Engine.Wasm)
		if err != nil {
			return err
		}
		e.wasm = w
		ch = w
	}
	e.client = engine.NewClient(ch)

	strategy, err := e.cfg.Strategy()
	if err != nil {
		return err
	}
	if err := e.client.SetCoreCount(ctx, e.cfg.Engine.Cores); err != nil {
		return err
	}
	if err := e.client.SetIODeviceCount(ctx, e.cfg.Engine.IODevices); err != nil {
		return err
	}
	if err := e.client.SetSchedulingStrategy(ctx, strategy); err != nil {
		return err
	}
	if err := e.client.SetClockDelay(ctx, uint32(e.cfg.Engine.ClockDelay)); err != nil {
		return err
	}

	recs, err := e.store.List()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := e.client.LoadProgram(ctx, rec.Program); err != nil {
			return fmt.Errorf("install %s: %w", rec.Name, err)
		}
	}
	log.Info(log.EngineMonitoring, "engine ready", "mock", e.cfg.Engine.Mock, "programs", len(recs), "strategy", strategy)
	return nil
}

func (e *env) Close(ctx context.Context) error {
	var err error
	if e.wasm != nil {
		err = e.wasm.Close(ctx)
	}
	if cerr := e.ps.Close(); err == nil {
		err = cerr
	}
	if e.stopTracing != nil {
		if terr := e.stopTracing(ctx); err == nil {
			err = terr
		}
	}
	return err
}
