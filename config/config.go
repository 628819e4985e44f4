// Package config holds the settings shared by the feauxviz commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

const (
	DefaultListen       = "127.0.0.1:8088"
	DefaultPollInterval = 16 * time.Millisecond
	DefaultLogLevel     = "info"
	DefaultCores        = 2
	DefaultIODevices    = 1
	DefaultClockDelay   = 500
	DefaultLibrarySize  = 128
)

type EngineConfig struct {
	Wasm       string `yaml:"wasm"`
	Mock       bool   `yaml:"mock"`
	Cores      int    `yaml:"cores"`
	IODevices  int    `yaml:"io_devices"`
	ClockDelay int    `yaml:"clock_delay"`
	Strategy   string `yaml:"strategy"`
}

type FeedConfig struct {
	Listen       string        `yaml:"listen"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Record       bool          `yaml:"record"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Modules string `yaml:"modules"`
	File    string `yaml:"file"`
}

// TraceConfig enables OTLP/HTTP span export when Endpoint is set.
type TraceConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type Config struct {
	Engine      EngineConfig `yaml:"engine"`
	Feed        FeedConfig   `yaml:"feed"`
	Log         LogConfig    `yaml:"log"`
	Trace       TraceConfig  `yaml:"trace"`
	DB          string       `yaml:"db"`
	ProgramsDir string       `yaml:"programs_dir"`
	LibrarySize int          `yaml:"library_size"`
}

// Default returns a config that runs against the in-process engine with
// in-memory storage.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Mock:       true,
			Cores:      DefaultCores,
			IODevices:  DefaultIODevices,
			ClockDelay: DefaultClockDelay,
			Strategy:   snapshot.FIFO.String(),
		},
		Feed: FeedConfig{
			Listen:       DefaultListen,
			PollInterval: DefaultPollInterval,
		},
		Log:         LogConfig{Level: DefaultLogLevel},
		LibrarySize: DefaultLibrarySize,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Unmarshal decodes YAML into cfg, keeping any field the document omits,
// then validates the result.
func (cfg *Config) Unmarshal(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return cfg.Validate()
}

func (cfg *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Strategy returns the parsed scheduling strategy.
func (cfg *Config) Strategy() (snapshot.SchedulingStrategy, error) {
	s, err := snapshot.ParseStrategy(cfg.Engine.Strategy)
	if err != nil {
		return 0, invalid("engine.strategy", cfg.Engine.Strategy)
	}
	return s, nil
}

func (cfg *Config) Validate() error {
	var errs []error
	if !cfg.Engine.Mock && cfg.Engine.Wasm == "" {
		errs = append(errs, invalid("engine.wasm", "empty without engine.mock"))
	}
	if cfg.Engine.Cores < 1 || cfg.Engine.Cores > 255 {
		errs = append(errs, invalid("engine.cores", cfg.Engine.Cores))
	}
	if cfg.Engine.IODevices < 0 || cfg.Engine.IODevices > 255 {
		errs = append(errs, invalid("engine.io_devices", cfg.Engine.IODevices))
	}
	if cfg.Engine.ClockDelay < 0 {
		errs = append(errs, invalid("engine.clock_delay", cfg.Engine.ClockDelay))
	}
	if _, err := cfg.Strategy(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Feed.PollInterval <= 0 {
		errs = append(errs, invalid("feed.poll_interval", cfg.Feed.PollInterval))
	}
	if cfg.LibrarySize < 1 {
		errs = append(errs, invalid("library_size", cfg.LibrarySize))
	}
	if cfg.Trace.Endpoint != "" {
		if _, _, err := net.SplitHostPort(cfg.Trace.Endpoint); err != nil {
			errs = append(errs, invalid("trace.endpoint", cfg.Trace.Endpoint))
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "crit":
	default:
		errs = append(errs, invalid("log.level", cfg.Log.Level))
	}
	return errors.Join(errs...)
}

func invalid(field string, v any) error {
	return fmt.Errorf("%w: %s=%v", feauxerrors.ErrCInvalidValue, field, v)
}
