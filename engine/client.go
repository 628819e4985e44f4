package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/colorfulnotion/feauxviz/asm"
	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/memory"
	"github.com/colorfulnotion/feauxviz/program"
	"github.com/colorfulnotion/feauxviz/snapshot"
	"github.com/colorfulnotion/feauxviz/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Client composes a Channel into whole operations: every engine allocation
// it makes is released before the operation returns.
type Client struct {
	ch Channel
}

func NewClient(ch Channel) *Client {
	return &Client{ch: ch}
}

func (c *Client) Channel() Channel {
	return c.ch
}

// exclusive runs fn where the channel's memory may be read and written.
func (c *Client) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if ex, ok := c.ch.(Exclusive); ok {
		return ex.Exclusive(ctx, fn)
	}
	return fn(ctx)
}

// withString copies s into an engine string buffer for the duration of fn.
// Names the engine cannot store are rejected before anything is allocated.
func (c *Client) withString(ctx context.Context, s string, fn func(ctx context.Context, ptr uint32) error) error {
	if err := memory.CheckLatin1(s); err != nil {
		return err
	}
	return c.exclusive(ctx, func(ctx context.Context) (err error) {
		ptr, err := c.ch.AllocString(ctx, memory.StringLen(s))
		if err != nil {
			return fmt.Errorf("alloc string: %w", err)
		}
		if ptr == 0 {
			return feauxerrors.ErrEAllocFailed
		}
		defer func() {
			if ferr := c.ch.FreeString(ctx, ptr); ferr != nil {
				err = errors.Join(err, fmt.Errorf("free string: %w", ferr))
			}
		}()

		mem, err := c.ch.Memory(ctx)
		if err != nil {
			return err
		}
		mem.WriteString(ptr, s)
		return fn(ctx, ptr)
	})
}

// LoadProgram installs p in the engine under p.Name.
func (c *Client) LoadProgram(ctx context.Context, p *program.Program) (err error) {
	ctx, span := tracing.Start(ctx, "engine.LoadProgram",
		attribute.String("program", p.Name), attribute.Int("instructions", len(p.Instructions)))
	defer func() { tracing.End(span, err) }()

	if p.Name == "" {
		return feauxerrors.ErrEEmptyName
	}
	if err := memory.CheckLatin1(p.Name); err != nil {
		return err
	}
	count := uint32(len(p.Instructions))
	if count == 0 {
		return fmt.Errorf("%w: %q", feauxerrors.ErrEEmptyProgram, p.Name)
	}

	return c.exclusive(ctx, func(ctx context.Context) (err error) {
		listPtr, err := c.ch.AllocInstructionList(ctx, count)
		if err != nil {
			return fmt.Errorf("alloc instruction list: %w", err)
		}
		if listPtr == 0 {
			return feauxerrors.ErrEAllocFailed
		}
		defer func() {
			if ferr := c.ch.FreeInstructionList(ctx, listPtr); ferr != nil {
				err = errors.Join(err, fmt.Errorf("free instruction list: %w", ferr))
			}
		}()

		return c.withString(ctx, p.Name, func(ctx context.Context, namePtr uint32) error {
			mem, err := c.ch.Memory(ctx)
			if err != nil {
				return err
			}
			program.WriteInstructions(mem, listPtr, p.Instructions)
			if err := c.ch.LoadProgram(ctx, listPtr, count, namePtr); err != nil {
				return err
			}
			log.Debug(log.EngineMonitoring, "engine: program loaded", "name", p.Name, "instructions", count)
			return nil
		})
	})
}

// CompileAndLoad assembles src and loads the result as name. Nothing is
// allocated in the engine when compilation fails.
func (c *Client) CompileAndLoad(ctx context.Context, name string, src string) (*program.Program, error) {
	p, err := asm.CompileProgram(name, src)
	if err != nil {
		return nil, err
	}
	if err := c.LoadProgram(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Spawn starts a process running the named program and returns its pid. An
// unknown program is reported with ErrEUnknownProgram and leaves the engine
// unchanged.
func (c *Client) Spawn(ctx context.Context, name string) (pid uint32, err error) {
	ctx, span := tracing.Start(ctx, "engine.Spawn", attribute.String("program", name))
	defer func() { tracing.End(span, err) }()

	err = c.withString(ctx, name, func(ctx context.Context, namePtr uint32) error {
		id, err := c.ch.Spawn(ctx, namePtr)
		if err != nil {
			return err
		}
		if id < 0 {
			log.Warn(log.EngineMonitoring, "engine: spawn of unknown program", "name", name)
			return fmt.Errorf("%w: %q", feauxerrors.ErrEUnknownProgram, name)
		}
		pid = uint32(id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int64("pid", int64(pid)))
	log.Debug(log.EngineMonitoring, "engine: spawned", "name", name, "pid", pid)
	return pid, nil
}

// Dispatch registers a periodic job for a real-time strategy.
func (c *Client) Dispatch(ctx context.Context, name string, period, deadline, delay uint32) error {
	return c.withString(ctx, name, func(ctx context.Context, namePtr uint32) error {
		return c.ch.Dispatch(ctx, namePtr, period, deadline, delay)
	})
}

// EntryPoint returns the engine address of the named program's first
// instruction.
func (c *Client) EntryPoint(ctx context.Context, name string) (entry uint32, err error) {
	err = c.withString(ctx, name, func(ctx context.Context, namePtr uint32) error {
		at, err := c.ch.GetProgramEntryPoint(ctx, namePtr)
		if err != nil {
			return err
		}
		if at < 0 {
			return fmt.Errorf("%w: %q", feauxerrors.ErrEUnknownProgram, name)
		}
		entry = uint32(at)
		return nil
	})
	return entry, err
}

func (c *Client) Pause(ctx context.Context) error {
	return c.ch.Pause(ctx)
}

func (c *Client) Unpause(ctx context.Context) error {
	return c.ch.Unpause(ctx)
}

func (c *Client) SetClockDelay(ctx context.Context, ms uint32) error {
	return c.ch.SetClockDelay(ctx, ms)
}

func (c *Client) SetSchedulingStrategy(ctx context.Context, s snapshot.SchedulingStrategy) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %d", feauxerrors.ErrEBadStrategy, uint32(s))
	}
	return c.ch.SetSchedulingStrategy(ctx, s)
}

// SetCoreCount resizes the simulated machine. Running processes are lost;
// loaded programs are kept.
func (c *Client) SetCoreCount(ctx context.Context, n int) error {
	if n < 1 || n > 255 {
		return fmt.Errorf("%w: %d cores", feauxerrors.ErrEBadTopology, n)
	}
	return c.ch.SetCoreCount(ctx, uint8(n))
}

func (c *Client) SetIODeviceCount(ctx context.Context, n int) error {
	if n < 0 || n > 255 {
		return fmt.Errorf("%w: %d io devices", feauxerrors.ErrEBadTopology, n)
	}
	return c.ch.SetIODeviceCount(ctx, uint8(n))
}

func (c *Client) MachineState(ctx context.Context) (machine *snapshot.MachineState, err error) {
	err = c.exclusive(ctx, func(ctx context.Context) error {
		machine, err = c.machineState(ctx)
		return err
	})
	return machine, err
}

func (c *Client) machineState(ctx context.Context) (*snapshot.MachineState, error) {
	ptr, err := c.ch.GetMachineState(ctx)
	if err != nil {
		return nil, err
	}
	mem, err := c.ch.Memory(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.DecodeMachineState(mem, ptr), nil
}

// OSState decodes the scheduler snapshot, querying the machine snapshot for
// the core count.
func (c *Client) OSState(ctx context.Context) (os *snapshot.OSState, err error) {
	err = c.exclusive(ctx, func(ctx context.Context) error {
		machine, err := c.machineState(ctx)
		if err != nil {
			return err
		}
		os, err = c.osState(ctx, machine.NumCores)
		return err
	})
	return os, err
}

func (c *Client) osState(ctx context.Context, numCores uint8) (*snapshot.OSState, error) {
	ptr, err := c.ch.GetOSState(ctx)
	if err != nil {
		return nil, err
	}
	mem, err := c.ch.Memory(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.DecodeOSState(mem, ptr, numCores), nil
}

// Snapshot takes both snapshots for one poll tick between the same two
// engine ticks.
func (c *Client) Snapshot(ctx context.Context, tick uint64) (frame *snapshot.Frame, err error) {
	ctx, span := tracing.Start(ctx, "engine.Snapshot", attribute.Int64("tick", int64(tick)))
	defer func() { tracing.End(span, err) }()

	err = c.exclusive(ctx, func(ctx context.Context) error {
		machine, err := c.machineState(ctx)
		if err != nil {
			return err
		}
		os, err := c.osState(ctx, machine.NumCores)
		if err != nil {
			return err
		}
		frame = &snapshot.Frame{Tick: tick, Machine: machine, OS: os}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}
