package engine

import (
	"context"

	"github.com/colorfulnotion/feauxviz/memory"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

// Channel is the raw call surface of a scheduling engine. Pointers are
// offsets into the engine's linear memory as returned by Memory. Negative
// process ids and entry points mean the named program is unknown.
//
// A Channel is driven from a single goroutine.
type Channel interface {
	// Memory returns a view of the engine's linear memory. The view may be
	// invalidated by any later call, so callers fetch it per operation. On
	// an Exclusive channel it is only valid inside Exclusive.
	Memory(ctx context.Context) (*memory.Memory, error)

	AllocInstructionList(ctx context.Context, count uint32) (uint32, error)
	// AllocString reserves size+1 bytes with the final byte set to NUL.
	AllocString(ctx context.Context, size uint32) (uint32, error)
	FreeInstructionList(ctx context.Context, ptr uint32) error
	FreeString(ctx context.Context, ptr uint32) error

	LoadProgram(ctx context.Context, instrPtr uint32, count uint32, namePtr uint32) error
	Spawn(ctx context.Context, namePtr uint32) (int32, error)
	// Dispatch registers a periodic real-time job. The engine ignores
	// unknown program names.
	Dispatch(ctx context.Context, namePtr uint32, period, deadline, delay uint32) error
	GetProgramEntryPoint(ctx context.Context, namePtr uint32) (int32, error)

	GetMachineState(ctx context.Context) (uint32, error)
	GetOSState(ctx context.Context) (uint32, error)

	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	SetClockDelay(ctx context.Context, ms uint32) error
	SetSchedulingStrategy(ctx context.Context, s snapshot.SchedulingStrategy) error
	SetCoreCount(ctx context.Context, n uint8) error
	SetIODeviceCount(ctx context.Context, n uint8) error
}

// Exclusive is implemented by channels whose engine runs on a goroutine of
// its own. Exclusive runs fn on that goroutine between engine ticks; Channel
// calls and Memory views made with the ctx passed to fn are serviced inline.
type Exclusive interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}
