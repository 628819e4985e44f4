package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/memory"
	"github.com/colorfulnotion/feauxviz/program"
	"github.com/colorfulnotion/feauxviz/snapshot"
)

const (
	DefaultCores      = 2
	DefaultIODevices  = 1
	DefaultClockDelay = 500
	DefaultArenaSize  = 1 << 20
)

type allocKind int

const (
	allocInstructions allocKind = iota + 1
	allocString
)

type loadedProgram struct {
	name  string
	entry uint32
	count uint32
}

// Job is a periodic real-time job registered with Dispatch.
type Job struct {
	Program  string
	Period   uint32
	Deadline uint32
	Delay    uint32
}

// MockChannel is an in-process Channel backed by a memory.Arena. It keeps
// programs, processes and machine settings and exports snapshots in the
// engine's layout, but never schedules: processes stay where Spawn put them.
type MockChannel struct {
	mu sync.Mutex

	arena   *memory.Arena
	allocs  map[uint32]allocKind
	machEnc *snapshot.Encoder
	osEnc   *snapshot.Encoder

	programs map[string]loadedProgram
	nextPID  uint32
	procs    []snapshot.Process
	ready    []snapshot.Process
	mlf      [snapshot.MLFLevels][]snapshot.Process
	jobs     []Job

	strategy   snapshot.SchedulingStrategy
	numCores   uint8
	numIO      uint8
	clockDelay uint32
	paused     bool
	time       int32
}

func NewMockChannel(arenaSize uint32) *MockChannel {
	arena := memory.NewArena(arenaSize)
	m := &MockChannel{
		arena:      arena,
		allocs:     make(map[uint32]allocKind),
		machEnc:    snapshot.NewEncoder(arena.Memory, arena),
		osEnc:      snapshot.NewEncoder(arena.Memory, arena),
		programs:   make(map[string]loadedProgram),
		numCores:   DefaultCores,
		numIO:      DefaultIODevices,
		clockDelay: DefaultClockDelay,
		strategy:   snapshot.FIFO,
	}
	m.resetOS()
	return m
}

// resetOS drops every process and job. Loaded programs survive.
func (m *MockChannel) resetOS() {
	m.procs = nil
	m.ready = nil
	m.jobs = nil
	for i := range m.mlf {
		m.mlf[i] = nil
	}
	m.time = 0
}

func (m *MockChannel) Memory(ctx context.Context) (*memory.Memory, error) {
	return m.arena.Memory, nil
}

func (m *MockChannel) alloc(n uint32, kind allocKind) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ptr, err := m.arena.Alloc(n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", feauxerrors.ErrEAllocFailed, err)
	}
	m.allocs[ptr] = kind
	return ptr, nil
}

func (m *MockChannel) free(ptr uint32, kind allocKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allocs[ptr] != kind {
		return fmt.Errorf("%w: %#x", feauxerrors.ErrEDoubleFree, ptr)
	}
	delete(m.allocs, ptr)
	return m.arena.Free(ptr)
}

func (m *MockChannel) AllocInstructionList(ctx context.Context, count uint32) (uint32, error) {
	return m.alloc(count*program.InstructionSize, allocInstructions)
}

func (m *MockChannel) AllocString(ctx context.Context, size uint32) (uint32, error) {
	// the arena zeroes blocks, so byte size is already NUL
	return m.alloc(size+1, allocString)
}

func (m *MockChannel) FreeInstructionList(ctx context.Context, ptr uint32) error {
	return m.free(ptr, allocInstructions)
}

func (m *MockChannel) FreeString(ctx context.Context, ptr uint32) error {
	return m.free(ptr, allocString)
}

// Outstanding returns the number of instruction lists and strings handed out
// and not yet freed.
func (m *MockChannel) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.allocs)
}

// LoadProgram copies the instruction list into engine-owned memory, replacing
// any program of the same name.
func (m *MockChannel) LoadProgram(ctx context.Context, instrPtr uint32, count uint32, namePtr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := m.arena.ReadString(namePtr)
	code := m.arena.ReadBytes(instrPtr, count*program.InstructionSize)

	entry, err := m.arena.Alloc(uint32(len(code)))
	if err != nil {
		return fmt.Errorf("%w: %v", feauxerrors.ErrEAllocFailed, err)
	}
	m.arena.WriteBytes(entry, code)
	if old, ok := m.programs[name]; ok {
		if err := m.arena.Free(old.entry); err != nil {
			return err
		}
	}
	m.programs[name] = loadedProgram{name: name, entry: entry, count: count}
	log.Trace(log.EngineMonitoring, "mock: load", "name", name, "count", count, "entry", entry)
	return nil
}

// Program returns the instructions stored under name.
func (m *MockChannel) Program(name string) ([]program.Instruction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.programs[name]
	if !ok {
		return nil, false
	}
	return program.ReadInstructions(m.arena.Memory, p.entry, p.count), true
}

func (m *MockChannel) Spawn(ctx context.Context, namePtr uint32) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.programs[m.arena.ReadString(namePtr)]
	if !ok {
		return -1, nil
	}

	m.nextPID++
	proc := snapshot.Process{
		ID:                    m.nextPID,
		Name:                  p.name,
		ArrivalTime:           m.time,
		DoneTime:              -1,
		RequiredProcessorTime: int32(p.count) - 1,
		State:                 snapshot.Ready,
	}
	proc.Registers.RIP = p.entry
	m.procs = append(m.procs, proc)
	if m.strategy == snapshot.MLF {
		m.mlf[0] = append(m.mlf[0], proc)
	} else {
		m.ready = append(m.ready, proc)
	}
	return int32(proc.ID), nil
}

func (m *MockChannel) Dispatch(ctx context.Context, namePtr uint32, period, deadline, delay uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := m.arena.ReadString(namePtr)
	if _, ok := m.programs[name]; !ok {
		log.Trace(log.EngineMonitoring, "mock: dispatch of unknown program ignored", "name", name)
		return nil
	}
	m.jobs = append(m.jobs, Job{Program: name, Period: period, Deadline: deadline, Delay: uint32(m.time) + delay})
	return nil
}

// Jobs returns the registered real-time jobs.
func (m *MockChannel) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Job(nil), m.jobs...)
}

func (m *MockChannel) GetProgramEntryPoint(ctx context.Context, namePtr uint32) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.programs[m.arena.ReadString(namePtr)]
	if !ok {
		return -1, nil
	}
	return int32(p.entry), nil
}

// GetMachineState exports a machine with every core available and every
// device free. The previous export is released first.
func (m *MockChannel) GetMachineState(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.machEnc.Release(); err != nil {
		return 0, err
	}
	s := &snapshot.MachineState{
		NumCores:     m.numCores,
		NumIODevices: m.numIO,
		ClockDelay:   m.clockDelay,
		Cores:        make([]snapshot.CPUState, m.numCores),
		IODevices:    make([]snapshot.DeviceState, m.numIO),
	}
	for i := range s.Cores {
		s.Cores[i].Available = true
	}
	return m.machEnc.Machine(s)
}

func (m *MockChannel) GetOSState(ctx context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.osEnc.Release(); err != nil {
		return 0, err
	}
	s := &snapshot.OSState{
		Processes:   m.procs,
		ReadyList:   m.ready,
		ReentryList: nil,
		StepActions: make([]snapshot.StepAction, m.numCores),
		Time:        m.time,
		Paused:      m.paused,
		Syscalls:    make([]snapshot.Syscall, m.numCores),
		Running:     make([]*snapshot.Process, m.numCores),
	}
	s.MLFReadyLists = m.mlf
	return m.osEnc.OS(s)
}

func (m *MockChannel) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	return nil
}

func (m *MockChannel) Unpause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	return nil
}

func (m *MockChannel) SetClockDelay(ctx context.Context, ms uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clockDelay = ms
	return nil
}

func (m *MockChannel) SetSchedulingStrategy(ctx context.Context, s snapshot.SchedulingStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategy = s
	m.resetOS()
	return nil
}

func (m *MockChannel) SetCoreCount(ctx context.Context, n uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numCores = n
	m.resetOS()
	return nil
}

func (m *MockChannel) SetIODeviceCount(ctx context.Context, n uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numIO = n
	m.resetOS()
	return nil
}

// Advance moves simulated time forward unless paused.
func (m *MockChannel) Advance(ticks int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		m.time += ticks
	}
}

var _ Channel = (*MockChannel)(nil)
