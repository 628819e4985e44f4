package snapshot

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/feauxviz/memory"
)

func WriteRegisters(mem *memory.Memory, ptr uint32, r Registers) {
	mem.WriteU32(ptr+regRIP, r.RIP)
	for i, v := range r.GP {
		mem.WriteU32(ptr+regGPStart+uint32(i)*4, v)
	}
}

func WriteCPUState(mem *memory.Memory, ptr uint32, c CPUState) {
	mem.Zero(ptr, cpuRegisters)
	if c.Available {
		mem.WriteU8(ptr+cpuAvailable, 1)
	}
	WriteRegisters(mem, ptr+cpuRegisters, c.Registers)
}

func WriteDeviceState(mem *memory.Memory, ptr uint32, d DeviceState) {
	mem.WriteU32(ptr+devOwner, d.OwnerPID)
	mem.WriteI32(ptr+devDuration, d.TotalDuration)
	mem.WriteI32(ptr+devProgress, d.Progress)
}

func WriteIORequest(mem *memory.Memory, ptr uint32, r IORequest) {
	mem.WriteU32(ptr+reqPID, r.PID)
	mem.WriteI32(ptr+reqDuration, r.Duration)
}

func WriteInterrupt(mem *memory.Memory, ptr uint32, i Interrupt) {
	mem.WriteU32(ptr+intType, uint32(i.Type))
	mem.WriteU32(ptr+intPID, i.PID)
}

// WriteProcess writes the fixed part of a process record. The name string
// lives elsewhere and is referenced by namePtr.
func WriteProcess(mem *memory.Memory, ptr uint32, p Process, namePtr uint32) {
	mem.WriteU32(ptr+procID, p.ID)
	mem.WriteU32(ptr+procNamePtr, namePtr)
	mem.WriteI32(ptr+procArrival, p.ArrivalTime)
	mem.WriteI32(ptr+procDone, p.DoneTime)
	mem.WriteI32(ptr+procRequired, p.RequiredProcessorTime)
	mem.WriteI32(ptr+procElapsed, p.ElapsedProcessorTime)
	mem.WriteI32(ptr+procMLFLevel, p.MLFLevel)
	mem.WriteI32(ptr+procTimeOnLevel, p.ElapsedTimeOnLevel)
	mem.WriteU32(ptr+procState, uint32(p.State))
	WriteRegisters(mem, ptr+procRegisters, p.Registers)
}

// Allocator hands out zeroed regions of the memory an Encoder writes to.
type Allocator interface {
	Alloc(n uint32) (uint32, error)
	Free(ptr uint32) error
}

// Encoder lays snapshots out in memory the way the engine exports them. Every
// region it allocates is tracked so the previous snapshot can be released
// before the next one is written.
type Encoder struct {
	mem    *memory.Memory
	heap   Allocator
	allocs []uint32
}

func NewEncoder(mem *memory.Memory, heap Allocator) *Encoder {
	return &Encoder{mem: mem, heap: heap}
}

// Release frees every region allocated since the last Release.
func (e *Encoder) Release() error {
	var errs []error
	for _, ptr := range e.allocs {
		if err := e.heap.Free(ptr); err != nil {
			errs = append(errs, err)
		}
	}
	e.allocs = e.allocs[:0]
	return errors.Join(errs...)
}

func (e *Encoder) alloc(n uint32) (uint32, error) {
	ptr, err := e.heap.Alloc(n)
	if err != nil {
		return 0, fmt.Errorf("snapshot: alloc %d bytes: %w", n, err)
	}
	e.allocs = append(e.allocs, ptr)
	return ptr, nil
}

// array allocates count records of size bytes, returning 0 for an empty array.
func (e *Encoder) array(count int, size uint32) (uint32, error) {
	if count == 0 {
		return 0, nil
	}
	return e.alloc(uint32(count) * size)
}

func (e *Encoder) str(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	ptr, err := e.alloc(memory.StringLen(s) + 1)
	if err != nil {
		return 0, err
	}
	e.mem.WriteString(ptr, s)
	return ptr, nil
}

func (e *Encoder) process(ptr uint32, p Process) error {
	namePtr, err := e.str(p.Name)
	if err != nil {
		return err
	}
	WriteProcess(e.mem, ptr, p, namePtr)
	return nil
}

func (e *Encoder) processes(list []Process) (uint32, error) {
	ptr, err := e.array(len(list), ProcessSize)
	if err != nil {
		return 0, err
	}
	for i, p := range list {
		if err := e.process(ptr+uint32(i)*ProcessSize, p); err != nil {
			return 0, err
		}
	}
	return ptr, nil
}

// processListSlot is a counted process list and the header offsets of its
// count and pointer.
type processListSlot struct {
	list          []Process
	count, offset uint32
}

// Machine writes s and returns the address of its header.
func (e *Encoder) Machine(s *MachineState) (uint32, error) {
	hdr, err := e.alloc(MachineHeaderSize)
	if err != nil {
		return 0, err
	}
	cores, err := e.array(len(s.Cores), CPUStateSize)
	if err != nil {
		return 0, err
	}
	for i, c := range s.Cores {
		WriteCPUState(e.mem, cores+uint32(i)*CPUStateSize, c)
	}
	devs, err := e.array(len(s.IODevices), DeviceStateSize)
	if err != nil {
		return 0, err
	}
	for i, d := range s.IODevices {
		WriteDeviceState(e.mem, devs+uint32(i)*DeviceStateSize, d)
	}
	e.mem.WriteU8(hdr+machineNumCores, s.NumCores)
	e.mem.WriteU8(hdr+machineNumIO, s.NumIODevices)
	e.mem.WriteU32(hdr+machineClockDelay, s.ClockDelay)
	e.mem.WriteU32(hdr+machineCoresPtr, cores)
	e.mem.WriteU32(hdr+machineIOPtr, devs)
	return hdr, nil
}

// OS writes s and returns the address of its header. A nil entry in
// s.Running is written as an idle slot.
func (e *Encoder) OS(s *OSState) (uint32, error) {
	hdr, err := e.alloc(OSHeaderSize)
	if err != nil {
		return 0, err
	}
	lists := []processListSlot{
		{s.Processes, osProcessCount, osProcessPtr},
		{s.ReadyList, osReadyCount, osReadyPtr},
		{s.ReentryList, osReentryCount, osReentryPtr},
	}
	for level := uint32(0); level < MLFLevels; level++ {
		lists = append(lists, processListSlot{s.MLFReadyLists[level], osMLFCount + 4*level, osMLFPtr + 4*level})
	}
	for _, l := range lists {
		ptr, err := e.processes(l.list)
		if err != nil {
			return 0, err
		}
		e.mem.WriteU32(hdr+l.count, uint32(len(l.list)))
		e.mem.WriteU32(hdr+l.offset, ptr)
	}

	ints, err := e.array(len(s.PendingInterrupts), InterruptSize)
	if err != nil {
		return 0, err
	}
	for i, in := range s.PendingInterrupts {
		WriteInterrupt(e.mem, ints+uint32(i)*InterruptSize, in)
	}
	reqs, err := e.array(len(s.IORequests), IORequestSize)
	if err != nil {
		return 0, err
	}
	for i, r := range s.IORequests {
		WriteIORequest(e.mem, reqs+uint32(i)*IORequestSize, r)
	}

	actions, err := e.array(len(s.StepActions), 4)
	if err != nil {
		return 0, err
	}
	for i, a := range s.StepActions {
		e.mem.WriteU32(actions+uint32(i)*4, uint32(a))
	}
	calls, err := e.array(len(s.Syscalls), 4)
	if err != nil {
		return 0, err
	}
	for i, c := range s.Syscalls {
		e.mem.WriteU32(calls+uint32(i)*4, uint32(c))
	}
	running, err := e.array(len(s.Running), ProcessSize)
	if err != nil {
		return 0, err
	}
	for i, p := range s.Running {
		slot := running + uint32(i)*ProcessSize
		if p == nil {
			e.mem.WriteU32(slot+procID, IdleProcessID)
			continue
		}
		if err := e.process(slot, *p); err != nil {
			return 0, err
		}
	}

	e.mem.WriteU32(hdr+osInterruptCount, uint32(len(s.PendingInterrupts)))
	e.mem.WriteU32(hdr+osInterruptPtr, ints)
	e.mem.WriteU32(hdr+osRequestCount, uint32(len(s.IORequests)))
	e.mem.WriteU32(hdr+osRequestPtr, reqs)
	e.mem.WriteU32(hdr+osStepActionPtr, actions)
	e.mem.WriteU32(hdr+osSyscallPtr, calls)
	e.mem.WriteU32(hdr+osRunningPtr, running)
	e.mem.WriteI32(hdr+osTime, s.Time)
	if s.Paused {
		e.mem.WriteU8(hdr+osPaused, 1)
	}
	return hdr, nil
}
