package snapshot

import (
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/memory"
	"github.com/colorfulnotion/feauxviz/program"
)

// readMany decodes count consecutive records of the given size starting at
// ptr. A null pointer or zero count yields an empty slice.
func readMany[T any](mem *memory.Memory, ptr uint32, count uint32, size uint32, readOne func(*memory.Memory, uint32) T) []T {
	if ptr == 0 || count == 0 {
		return []T{}
	}
	out := make([]T, count)
	for i := range out {
		out[i] = readOne(mem, ptr+uint32(i)*size)
	}
	return out
}

func ReadRegisters(mem *memory.Memory, ptr uint32) Registers {
	var r Registers
	r.RIP = mem.ReadU32(ptr + regRIP)
	for i := range r.GP {
		r.GP[i] = mem.ReadU32(ptr + regGPStart + uint32(i)*4)
	}
	return r
}

func ReadCPUState(mem *memory.Memory, ptr uint32) CPUState {
	return CPUState{
		Available: mem.ReadU8(ptr+cpuAvailable) != 0,
		Registers: ReadRegisters(mem, ptr+cpuRegisters),
	}
}

func ReadCPUStates(mem *memory.Memory, ptr uint32, count uint32) []CPUState {
	return readMany(mem, ptr, count, CPUStateSize, ReadCPUState)
}

func ReadDeviceState(mem *memory.Memory, ptr uint32) DeviceState {
	return DeviceState{
		OwnerPID:      mem.ReadU32(ptr + devOwner),
		TotalDuration: mem.ReadI32(ptr + devDuration),
		Progress:      mem.ReadI32(ptr + devProgress),
	}
}

func ReadDeviceStates(mem *memory.Memory, ptr uint32, count uint32) []DeviceState {
	return readMany(mem, ptr, count, DeviceStateSize, ReadDeviceState)
}

func ReadIORequest(mem *memory.Memory, ptr uint32) IORequest {
	return IORequest{
		PID:      mem.ReadU32(ptr + reqPID),
		Duration: mem.ReadI32(ptr + reqDuration),
	}
}

func ReadIORequests(mem *memory.Memory, ptr uint32, count uint32) []IORequest {
	return readMany(mem, ptr, count, IORequestSize, ReadIORequest)
}

func ReadInterrupt(mem *memory.Memory, ptr uint32) Interrupt {
	return Interrupt{
		Type: InterruptType(mem.ReadU32(ptr + intType)),
		PID:  mem.ReadU32(ptr + intPID),
	}
}

func ReadInterrupts(mem *memory.Memory, ptr uint32, count uint32) []Interrupt {
	return readMany(mem, ptr, count, InterruptSize, ReadInterrupt)
}

// ReadProcess decodes one process record, following its name pointer.
func ReadProcess(mem *memory.Memory, ptr uint32) Process {
	p := Process{
		ID:                    mem.ReadU32(ptr + procID),
		ArrivalTime:           mem.ReadI32(ptr + procArrival),
		DoneTime:              mem.ReadI32(ptr + procDone),
		RequiredProcessorTime: mem.ReadI32(ptr + procRequired),
		ElapsedProcessorTime:  mem.ReadI32(ptr + procElapsed),
		MLFLevel:              mem.ReadI32(ptr + procMLFLevel),
		ElapsedTimeOnLevel:    mem.ReadI32(ptr + procTimeOnLevel),
		State:                 ProcessState(mem.ReadU32(ptr + procState)),
		Registers:             ReadRegisters(mem, ptr+procRegisters),
	}
	if namePtr := mem.ReadU32(ptr + procNamePtr); namePtr != 0 {
		p.Name = mem.ReadString(namePtr)
	}
	return p
}

func ReadProcesses(mem *memory.Memory, ptr uint32, count uint32) []Process {
	return readMany(mem, ptr, count, ProcessSize, ReadProcess)
}

func readStepAction(mem *memory.Memory, ptr uint32) StepAction {
	return StepAction(mem.ReadU32(ptr))
}

func readSyscall(mem *memory.Memory, ptr uint32) Syscall {
	return Syscall(mem.ReadU32(ptr))
}

// readRunning decodes a per-core running slot; idle cores decode as nil.
func readRunning(mem *memory.Memory, ptr uint32) *Process {
	if mem.ReadU32(ptr+procID) == IdleProcessID {
		return nil
	}
	p := ReadProcess(mem, ptr)
	return &p
}

// DecodeMachineState decodes the machine snapshot whose header is at ptr.
func DecodeMachineState(mem *memory.Memory, ptr uint32) *MachineState {
	s := &MachineState{
		NumCores:     mem.ReadU8(ptr + machineNumCores),
		NumIODevices: mem.ReadU8(ptr + machineNumIO),
		ClockDelay:   mem.ReadU32(ptr + machineClockDelay),
	}
	s.Cores = ReadCPUStates(mem, mem.ReadU32(ptr+machineCoresPtr), uint32(s.NumCores))
	s.IODevices = ReadDeviceStates(mem, mem.ReadU32(ptr+machineIOPtr), uint32(s.NumIODevices))
	log.Trace(log.SnapshotMonitoring, "snapshot: machine", "ptr", ptr, "cores", s.NumCores, "io", s.NumIODevices)
	return s
}

// DecodeOSState decodes the scheduler snapshot whose header is at ptr.
// numCores sizes the per-core arrays and comes from the machine snapshot.
func DecodeOSState(mem *memory.Memory, ptr uint32, numCores uint8) *OSState {
	cores := uint32(numCores)
	s := &OSState{
		Processes:         ReadProcesses(mem, mem.ReadU32(ptr+osProcessPtr), mem.ReadU32(ptr+osProcessCount)),
		PendingInterrupts: ReadInterrupts(mem, mem.ReadU32(ptr+osInterruptPtr), mem.ReadU32(ptr+osInterruptCount)),
		ReadyList:         ReadProcesses(mem, mem.ReadU32(ptr+osReadyPtr), mem.ReadU32(ptr+osReadyCount)),
		ReentryList:       ReadProcesses(mem, mem.ReadU32(ptr+osReentryPtr), mem.ReadU32(ptr+osReentryCount)),
		StepActions:       readMany(mem, mem.ReadU32(ptr+osStepActionPtr), cores, 4, readStepAction),
		Time:              mem.ReadI32(ptr + osTime),
		Paused:            mem.ReadU8(ptr+osPaused) != 0,
		IORequests:        ReadIORequests(mem, mem.ReadU32(ptr+osRequestPtr), mem.ReadU32(ptr+osRequestCount)),
		Syscalls:          readMany(mem, mem.ReadU32(ptr+osSyscallPtr), cores, 4, readSyscall),
		Running:           readMany(mem, mem.ReadU32(ptr+osRunningPtr), cores, ProcessSize, readRunning),
	}
	for level := uint32(0); level < MLFLevels; level++ {
		count := mem.ReadU32(ptr + osMLFCount + 4*level)
		s.MLFReadyLists[level] = ReadProcesses(mem, mem.ReadU32(ptr+osMLFPtr+4*level), count)
	}
	log.Trace(log.SnapshotMonitoring, "snapshot: os", "ptr", ptr, "time", s.Time, "processes", len(s.Processes))
	return s
}

// Register returns the value of reg saved for the process.
func (p *Process) Register(reg program.Register) uint32 {
	return p.Registers.Get(reg)
}
