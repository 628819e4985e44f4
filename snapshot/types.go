package snapshot

import (
	"fmt"

	"github.com/colorfulnotion/feauxviz/program"
)

// Registers is the saved register file: the instruction pointer and the
// sixteen general purpose registers in program.Register order.
type Registers struct {
	RIP uint32                       `json:"rip"`
	GP  [program.NumRegisters]uint32 `json:"gp"`
}

func (r *Registers) Get(reg program.Register) uint32 {
	return r.GP[reg]
}

type CPUState struct {
	Available bool      `json:"available"`
	Registers Registers `json:"registers"`
}

type DeviceState struct {
	OwnerPID      uint32 `json:"owner_pid"`
	TotalDuration int32  `json:"total_duration"`
	Progress      int32  `json:"progress"`
}

// Free reports whether no process owns the device.
func (d DeviceState) Free() bool { return d.OwnerPID == 0 }

type IORequest struct {
	PID      uint32 `json:"pid"`
	Duration int32  `json:"duration"`
}

type InterruptType uint32

const (
	IOCompletion InterruptType = 0
)

func (t InterruptType) String() string {
	if t == IOCompletion {
		return "IO_COMPLETION"
	}
	return fmt.Sprintf("INTERRUPT(%d)", uint32(t))
}

type Interrupt struct {
	Type InterruptType `json:"type"`
	PID  uint32        `json:"pid"`
}

type Process struct {
	ID                    uint32       `json:"id"`
	Name                  string       `json:"name"`
	ArrivalTime           int32        `json:"arrival_time"`
	DoneTime              int32        `json:"done_time"`
	RequiredProcessorTime int32        `json:"required_processor_time"`
	ElapsedProcessorTime  int32        `json:"elapsed_processor_time"`
	MLFLevel              int32        `json:"mlf_level"`
	ElapsedTimeOnLevel    int32        `json:"elapsed_time_on_level"`
	State                 ProcessState `json:"state"`
	Registers             Registers    `json:"registers"`
}

type MachineState struct {
	NumCores     uint8         `json:"num_cores"`
	NumIODevices uint8         `json:"num_io_devices"`
	ClockDelay   uint32        `json:"clock_delay"`
	Cores        []CPUState    `json:"cores"`
	IODevices    []DeviceState `json:"io_devices"`
}

// OSState is the scheduler snapshot. Per-core slices have one entry per core;
// a nil entry in Running is an idle core.
type OSState struct {
	Processes         []Process            `json:"processes"`
	PendingInterrupts []Interrupt          `json:"pending_interrupts"`
	ReadyList         []Process            `json:"ready_list"`
	MLFReadyLists     [MLFLevels][]Process `json:"mlf_ready_lists"`
	ReentryList       []Process            `json:"reentry_list"`
	StepActions       []StepAction         `json:"step_actions"`
	Time              int32                `json:"time"`
	Paused            bool                 `json:"paused"`
	IORequests        []IORequest          `json:"io_requests"`
	Syscalls          []Syscall            `json:"syscalls"`
	Running           []*Process           `json:"running"`
}
