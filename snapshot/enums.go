package snapshot

import (
	"fmt"
	"strconv"
	"strings"
)

type ProcessState uint32

const (
	Ready ProcessState = iota
	Processing
	Blocked
	Done
	Dead
)

var processStateNames = []string{"READY", "PROCESSING", "BLOCKED", "DONE", "DEAD"}

type StepAction uint32

const (
	Noop StepAction = iota
	HandleInterrupt
	BeginRun
	ContinueRun
	HandleSyscall
	ServiceRequest
)

var stepActionNames = []string{"NOOP", "HANDLE_INTERRUPT", "BEGIN_RUN", "CONTINUE_RUN", "HANDLE_SYSCALL", "SERVICE_REQUEST"}

type Syscall uint32

const (
	SyscallNone Syscall = iota
	SyscallIO
	SyscallExit
	SyscallAlloc
	SyscallFree
)

var syscallNames = []string{"NONE", "IO", "EXIT", "ALLOC", "FREE"}

// SchedulingStrategy selects the engine's scheduling policy.
type SchedulingStrategy uint32

const (
	FIFO SchedulingStrategy = iota
	SJF
	SRT
	MLF
	RTFIFO
	RTEDF
	RTLST
)

var strategyNames = []string{"FIFO", "SJF", "SRT", "MLF", "RT_FIFO", "RT_EDF", "RT_LST"}

func enumString(names []string, v uint32, kind string) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, v)
}

// enumParse reverses enumString, including the LABEL(n) form it gives values
// outside names.
func enumParse(names []string, s string, label, kind string) (uint32, error) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for i, name := range names {
		if name == s {
			return uint32(i), nil
		}
	}
	if n, ok := strings.CutPrefix(s, label+"("); ok {
		if n, ok = strings.CutSuffix(n, ")"); ok {
			v, err := strconv.ParseUint(n, 10, 32)
			if err == nil {
				return uint32(v), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}

func (s ProcessState) String() string { return enumString(processStateNames, uint32(s), "STATE") }
func (a StepAction) String() string   { return enumString(stepActionNames, uint32(a), "ACTION") }
func (s Syscall) String() string      { return enumString(syscallNames, uint32(s), "SYSCALL") }
func (s SchedulingStrategy) String() string {
	return enumString(strategyNames, uint32(s), "STRATEGY")
}

func (s ProcessState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (a StepAction) MarshalText() ([]byte, error)   { return []byte(a.String()), nil }
func (s Syscall) MarshalText() ([]byte, error)      { return []byte(s.String()), nil }
func (s SchedulingStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ProcessState) UnmarshalText(b []byte) error {
	v, err := enumParse(processStateNames, string(b), "STATE", "process state")
	*s = ProcessState(v)
	return err
}

func (a *StepAction) UnmarshalText(b []byte) error {
	v, err := enumParse(stepActionNames, string(b), "ACTION", "step action")
	*a = StepAction(v)
	return err
}

func (s *Syscall) UnmarshalText(b []byte) error {
	v, err := enumParse(syscallNames, string(b), "SYSCALL", "syscall")
	*s = Syscall(v)
	return err
}

func (s *SchedulingStrategy) UnmarshalText(b []byte) error {
	v, err := enumParse(strategyNames, string(b), "STRATEGY", "scheduling strategy")
	*s = SchedulingStrategy(v)
	return err
}

// ParseStrategy accepts names such as "mlf", "RT_EDF" or "rt-edf". Unlike
// UnmarshalText it rejects numbered strategies the engine does not know.
func ParseStrategy(name string) (SchedulingStrategy, error) {
	var s SchedulingStrategy
	if err := s.UnmarshalText([]byte(name)); err != nil {
		return 0, err
	}
	if !s.Valid() {
		return 0, fmt.Errorf("unknown scheduling strategy %q", name)
	}
	return s, nil
}

// Valid reports whether s is a strategy the engine knows.
func (s SchedulingStrategy) Valid() bool { return int(s) < len(strategyNames) }

// RealTime reports whether s schedules periodic jobs by deadline or period.
func (s SchedulingStrategy) RealTime() bool { return s >= RTFIFO && s.Valid() }
