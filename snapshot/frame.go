package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/xlab/treeprint"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Frame is the pair of snapshots taken on one poll tick.
type Frame struct {
	Tick    uint64        `json:"tick"`
	Machine *MachineState `json:"machine"`
	OS      *OSState      `json:"os"`
}

func (p *Process) label() string {
	return fmt.Sprintf("pid %d %q %s t=%d/%d", p.ID, p.Name, p.State, p.ElapsedProcessorTime, p.RequiredProcessorTime)
}

func addProcesses(parent treeprint.Tree, name string, list []Process) {
	branch := parent.AddMetaBranch(len(list), name)
	for i := range list {
		branch.AddNode(list[i].label())
	}
}

// Tree renders the frame as an indented tree for terminal output.
func (f *Frame) Tree() string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("tick %d", f.Tick))

	if m := f.Machine; m != nil {
		machine := tree.AddMetaBranch(fmt.Sprintf("delay %dms", m.ClockDelay), "machine")
		cores := machine.AddMetaBranch(m.NumCores, "cores")
		for i, c := range m.Cores {
			status := "busy"
			if c.Available {
				status = "available"
			}
			cores.AddNode(fmt.Sprintf("core %d %s rip=%d", i, status, c.Registers.RIP))
		}
		devs := machine.AddMetaBranch(m.NumIODevices, "io devices")
		for i, d := range m.IODevices {
			if d.Free() {
				devs.AddNode(fmt.Sprintf("device %d free", i))
				continue
			}
			devs.AddNode(fmt.Sprintf("device %d pid %d %d/%d", i, d.OwnerPID, d.Progress, d.TotalDuration))
		}
	}

	if s := f.OS; s != nil {
		sched := tree.AddMetaBranch(fmt.Sprintf("time %d paused=%v", s.Time, s.Paused), "os")
		addProcesses(sched, "processes", s.Processes)
		addProcesses(sched, "ready", s.ReadyList)
		mlf := sched.AddBranch("mlf")
		for level, list := range s.MLFReadyLists {
			addProcesses(mlf, fmt.Sprintf("level %d", level), list)
		}
		addProcesses(sched, "reentry", s.ReentryList)
		running := sched.AddBranch("cores")
		for i, p := range s.Running {
			var action StepAction
			var call Syscall
			if i < len(s.StepActions) {
				action = s.StepActions[i]
			}
			if i < len(s.Syscalls) {
				call = s.Syscalls[i]
			}
			if p == nil {
				running.AddNode(fmt.Sprintf("core %d idle %s", i, action))
				continue
			}
			running.AddNode(fmt.Sprintf("core %d %s %s syscall=%s", i, p.label(), action, call))
		}
		ints := sched.AddMetaBranch(len(s.PendingInterrupts), "interrupts")
		for _, in := range s.PendingInterrupts {
			ints.AddNode(fmt.Sprintf("%s pid %d", in.Type, in.PID))
		}
		reqs := sched.AddMetaBranch(len(s.IORequests), "io requests")
		for _, r := range s.IORequests {
			reqs.AddNode(fmt.Sprintf("pid %d for %d", r.PID, r.Duration))
		}
	}
	return tree.String()
}

// Diff renders the changes from a to b as an ASCII JSON diff. It returns ""
// when the frames are equal apart from their tick.
func Diff(a, b *Frame, coloring bool) (string, error) {
	left, err := json.Marshal(Frame{Machine: a.Machine, OS: a.OS})
	if err != nil {
		return "", err
	}
	right, err := json.Marshal(Frame{Machine: b.Machine, OS: b.OS})
	if err != nil {
		return "", err
	}

	differ := gojsondiff.New()
	delta, err := differ.Compare(left, right)
	if err != nil {
		return "", fmt.Errorf("snapshot: diff: %w", err)
	}
	if !delta.Modified() {
		return "", nil
	}

	var leftObj interface{}
	if err := json.Unmarshal(left, &leftObj); err != nil {
		return "", err
	}
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	return formatter.NewAsciiFormatter(leftObj, cfg).Format(delta)
}
