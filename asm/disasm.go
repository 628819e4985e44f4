package asm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/program"
)

// Disassemble renders instrs as assembler source. Jump targets get synthesized
// L<n> labels, runs of WORK fold into one work line, and the alloc/free staging
// sequences fold back into their pseudo-instructions. Operands an opcode does
// not use are dropped.
func Disassemble(instrs []program.Instruction) (string, error) {
	targets, err := jumpTargets(instrs)
	if err != nil {
		return "", err
	}
	labels := make(map[int]string, len(targets))
	for i, t := range targets {
		labels[t] = fmt.Sprintf("L%d", i)
	}

	var sb strings.Builder
	for i := 0; i < len(instrs); {
		if name, ok := labels[i]; ok {
			fmt.Fprintf(&sb, "%s:\n", name)
		}
		text, n, err := renderAt(instrs, i, labels)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "    %s\n", text)
		i += n
	}
	if name, ok := labels[len(instrs)]; ok {
		fmt.Fprintf(&sb, "%s:\n", name)
	}
	return sb.String(), nil
}

func jumpTargets(instrs []program.Instruction) ([]int, error) {
	seen := make(map[int]bool)
	for i, in := range instrs {
		if !in.Opcode.IsJump() {
			continue
		}
		t, ok := jumpTarget(i, in.Operand1, len(instrs))
		if !ok {
			return nil, &Error{Token: fmt.Sprintf("%s %d", in.Opcode, in.Operand1), Err: feauxerrors.ErrAUnknownLabel}
		}
		seen[t] = true
	}
	out := make([]int, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Ints(out)
	return out, nil
}

func jumpTarget(self int, offset int32, n int) (int, bool) {
	if offset%program.InstructionSize != 0 {
		return 0, false
	}
	t := self + int(offset)/program.InstructionSize
	return t, t >= 0 && t <= n
}

func regName(v int32) (string, error) {
	r := program.Register(v)
	if r < 0 || r >= program.NumRegisters {
		return "", &Error{Token: r.String(), Err: feauxerrors.ErrAUnknownRegister}
	}
	return r.String(), nil
}

// renderAt renders the source line starting at instrs[i] and reports how many
// instructions it consumed.
func renderAt(instrs []program.Instruction, i int, labels map[int]string) (string, int, error) {
	in := instrs[i]
	// a label inside a folded run would lose its position
	unlabelled := func(j int) bool {
		_, ok := labels[j]
		return j < len(instrs) && !ok
	}

	switch in.Opcode {
	case program.NOP, program.EXIT:
		return in.Opcode.String(), 1, nil
	case program.WORK:
		n := 1
		for unlabelled(i+n) && instrs[i+n].Opcode == program.WORK {
			n++
		}
		return fmt.Sprintf("work %d", n), n, nil
	case program.IO:
		return fmt.Sprintf("io %d", in.Operand1), 1, nil
	case program.LOAD:
		if text, n, ok := foldStaging(instrs, i, unlabelled); ok {
			return text, n, nil
		}
		reg, err := regName(in.Operand2)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("ldi %d, %s", in.Operand1, reg), 1, nil
	case program.MOVE, program.SW, program.CMP, program.ADD:
		a, err := regName(in.Operand1)
		if err != nil {
			return "", 0, err
		}
		b, err := regName(in.Operand2)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%s %s, %s", in.Opcode, a, b), 1, nil
	case program.INC:
		a, err := regName(in.Operand1)
		if err != nil {
			return "", 0, err
		}
		return "inc " + a, 1, nil
	case program.ALLOC, program.FREE:
		return in.Opcode.String(), 1, nil
	case program.JL, program.JLE, program.JE, program.JGE, program.JG:
		t, _ := jumpTarget(i, in.Operand1, len(instrs))
		return fmt.Sprintf("%s %s", in.Opcode, labels[t]), 1, nil
	}
	return "", 0, &Error{Token: in.Opcode.String(), Err: feauxerrors.ErrAUnknownMnemonic}
}

// foldStaging recognizes "ldi size, rdi; ldi reg, rsi; alloc" and
// "ldi reg, rdi; free".
func foldStaging(instrs []program.Instruction, i int, unlabelled func(int) bool) (string, int, bool) {
	first := instrs[i]
	if first.Operand2 != int32(program.RDI) {
		return "", 0, false
	}
	if unlabelled(i+1) && instrs[i+1].Opcode == program.FREE {
		if reg, err := regName(first.Operand1); err == nil {
			return "free " + reg, 2, true
		}
	}
	if unlabelled(i+2) && unlabelled(i+1) {
		second, third := instrs[i+1], instrs[i+2]
		if second.Opcode == program.LOAD && second.Operand2 == int32(program.RSI) && third.Opcode == program.ALLOC {
			if reg, err := regName(second.Operand1); err == nil {
				return fmt.Sprintf("alloc %d, %s", first.Operand1, reg), 3, true
			}
		}
	}
	return "", 0, false
}
