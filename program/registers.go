package program

import (
	"fmt"
	"strings"
)

// Register indexes the general purpose register file. rip is not addressable.
type Register int32

const (
	RAX Register = iota
	RCX
	RDX
	RBX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NumRegisters
)

var registerNames = [NumRegisters]string{
	"rax", "rcx", "rdx", "rbx", "rsi", "rdi", "rsp", "rbp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var registerByName = func() map[string]Register {
	m := make(map[string]Register, NumRegisters)
	for i, name := range registerNames {
		m[name] = Register(i)
	}
	return m
}()

func (r Register) String() string {
	if r >= 0 && r < NumRegisters {
		return registerNames[r]
	}
	return fmt.Sprintf("reg(%d)", int32(r))
}

// ParseRegister accepts "rax", "RAX" or "%rax".
func ParseRegister(tok string) (Register, bool) {
	r, ok := registerByName[strings.ToLower(strings.TrimPrefix(tok, "%"))]
	return r, ok
}
