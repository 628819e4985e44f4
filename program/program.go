package program

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/feauxviz/memory"
)

const (
	// InstructionSize is the encoded width of one instruction: a 32-bit
	// opcode followed by two 32-bit operands.
	InstructionSize = 12

	// Unset marks an operand the opcode does not use.
	Unset int32 = -1
)

// Instruction is one fixed-width engine instruction.
type Instruction struct {
	Opcode   Opcode `json:"opcode"`
	Operand1 int32  `json:"operand1"`
	Operand2 int32  `json:"operand2"`
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s %d %d", in.Opcode, in.Operand1, in.Operand2)
}

func ReadInstruction(mem *memory.Memory, ptr uint32) Instruction {
	return Instruction{
		Opcode:   Opcode(mem.ReadU32(ptr)),
		Operand1: mem.ReadI32(ptr + 4),
		Operand2: mem.ReadI32(ptr + 8),
	}
}

func WriteInstruction(mem *memory.Memory, ptr uint32, in Instruction) {
	mem.WriteU32(ptr, uint32(in.Opcode))
	mem.WriteI32(ptr+4, in.Operand1)
	mem.WriteI32(ptr+8, in.Operand2)
}

func ReadInstructions(mem *memory.Memory, ptr uint32, count uint32) []Instruction {
	out := make([]Instruction, count)
	for i := range out {
		out[i] = ReadInstruction(mem, ptr+uint32(i)*InstructionSize)
	}
	return out
}

func WriteInstructions(mem *memory.Memory, ptr uint32, list []Instruction) {
	for i, in := range list {
		WriteInstruction(mem, ptr+uint32(i)*InstructionSize, in)
	}
}

// Program is a named, compiled instruction list.
type Program struct {
	Name         string        `json:"name"`
	Instructions []Instruction `json:"instructions"`
}

var errShortProgram = errors.New("program: truncated encoding")

// MarshalBinary encodes the program as
// nameLen u32 | name | count u32 | count * instruction.
func (p *Program) MarshalBinary() ([]byte, error) {
	nameLen := memory.StringLen(p.Name)
	size := 4 + nameLen + 4 + uint32(len(p.Instructions))*InstructionSize
	mem := memory.New(make([]byte, size))
	mem.WriteU32(0, nameLen)
	mem.WriteString(4, p.Name)
	mem.WriteU32(4+nameLen, uint32(len(p.Instructions)))
	WriteInstructions(mem, 8+nameLen, p.Instructions)
	return mem.Bytes(), nil
}

func (p *Program) UnmarshalBinary(data []byte) error {
	mem := memory.New(data)
	if mem.Size() < 4 {
		return errShortProgram
	}
	nameLen := mem.ReadU32(0)
	if uint64(mem.Size()) < 8+uint64(nameLen) {
		return errShortProgram
	}
	name := make([]rune, nameLen)
	for i := range name {
		name[i] = rune(mem.ReadU8(4 + uint32(i)))
	}
	count := mem.ReadU32(4 + nameLen)
	if uint64(mem.Size()) != 8+uint64(nameLen)+uint64(count)*InstructionSize {
		return fmt.Errorf("%w: %d bytes for %d instructions", errShortProgram, mem.Size(), count)
	}
	p.Name = string(name)
	p.Instructions = ReadInstructions(mem, 8+nameLen, count)
	return nil
}
