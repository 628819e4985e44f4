package program

import "fmt"

// Opcode is the instruction opcode understood by the engine. The numbering is
// part of the wire format and must match the engine build.
type Opcode uint32

// Instructions without operands.
const (
	NOP  Opcode = 0
	WORK Opcode = 1
)

// Instructions with one immediate.
const (
	IO   Opcode = 2
	EXIT Opcode = 3 // no operands
)

// Instructions with an immediate and a register, or two registers.
const (
	LOAD  Opcode = 4 // imm -> reg
	MOVE  Opcode = 5 // reg -> reg
	ALLOC Opcode = 6 // size in rdi, destination register index in rsi
	FREE  Opcode = 7 // register index in rdi
	SW    Opcode = 8
	CMP   Opcode = 9
)

// Conditional jumps. Operand1 is a byte offset relative to the jump itself.
const (
	JL  Opcode = 10
	JLE Opcode = 11
	JE  Opcode = 12
	JGE Opcode = 13
	JG  Opcode = 14
)

// Arithmetic.
const (
	INC Opcode = 15
	ADD Opcode = 16
)

const numOpcodes = 17

// OpcodeNames maps opcode values to their mnemonic
var OpcodeNames = map[Opcode]string{
	NOP:   "nop",
	WORK:  "work",
	IO:    "io",
	EXIT:  "exit",
	LOAD:  "ldi",
	MOVE:  "mov",
	ALLOC: "alloc",
	FREE:  "free",
	SW:    "sw",
	CMP:   "cmp",
	JL:    "jl",
	JLE:   "jle",
	JE:    "je",
	JGE:   "jge",
	JG:    "jg",
	INC:   "inc",
	ADD:   "add",
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", uint32(op))
}

// Valid reports whether op is one of the known opcodes.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// IsJump reports whether op belongs to the conditional jump family.
func (op Opcode) IsJump() bool {
	switch op {
	case JL, JLE, JE, JGE, JG:
		return true
	default:
		return false
	}
}
