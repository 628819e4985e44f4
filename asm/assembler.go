package asm

import (
	"strconv"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/program"
)

// MaxWork bounds the repeat count of a single work line.
const MaxWork = 1 << 20

// irInstr is an instruction whose jump target is still symbolic.
type irInstr struct {
	program.Instruction
	ref  int
	line int
}

type compiler struct {
	syms *symbolTable
	ir   []irInstr
}

// mnemonicDef describes one source mnemonic: the operand counts it accepts and
// how it lowers to instructions.
type mnemonicDef struct {
	arity []int
	lower func(c *compiler, l sourceLine) error
}

var mnemonicTable map[string]mnemonicDef

func init() {
	mnemonicTable = map[string]mnemonicDef{
		"nop":   {[]int{0}, lowerBare(program.NOP)},
		"exit":  {[]int{0}, lowerBare(program.EXIT)},
		"work":  {[]int{1}, (*compiler).lowerWork},
		"io":    {[]int{1}, (*compiler).lowerIO},
		"ldi":   {[]int{2}, (*compiler).lowerLoad},
		"mov":   {[]int{2}, lowerRegReg(program.MOVE)},
		"sw":    {[]int{2}, lowerRegReg(program.SW)},
		"cmp":   {[]int{2}, lowerRegReg(program.CMP)},
		"add":   {[]int{2}, lowerRegReg(program.ADD)},
		"inc":   {[]int{1}, (*compiler).lowerInc},
		"alloc": {[]int{0, 2}, (*compiler).lowerAlloc},
		"free":  {[]int{0, 1}, (*compiler).lowerFree},
	}
	for _, op := range []program.Opcode{program.JL, program.JLE, program.JE, program.JGE, program.JG} {
		mnemonicTable[op.String()] = mnemonicDef{[]int{1}, lowerJump(op)}
	}
}

// Compile assembles src into an instruction list ending in EXIT, with every
// jump operand rewritten to a byte offset relative to the jump itself.
func Compile(src string) ([]program.Instruction, error) {
	lines := tokenize(src)
	syms := newSymbolTable()
	if err := syms.scan(lines); err != nil {
		return nil, err
	}

	c := &compiler{syms: syms}
	for _, l := range lines {
		switch l.kind {
		case lineLabel:
			syms.bind(l.label, len(c.ir))
		case lineInstr:
			if err := c.compileLine(l); err != nil {
				log.Debug(log.AsmMonitoring, "asm: compile failed", "line", l.num, "err", err)
				return nil, err
			}
		}
	}
	// a label after the last instruction binds to the closing EXIT, so every
	// jump lands inside the program
	if n := len(c.ir); n == 0 || c.ir[n-1].Opcode != program.EXIT || syms.boundAt(n) {
		c.emit(0, program.EXIT, program.Unset, program.Unset)
	}

	out := c.patch()
	log.Debug(log.AsmMonitoring, "asm: compiled", "lines", len(lines), "labels", len(syms.labels()), "instructions", len(out))
	return out, nil
}

// CompileProgram is Compile with the result named.
func CompileProgram(name string, src string) (*program.Program, error) {
	instrs, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return &program.Program{Name: name, Instructions: instrs}, nil
}

func (c *compiler) compileLine(l sourceLine) error {
	def, ok := mnemonicTable[l.mnemonic]
	if !ok {
		return &Error{Line: l.num, Token: l.mnemonic, Err: feauxerrors.ErrAUnknownMnemonic}
	}
	for _, n := range def.arity {
		if n == len(l.operands) {
			return def.lower(c, l)
		}
	}
	return &Error{Line: l.num, Token: l.mnemonic, Err: feauxerrors.ErrAOperandCount}
}

// patch resolves symbolic jump targets into relative byte offsets.
func (c *compiler) patch() []program.Instruction {
	out := make([]program.Instruction, len(c.ir))
	for i, in := range c.ir {
		out[i] = in.Instruction
		if in.ref == unbound {
			continue
		}
		target := c.syms.target(in.ref)
		out[i].Operand1 = int32((target - i) * program.InstructionSize)
	}
	return out
}

func (c *compiler) emit(line int, op program.Opcode, a, b int32) {
	c.ir = append(c.ir, irInstr{
		Instruction: program.Instruction{Opcode: op, Operand1: a, Operand2: b},
		ref:         unbound,
		line:        line,
	})
}

func parseImm(l sourceLine, tok string) (int32, error) {
	v, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, &Error{Line: l.num, Token: tok, Err: feauxerrors.ErrABadOperand}
	}
	return int32(v), nil
}

func parseReg(l sourceLine, tok string) (int32, error) {
	r, ok := program.ParseRegister(tok)
	if !ok {
		return 0, &Error{Line: l.num, Token: tok, Err: feauxerrors.ErrAUnknownRegister}
	}
	return int32(r), nil
}

func lowerBare(op program.Opcode) func(*compiler, sourceLine) error {
	return func(c *compiler, l sourceLine) error {
		c.emit(l.num, op, program.Unset, program.Unset)
		return nil
	}
}

func lowerRegReg(op program.Opcode) func(*compiler, sourceLine) error {
	return func(c *compiler, l sourceLine) error {
		a, err := parseReg(l, l.operands[0])
		if err != nil {
			return err
		}
		b, err := parseReg(l, l.operands[1])
		if err != nil {
			return err
		}
		c.emit(l.num, op, a, b)
		return nil
	}
}

func lowerJump(op program.Opcode) func(*compiler, sourceLine) error {
	return func(c *compiler, l sourceLine) error {
		label := l.operands[0]
		ref, ok := c.syms.ref(label)
		if !ok {
			return &Error{Line: l.num, Token: label, Err: feauxerrors.ErrAUnknownLabel}
		}
		c.ir = append(c.ir, irInstr{
			Instruction: program.Instruction{Opcode: op, Operand1: int32(ref), Operand2: program.Unset},
			ref:         ref,
			line:        l.num,
		})
		return nil
	}
}

// lowerWork unrolls "work N" into N WORK instructions.
func (c *compiler) lowerWork(l sourceLine) error {
	n, err := parseImm(l, l.operands[0])
	if err != nil {
		return err
	}
	if n < 0 || n > MaxWork {
		return &Error{Line: l.num, Token: l.operands[0], Err: feauxerrors.ErrABadOperand}
	}
	for i := int32(0); i < n; i++ {
		c.emit(l.num, program.WORK, program.Unset, program.Unset)
	}
	return nil
}

func (c *compiler) lowerIO(l sourceLine) error {
	n, err := parseImm(l, l.operands[0])
	if err != nil {
		return err
	}
	c.emit(l.num, program.IO, n, program.Unset)
	return nil
}

func (c *compiler) lowerLoad(l sourceLine) error {
	imm, err := parseImm(l, l.operands[0])
	if err != nil {
		return err
	}
	reg, err := parseReg(l, l.operands[1])
	if err != nil {
		return err
	}
	c.emit(l.num, program.LOAD, imm, reg)
	return nil
}

func (c *compiler) lowerInc(l sourceLine) error {
	reg, err := parseReg(l, l.operands[0])
	if err != nil {
		return err
	}
	c.emit(l.num, program.INC, reg, program.Unset)
	return nil
}

// lowerAlloc stages the size in rdi and the destination register index in rsi.
// A bare alloc assumes both are already staged.
func (c *compiler) lowerAlloc(l sourceLine) error {
	if len(l.operands) == 2 {
		size, err := parseImm(l, l.operands[0])
		if err != nil {
			return err
		}
		reg, err := parseReg(l, l.operands[1])
		if err != nil {
			return err
		}
		c.emit(l.num, program.LOAD, size, int32(program.RDI))
		c.emit(l.num, program.LOAD, reg, int32(program.RSI))
	}
	c.emit(l.num, program.ALLOC, program.Unset, program.Unset)
	return nil
}

// lowerFree stages the register index holding the pointer in rdi.
func (c *compiler) lowerFree(l sourceLine) error {
	if len(l.operands) == 1 {
		reg, err := parseReg(l, l.operands[0])
		if err != nil {
			return err
		}
		c.emit(l.num, program.LOAD, reg, int32(program.RDI))
	}
	c.emit(l.num, program.FREE, program.Unset, program.Unset)
	return nil
}
