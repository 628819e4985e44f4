package asm

import (
	"fmt"
	"testing"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ins(op program.Opcode, a, b int32) program.Instruction {
	return program.Instruction{Opcode: op, Operand1: a, Operand2: b}
}

const u = program.Unset

func TestCompileLineCount(t *testing.T) {
	body := "nop\nio 3\nldi 5, rax\nmov rax, rbx\ncmp rax, rbx\ninc rcx\nadd rax, rbx\nsw rax, rbx\n"

	out, err := Compile(body)
	require.NoError(t, err)
	assert.Len(t, out, 9)
	assert.Equal(t, program.EXIT, out[8].Opcode)

	out, err = Compile(body + "exit\n")
	require.NoError(t, err)
	assert.Len(t, out, 9)

	out, err = Compile("")
	require.NoError(t, err)
	assert.Equal(t, []program.Instruction{ins(program.EXIT, u, u)}, out)
}

func TestCompileOperands(t *testing.T) {
	out, err := Compile("nop\nio 3\nldi -5, %R9\nmov rax, rbx\ninc rcx\nexit")
	require.NoError(t, err)
	assert.Equal(t, []program.Instruction{
		ins(program.NOP, u, u),
		ins(program.IO, 3, u),
		ins(program.LOAD, -5, int32(program.R9)),
		ins(program.MOVE, int32(program.RAX), int32(program.RBX)),
		ins(program.INC, int32(program.RCX), u),
		ins(program.EXIT, u, u),
	}, out)
}

func TestWorkExpansion(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100} {
		t.Run(fmt.Sprintf("work_%d", n), func(t *testing.T) {
			out, err := Compile(fmt.Sprintf("work %d\nexit", n))
			require.NoError(t, err)
			require.Len(t, out, n+1)
			for i := 0; i < n; i++ {
				assert.Equal(t, ins(program.WORK, u, u), out[i])
			}
		})
	}
}

const loopSource = `
; count rax up to rbx
    ldi 0, rax
    ldi 3, rbx
loop:
    inc rax
    cmp rax, rbx
    jl loop          # backward
    je done          # forward
    work 2
done:
    exit
`

func TestJumpPatching(t *testing.T) {
	out, err := Compile(loopSource)
	require.NoError(t, err)
	require.Len(t, out, 9)

	jl, je := out[4], out[5]
	assert.Equal(t, program.JL, jl.Opcode)
	assert.Equal(t, int32((2-4)*program.InstructionSize), jl.Operand1)
	assert.Equal(t, program.JE, je.Opcode)
	assert.Equal(t, int32((8-5)*program.InstructionSize), je.Operand1)
	assert.Equal(t, u, je.Operand2)
}

func TestJumpToTrailingLabel(t *testing.T) {
	out, err := Compile("jg end\nwork 1\nexit\nend:")
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, int32(3*program.InstructionSize), out[0].Operand1)
	assert.Equal(t, program.EXIT, out[3].Opcode)

	// every jump target is a real instruction
	for i, in := range out {
		if in.Opcode.IsJump() {
			target := i + int(in.Operand1)/program.InstructionSize
			assert.Less(t, target, len(out))
		}
	}

	// without a trailing label the closing exit is not doubled
	out, err = Compile("jg mid\nmid:\nwork 1\nexit")
	require.NoError(t, err)
	assert.Len(t, out, 3)

	// a label on an empty program still has an instruction to land on
	out, err = Compile("start:")
	require.NoError(t, err)
	assert.Equal(t, []program.Instruction{ins(program.EXIT, u, u)}, out)
}

func TestAllocFreeExpansion(t *testing.T) {
	out, err := Compile("alloc 64, r12\nfree r12\nalloc\nfree")
	require.NoError(t, err)
	assert.Equal(t, []program.Instruction{
		ins(program.LOAD, 64, int32(program.RDI)),
		ins(program.LOAD, int32(program.R12), int32(program.RSI)),
		ins(program.ALLOC, u, u),
		ins(program.LOAD, int32(program.R12), int32(program.RDI)),
		ins(program.FREE, u, u),
		ins(program.ALLOC, u, u),
		ins(program.FREE, u, u),
		ins(program.EXIT, u, u),
	}, out)
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		src   string
		want  error
		token string
		line  int
	}{
		{"nop\nxyz 1", feauxerrors.ErrAUnknownMnemonic, "xyz", 2},
		{"jl nowhere", feauxerrors.ErrAUnknownLabel, "nowhere", 1},
		{"ldi 1, rzz", feauxerrors.ErrAUnknownRegister, "rzz", 1},
		{"work -1", feauxerrors.ErrABadOperand, "-1", 1},
		{"io lots", feauxerrors.ErrABadOperand, "lots", 1},
		{"mov rax", feauxerrors.ErrAOperandCount, "mov", 1},
		{"a:\nnop\na:", feauxerrors.ErrADuplicateLabel, "a", 3},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			out, err := Compile(tc.src)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), tc.token)

			var asmErr *Error
			require.ErrorAs(t, err, &asmErr)
			assert.Equal(t, tc.line, asmErr.Line)
			assert.Equal(t, tc.token, asmErr.Token)
		})
	}
}

func TestDisassembleRoundTrip(t *testing.T) {
	sources := []string{
		loopSource,
		"alloc 64, r12\nwork 3\nfree r12\nexit",
		"jg end\nwork 1\nexit\nend:",
		"top:\nwork 1\nmid:\nwork 2\njle mid\njge top\nalloc\nldi 4, rdi\nfree\nexit",
	}
	for i, src := range sources {
		t.Run(fmt.Sprintf("src_%d", i), func(t *testing.T) {
			want, err := Compile(src)
			require.NoError(t, err)

			text, err := Disassemble(want)
			require.NoError(t, err)

			got, err := Compile(text)
			require.NoError(t, err, text)
			assert.Equal(t, want, got, text)
		})
	}
}

func TestDisassembleFolding(t *testing.T) {
	out, err := Compile(loopSource)
	require.NoError(t, err)
	text, err := Disassemble(out)
	require.NoError(t, err)
	assert.Equal(t, "    ldi 0, rax\n    ldi 3, rbx\nL0:\n    inc rax\n    cmp rax, rbx\n    jl L0\n    je L1\n    work 2\nL1:\n    exit\n", text)
}

func TestDisassembleRejectsBadJump(t *testing.T) {
	_, err := Disassemble([]program.Instruction{ins(program.JL, 5, u), ins(program.EXIT, u, u)})
	assert.ErrorIs(t, err, feauxerrors.ErrAUnknownLabel)

	_, err = Disassemble([]program.Instruction{ins(program.JL, 36, u)})
	assert.ErrorIs(t, err, feauxerrors.ErrAUnknownLabel)

	_, err = Disassemble([]program.Instruction{ins(program.Opcode(42), u, u)})
	assert.ErrorIs(t, err, feauxerrors.ErrAUnknownMnemonic)
}
