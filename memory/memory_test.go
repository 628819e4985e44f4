package memory

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestReadString(t *testing.T) {
	m := New([]byte{0, 0, 72, 105, 0, 9})
	assert.Equal(t, "Hi", m.ReadString(2))
	assert.Equal(t, "", m.ReadString(0))
}

func TestStringRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := r.Intn(40)
		var sb strings.Builder
		for j := 0; j < n; j++ {
			sb.WriteRune(rune(1 + r.Intn(255)))
		}
		s := sb.String()

		m := New(make([]byte, 64))
		m.WriteString(5, s)
		require.Equal(t, s, m.ReadString(5), "case %d", i)
		require.Equal(t, uint32(n), StringLen(s))
	}
}

func TestWriteStringRejectsWideRunes(t *testing.T) {
	m := New(make([]byte, 16))
	assert.PanicsWithError(t, "memory: code point above 255: U+263A in \"a☺\"", func() {
		m.WriteString(0, "a☺")
	})
}

func TestLittleEndian(t *testing.T) {
	m := New(make([]byte, 12))
	m.WriteU32(0, 0x04030201)
	assert.Equal(t, []byte{1, 2, 3, 4}, m.Bytes()[:4])
	assert.Equal(t, uint32(0x04030201), m.ReadU32(0))

	m.WriteI32(4, -1)
	assert.Equal(t, uint32(0xffffffff), m.ReadU32(4))
	assert.Equal(t, int32(-1), m.ReadI32(4))

	m.WriteU8(8, 0xab)
	assert.Equal(t, uint8(0xab), m.ReadU8(8))
}

func TestOutOfBounds(t *testing.T) {
	m := New(make([]byte, 8))
	assert.Panics(t, func() { m.ReadU32(6) })
	assert.Panics(t, func() { m.WriteU8(8, 1) })
	assert.Panics(t, func() { m.ReadU32(0xfffffffe) })
	// unterminated string runs off the end
	unterminated := New([]byte{65, 66})
	assert.Panics(t, func() { unterminated.ReadString(0) })
	assert.NotPanics(t, func() { m.ReadU32(4) })
}

func TestArenaAllocFree(t *testing.T) {
	a := NewArena(64)

	p1, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(NullSize), p1)

	p2, err := a.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(16), p2)
	assert.Equal(t, 2, a.Allocations())
	assert.Equal(t, uint32(24), a.InUse())

	_, err = a.Alloc(64)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, a.Free(p1))
	assert.ErrorIs(t, a.Free(p1), ErrInvalidFree)
	require.NoError(t, a.Free(p2))
	assert.Equal(t, 0, a.Allocations())
	assert.Equal(t, uint32(0), a.InUse())

	// freed spans coalesce back into one block
	big, err := a.Alloc(56)
	require.NoError(t, err)
	assert.Equal(t, uint32(NullSize), big)
}

func TestArenaZeroesReusedBlocks(t *testing.T) {
	a := NewArena(32)
	p, err := a.Alloc(8)
	require.NoError(t, err)
	a.WriteU32(p, 0xdeadbeef)
	require.NoError(t, a.Free(p))

	q, err := a.Alloc(8)
	require.NoError(t, err)
	assert.Equal(t, p, q)
	assert.Equal(t, uint32(0), a.ReadU32(q))
}

func TestArenaRejectsUnalignableSizes(t *testing.T) {
	a := NewArena(64)
	for _, n := range []uint32{math.MaxUint32, math.MaxUint32 - 2, math.MaxUint32 - 6} {
		p, err := a.Alloc(n)
		assert.ErrorIs(t, err, ErrOutOfMemory, "size %d", n)
		assert.Zero(t, p)
	}
	assert.Equal(t, 0, a.Allocations())
	assert.Equal(t, uint32(0), a.InUse())

	p, err := a.Alloc(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(NullSize), p)
}
