// Package memory gives typed little-endian access to a raw linear byte region
// shared with the engine.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfBounds is the panic value (wrapped) for accesses outside the region.
// The region's size is controlled by the engine, so an out-of-range access is
// a programming error rather than a recoverable condition.
var ErrOutOfBounds = errors.New("memory: access out of bounds")

// ErrNotLatin1 is the panic value (wrapped) when WriteString meets a code point
// that does not fit in a single byte.
var ErrNotLatin1 = errors.New("memory: code point above 255")

// Memory wraps a byte region it does not own. It never resizes or frees it.
type Memory struct {
	buf []byte
}

func New(buf []byte) *Memory {
	return &Memory{buf: buf}
}

// Bytes returns the underlying region without copying.
func (m *Memory) Bytes() []byte {
	return m.buf
}

func (m *Memory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *Memory) check(ptr uint32, n uint32) {
	if uint64(ptr)+uint64(n) > uint64(len(m.buf)) {
		panic(fmt.Errorf("%w: [0x%x, +%d) in region of %d bytes", ErrOutOfBounds, ptr, n, len(m.buf)))
	}
}

func (m *Memory) ReadU8(ptr uint32) uint8 {
	m.check(ptr, 1)
	return m.buf[ptr]
}

func (m *Memory) WriteU8(ptr uint32, v uint8) {
	m.check(ptr, 1)
	m.buf[ptr] = v
}

func (m *Memory) ReadU32(ptr uint32) uint32 {
	m.check(ptr, 4)
	return binary.LittleEndian.Uint32(m.buf[ptr:])
}

func (m *Memory) WriteU32(ptr uint32, v uint32) {
	m.check(ptr, 4)
	binary.LittleEndian.PutUint32(m.buf[ptr:], v)
}

func (m *Memory) ReadI32(ptr uint32) int32 {
	return int32(m.ReadU32(ptr))
}

func (m *Memory) WriteI32(ptr uint32, v int32) {
	m.WriteU32(ptr, uint32(v))
}

// ReadBytes copies n bytes starting at ptr.
func (m *Memory) ReadBytes(ptr uint32, n uint32) []byte {
	m.check(ptr, n)
	out := make([]byte, n)
	copy(out, m.buf[ptr:ptr+n])
	return out
}

func (m *Memory) WriteBytes(ptr uint32, data []byte) {
	m.check(ptr, uint32(len(data)))
	copy(m.buf[ptr:], data)
}

// Zero clears n bytes starting at ptr.
func (m *Memory) Zero(ptr uint32, n uint32) {
	m.check(ptr, n)
	clear(m.buf[ptr : ptr+n])
}

// ReadString scans from ptr to the first zero byte. Every byte is taken as one
// code point, so the result is Latin-1 decoded rather than UTF-8.
func (m *Memory) ReadString(ptr uint32) string {
	var sb strings.Builder
	for p := ptr; ; p++ {
		b := m.ReadU8(p)
		if b == 0 {
			break
		}
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

// WriteString stores each code point of s as a single byte. No terminator is
// written; the destination must already reserve exactly StringLen(s) bytes
// plus whatever terminator space the caller needs.
func (m *Memory) WriteString(ptr uint32, s string) {
	n := StringLen(s)
	m.check(ptr, n)
	i := ptr
	for _, r := range s {
		if r > 0xff {
			panic(fmt.Errorf("%w: %U in %q", ErrNotLatin1, r, s))
		}
		m.buf[i] = byte(r)
		i++
	}
}

// CheckLatin1 returns an ErrNotLatin1 error if WriteString would reject s.
func CheckLatin1(s string) error {
	for _, r := range s {
		if r > 0xff {
			return fmt.Errorf("%w: %U in %q", ErrNotLatin1, r, s)
		}
	}
	return nil
}

// StringLen is the number of bytes WriteString needs for s.
func StringLen(s string) uint32 {
	return uint32(len([]rune(s)))
}
