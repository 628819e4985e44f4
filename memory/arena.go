package memory

import (
	"errors"
	"fmt"
	"sort"
)

const (
	// NullSize bytes at the start of an arena are never handed out, so that
	// pointer 0 can stand for null.
	NullSize = 8
	align    = 8
)

var (
	ErrOutOfMemory = errors.New("memory: arena exhausted")
	ErrInvalidFree = errors.New("memory: free of unallocated pointer")
)

type span struct {
	ptr  uint32
	size uint32
}

// Arena is an owned, explicitly sized region with a first-fit allocator.
// It is not safe for concurrent use.
type Arena struct {
	*Memory
	blocks map[uint32]uint32
	free   []span
	inUse  uint32
}

func NewArena(size uint32) *Arena {
	if size < NullSize {
		size = NullSize
	}
	a := &Arena{
		Memory: New(make([]byte, size)),
		blocks: make(map[uint32]uint32),
	}
	if size > NullSize {
		a.free = []span{{ptr: NullSize, size: size - NullSize}}
	}
	return a
}

// roundUp reports false when n cannot be aligned within 32 bits.
func roundUp(n uint32) (uint32, bool) {
	if n == 0 {
		return align, true
	}
	r := (n + align - 1) &^ (align - 1)
	return r, r >= n
}

// Alloc reserves n zeroed bytes and returns their address.
func (a *Arena) Alloc(n uint32) (uint32, error) {
	want, ok := roundUp(n)
	if !ok {
		return 0, fmt.Errorf("%w: %d bytes requested exceeds address space", ErrOutOfMemory, n)
	}
	for i, s := range a.free {
		if s.size < want {
			continue
		}
		ptr := s.ptr
		if s.size == want {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = span{ptr: s.ptr + want, size: s.size - want}
		}
		a.blocks[ptr] = want
		a.inUse += want
		a.Zero(ptr, want)
		return ptr, nil
	}
	return 0, fmt.Errorf("%w: %d bytes requested, %d in use of %d", ErrOutOfMemory, n, a.inUse, a.Size())
}

// Free releases a block returned by Alloc.
func (a *Arena) Free(ptr uint32) error {
	size, ok := a.blocks[ptr]
	if !ok {
		return fmt.Errorf("%w: 0x%x", ErrInvalidFree, ptr)
	}
	delete(a.blocks, ptr)
	a.inUse -= size

	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].ptr > ptr })
	a.free = append(a.free, span{})
	copy(a.free[idx+1:], a.free[idx:])
	a.free[idx] = span{ptr: ptr, size: size}

	// coalesce with neighbours
	if idx+1 < len(a.free) && a.free[idx].ptr+a.free[idx].size == a.free[idx+1].ptr {
		a.free[idx].size += a.free[idx+1].size
		a.free = append(a.free[:idx+1], a.free[idx+2:]...)
	}
	if idx > 0 && a.free[idx-1].ptr+a.free[idx-1].size == a.free[idx].ptr {
		a.free[idx-1].size += a.free[idx].size
		a.free = append(a.free[:idx], a.free[idx+1:]...)
	}
	return nil
}

// InUse reports the number of bytes currently allocated, alignment included.
func (a *Arena) InUse() uint32 {
	return a.inUse
}

// Allocations reports the number of live blocks.
func (a *Arena) Allocations() int {
	return len(a.blocks)
}
