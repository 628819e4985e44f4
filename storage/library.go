package storage

import (
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/colorfulnotion/feauxviz/asm"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/program"
)

// Digest identifies program source text.
type Digest [blake2b.Size256]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:8])
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(d[:])), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	if len(raw) != len(d) {
		return fmt.Errorf("digest: %d bytes, want %d", len(raw), len(d))
	}
	copy(d[:], raw)
	return nil
}

func SourceDigest(src string) Digest {
	return blake2b.Sum256([]byte(src))
}

// Library caches compiled instruction lists by source digest, so identical
// source is assembled once regardless of the name it is loaded under.
type Library struct {
	compiled *lru.Cache[Digest, []program.Instruction]
	hits     atomic.Uint64
	misses   atomic.Uint64
}

func NewLibrary(size int) (*Library, error) {
	cache, err := lru.New[Digest, []program.Instruction](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Library{compiled: cache}, nil
}

// Compile returns src assembled and named name.
func (l *Library) Compile(name string, src string) (*program.Program, Digest, error) {
	digest := SourceDigest(src)
	if instrs, ok := l.compiled.Get(digest); ok {
		l.hits.Add(1)
		return &program.Program{Name: name, Instructions: append([]program.Instruction(nil), instrs...)}, digest, nil
	}
	l.misses.Add(1)

	instrs, err := asm.Compile(src)
	if err != nil {
		return nil, digest, err
	}
	l.compiled.Add(digest, instrs)
	log.Trace(log.StoreMonitoring, "library: compiled", "name", name, "digest", digest, "instructions", len(instrs))
	return &program.Program{Name: name, Instructions: append([]program.Instruction(nil), instrs...)}, digest, nil
}

// Stats returns cache hits, misses and the number of cached programs.
func (l *Library) Stats() (hits, misses uint64, size int) {
	return l.hits.Load(), l.misses.Load(), l.compiled.Len()
}
