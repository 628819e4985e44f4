package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProgramStore(t *testing.T) (*ProgramStore, *PersistenceStore, *Library) {
	t.Helper()
	ps, err := NewMemoryPersistenceStore()
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	lib, err := NewLibrary(8)
	require.NoError(t, err)
	return NewProgramStore(ps, lib), ps, lib
}

func TestProgramStoreSaveGet(t *testing.T) {
	s, _, _ := newTestProgramStore(t)

	rec, err := s.Save("worker", "work 2\nio 1")
	require.NoError(t, err)
	assert.Len(t, rec.Program.Instructions, 4)
	assert.Equal(t, SourceDigest("work 2\nio 1"), rec.Digest)

	got, err := s.Get("worker")
	require.NoError(t, err)
	assert.Equal(t, rec.Program, got.Program)
	assert.Equal(t, rec.Source, got.Source)
	assert.Equal(t, "worker", got.Program.Name)

	_, err = s.Get("nobody")
	assert.ErrorIs(t, err, feauxerrors.ErrSNotFound)
}

func TestProgramStoreRejectsBadSource(t *testing.T) {
	s, _, _ := newTestProgramStore(t)

	_, err := s.Save("bad", "xyz")
	assert.ErrorIs(t, err, feauxerrors.ErrAUnknownMnemonic)
	_, err = s.Get("bad")
	assert.ErrorIs(t, err, feauxerrors.ErrSNotFound)

	_, err = s.Save("", "exit")
	assert.ErrorIs(t, err, feauxerrors.ErrSEmptyName)
}

func TestProgramStoreListDelete(t *testing.T) {
	s, _, _ := newTestProgramStore(t)
	for _, name := range []string{"b", "a", "c"} {
		_, err := s.Save(name, "work 1")
		require.NoError(t, err)
	}

	recs, err := s.List()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "a", recs[0].Name)
	assert.Equal(t, "c", recs[2].Name)

	require.NoError(t, s.Delete("b"))
	assert.ErrorIs(t, s.Delete("b"), feauxerrors.ErrSNotFound)
	recs, err = s.List()
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestProgramStoreDetectsCorruption(t *testing.T) {
	s, ps, _ := newTestProgramStore(t)
	require.NoError(t, ps.Put(programKey("junk"), []byte("{")))
	_, err := s.Get("junk")
	assert.ErrorIs(t, err, feauxerrors.ErrSCorrupt)

	rec, err := s.Save("edited", "work 1")
	require.NoError(t, err)
	data, _, err := ps.Get(programKey("edited"))
	require.NoError(t, err)
	tampered := []byte(string(data[:len(data)-1]) + `,"source":"work 2"}`)
	require.NoError(t, ps.Put(programKey("edited"), tampered))
	_, err = s.Get("edited")
	assert.ErrorIs(t, err, feauxerrors.ErrSCorrupt, "digest %s", rec.Digest)
}

func TestLibraryCachesByDigest(t *testing.T) {
	s, _, lib := newTestProgramStore(t)

	_, err := s.Save("one", "work 3")
	require.NoError(t, err)
	rec, err := s.Save("two", "work 3")
	require.NoError(t, err)
	assert.Equal(t, "two", rec.Program.Name)

	hits, misses, size := lib.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 1, size)

	// callers cannot corrupt the cached copy
	rec.Program.Instructions[0].Opcode = program.NOP
	again, _, err := lib.Compile("three", "work 3")
	require.NoError(t, err)
	assert.Equal(t, program.WORK, again.Instructions[0].Opcode)
}

func TestImportDir(t *testing.T) {
	s, _, _ := newTestProgramStore(t)
	dir := t.TempDir()
	files := map[string]string{
		"loop.s":      "top:\nwork 1\njl top",
		"io.asm":      "io 4",
		"README.md":   "not a program",
		"worker.FASM": "work 2",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	names, err := s.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"io", "loop", "worker"}, names)

	rec, err := s.Get("loop")
	require.NoError(t, err)
	assert.Equal(t, int32(-program.InstructionSize), rec.Program.Instructions[1].Operand1)
}
