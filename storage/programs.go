package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/program"
)

const programPrefix = "program/"

// SourceExtensions are the file extensions ImportDir treats as program source.
var SourceExtensions = []string{".s", ".asm", ".fasm"}

// ProgramRecord is a named program as kept in the store.
type ProgramRecord struct {
	Name    string           `json:"name"`
	Source  string           `json:"source"`
	Digest  Digest           `json:"digest"`
	Program *program.Program `json:"program"`
	SavedAt time.Time        `json:"saved_at"`
}

// ProgramStore keeps program source and its compiled form, keyed by name.
type ProgramStore struct {
	ps  *PersistenceStore
	lib *Library
}

func NewProgramStore(ps *PersistenceStore, lib *Library) *ProgramStore {
	return &ProgramStore{ps: ps, lib: lib}
}

func programKey(name string) []byte {
	return []byte(programPrefix + name)
}

// Save compiles src and stores it under name, replacing any earlier version.
// Nothing is stored when compilation fails.
func (s *ProgramStore) Save(name string, src string) (*ProgramRecord, error) {
	if name == "" {
		return nil, feauxerrors.ErrSEmptyName
	}
	p, digest, err := s.lib.Compile(name, src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", name, err)
	}
	rec := &ProgramRecord{Name: name, Source: src, Digest: digest, Program: p, SavedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := s.ps.Put(programKey(name), data); err != nil {
		return nil, err
	}
	log.Debug(log.StoreMonitoring, "store: program saved", "name", name, "digest", digest, "instructions", len(p.Instructions))
	return rec, nil
}

func (s *ProgramStore) Get(name string) (*ProgramRecord, error) {
	data, found, err := s.ps.Get(programKey(name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: program %q", feauxerrors.ErrSNotFound, name)
	}
	return decodeRecord(name, data)
}

func decodeRecord(name string, data []byte) (*ProgramRecord, error) {
	var rec ProgramRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: program %q: %v", feauxerrors.ErrSCorrupt, name, err)
	}
	if rec.Program == nil || SourceDigest(rec.Source) != rec.Digest {
		return nil, fmt.Errorf("%w: program %q: digest mismatch", feauxerrors.ErrSCorrupt, name)
	}
	return &rec, nil
}

// List returns every stored record, sorted by name.
func (s *ProgramStore) List() ([]*ProgramRecord, error) {
	pairs, err := s.ps.GetWithPrefix([]byte(programPrefix))
	if err != nil {
		return nil, err
	}
	out := make([]*ProgramRecord, 0, len(pairs))
	for _, kv := range pairs {
		name := strings.TrimPrefix(string(kv[0]), programPrefix)
		rec, err := decodeRecord(name, kv[1])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *ProgramStore) Delete(name string) error {
	if _, found, err := s.ps.Get(programKey(name)); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: program %q", feauxerrors.ErrSNotFound, name)
	}
	return s.ps.Delete(programKey(name))
}

// ImportDir saves every source file in dir under its base name without
// extension and returns the saved names in order.
func (s *ProgramStore) ImportDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || !isSource(ext) {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return names, err
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if _, err := s.Save(name, string(src)); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func isSource(ext string) bool {
	for _, e := range SourceExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
