package storage

import (
	"path/filepath"
	"testing"
)

func TestPersistenceStore_ReopenFromDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ps, err := NewPersistenceStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ps.Put([]byte("program/spin"), []byte("work 3")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ps.Put([]byte("program/idle"), []byte("nop")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := ps.Delete([]byte("program/idle")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ps.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ps, err = NewPersistenceStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ps.Close()

	got, found, err := ps.Get([]byte("program/spin"))
	if err != nil || !found {
		t.Fatalf("Get spin: found=%v err=%v", found, err)
	}
	if string(got) != "work 3" {
		t.Errorf("Get spin = %q", got)
	}
	if _, found, err := ps.Get([]byte("program/idle")); err != nil || found {
		t.Errorf("Get idle after delete: found=%v err=%v", found, err)
	}
}

func TestPersistenceStore_Prefix(t *testing.T) {
	ps, err := NewMemoryPersistenceStore()
	if err != nil {
		t.Fatalf("Failed to create memory store: %v", err)
	}
	defer ps.Close()

	err = ps.PutBatch([][2][]byte{
		{[]byte("frame/b"), []byte("2")},
		{[]byte("frame/a"), []byte("1")},
		{[]byte("program/a"), []byte("x")},
	})
	if err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	pairs, err := ps.GetWithPrefix([]byte("frame/"))
	if err != nil {
		t.Fatalf("GetWithPrefix failed: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("GetWithPrefix returned %d pairs, want 2", len(pairs))
	}
	if string(pairs[0][0]) != "frame/a" || string(pairs[1][1]) != "2" {
		t.Errorf("unexpected order: %q", pairs)
	}

	n, err := ps.DeletePrefix([]byte("frame/"))
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if n != 2 {
		t.Errorf("DeletePrefix removed %d keys, want 2", n)
	}
	if _, found, _ := ps.Get([]byte("program/a")); !found {
		t.Error("DeletePrefix removed a key outside the prefix")
	}
}
