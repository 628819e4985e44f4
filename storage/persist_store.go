package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/colorfulnotion/feauxviz/log"
)

// PersistenceStore is the LevelDB keyspace shared by the program store and
// the frame recorder. Keys are namespaced by prefix ("program/", "frame/").
type PersistenceStore struct {
	db   *leveldb.DB
	path string
}

// NewPersistenceStore opens the database directory at path, creating it when
// missing. An empty path keeps everything in memory for the life of the
// process.
func NewPersistenceStore(path string) (*PersistenceStore, error) {
	o := &opt.Options{Compression: opt.NoCompression}
	open := func() (*leveldb.DB, error) { return leveldb.OpenFile(path, o) }
	if path == "" {
		open = func() (*leveldb.DB, error) { return leveldb.Open(leveldbstorage.NewMemStorage(), o) }
	}
	db, err := open()
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	log.Debug(log.StoreMonitoring, "storage: opened", "path", path)
	return &PersistenceStore{db: db, path: path}, nil
}

func NewMemoryPersistenceStore() (*PersistenceStore, error) {
	return NewPersistenceStore("")
}

// Get reports found=false with a nil error for a missing key.
func (ps *PersistenceStore) Get(key []byte) (value []byte, found bool, err error) {
	value, err = ps.db.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("storage: get %q: %w", key, err)
	}
	return value, true, nil
}

func (ps *PersistenceStore) Put(key []byte, value []byte) error {
	return ps.db.Put(key, value, nil)
}

func (ps *PersistenceStore) Delete(key []byte) error {
	return ps.db.Delete(key, nil)
}

// GetWithPrefix returns all key-value pairs with the given prefix, sorted by key.
func (ps *PersistenceStore) GetWithPrefix(prefix []byte) ([][2][]byte, error) {
	return ps.GetRange(util.BytesPrefix(prefix))
}

// GetRange returns the key-value pairs in r, sorted by key.
func (ps *PersistenceStore) GetRange(r *util.Range) ([][2][]byte, error) {
	iter := ps.db.NewIterator(r, nil)
	defer iter.Release()

	var results [][2][]byte
	for iter.Next() {
		keyCopy := append([]byte(nil), iter.Key()...)
		valueCopy := append([]byte(nil), iter.Value()...)
		results = append(results, [2][]byte{keyCopy, valueCopy})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("GetRange %q-%q: %w", r.Start, r.Limit, err)
	}
	return results, nil
}

// PutBatch writes every pair atomically.
func (ps *PersistenceStore) PutBatch(pairs [][2][]byte) error {
	batch := new(leveldb.Batch)
	for _, kv := range pairs {
		batch.Put(kv[0], kv[1])
	}
	return ps.db.Write(batch, nil)
}

// DeletePrefix removes every key with the given prefix and returns how many
// were removed.
func (ps *PersistenceStore) DeletePrefix(prefix []byte) (int, error) {
	iter := ps.db.NewIterator(util.BytesPrefix(prefix), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return batch.Len(), ps.db.Write(batch, nil)
}

func (ps *PersistenceStore) Close() error {
	if err := ps.db.Close(); err != nil {
		return fmt.Errorf("storage: close %q: %w", ps.path, err)
	}
	return nil
}

// DB exposes the handle for iteration the wrapper does not cover.
func (ps *PersistenceStore) DB() *leveldb.DB {
	return ps.db
}
