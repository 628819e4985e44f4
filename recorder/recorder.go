package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
	"github.com/colorfulnotion/feauxviz/log"
	"github.com/colorfulnotion/feauxviz/snapshot"
	"github.com/colorfulnotion/feauxviz/storage"
)

var framePrefix = []byte("frame/")

func frameKey(tick uint64) []byte {
	key := make([]byte, len(framePrefix)+8)
	copy(key, framePrefix)
	binary.BigEndian.PutUint64(key[len(framePrefix):], tick)
	return key
}

func tickOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(framePrefix):])
}

// Recorder persists snapshot frames by tick for later replay.
type Recorder struct {
	ps          *storage.PersistenceStore
	compression CompressionType
}

func New(ps *storage.PersistenceStore, compression CompressionType) *Recorder {
	return &Recorder{ps: ps, compression: compression}
}

// Record stores f under its tick, replacing any frame already there.
func (r *Recorder) Record(f *snapshot.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	record, err := compress(data, r.compression)
	if err != nil {
		return err
	}
	if err := r.ps.Put(frameKey(f.Tick), record); err != nil {
		return fmt.Errorf("record tick %d: %w", f.Tick, err)
	}
	log.Trace(log.StoreMonitoring, "recorder: frame", "tick", f.Tick, "raw", len(data), "stored", len(record))
	return nil
}

func decodeFrame(tick uint64, record []byte) (*snapshot.Frame, error) {
	data, err := decompress(record)
	if err != nil {
		return nil, fmt.Errorf("%w: tick %d: %v", feauxerrors.ErrSCorrupt, tick, err)
	}
	var f snapshot.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: tick %d: %v", feauxerrors.ErrSCorrupt, tick, err)
	}
	return &f, nil
}

func (r *Recorder) Frame(tick uint64) (*snapshot.Frame, error) {
	record, found, err := r.ps.Get(frameKey(tick))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: tick %d", feauxerrors.ErrSNotFound, tick)
	}
	return decodeFrame(tick, record)
}

// Replay calls fn with every recorded frame whose tick is in [from, to], in
// tick order, stopping at the first error.
func (r *Recorder) Replay(from, to uint64, fn func(*snapshot.Frame) error) error {
	rng := util.BytesPrefix(framePrefix)
	rng.Start = frameKey(from)
	if to < ^uint64(0) {
		rng.Limit = frameKey(to + 1)
	}
	pairs, err := r.ps.GetRange(rng)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("%w: ticks %d-%d", feauxerrors.ErrSNoRecording, from, to)
	}
	for _, kv := range pairs {
		f, err := decodeFrame(tickOf(kv[0]), kv[1])
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Bounds returns the first and last recorded ticks.
func (r *Recorder) Bounds() (first, last uint64, err error) {
	iter := r.ps.DB().NewIterator(util.BytesPrefix(framePrefix), nil)
	defer iter.Release()
	if !iter.First() {
		if err := iter.Error(); err != nil {
			return 0, 0, err
		}
		return 0, 0, feauxerrors.ErrSNoRecording
	}
	first = tickOf(iter.Key())
	iter.Last()
	last = tickOf(iter.Key())
	return first, last, iter.Error()
}

// Clear removes every recorded frame.
func (r *Recorder) Clear() (int, error) {
	return r.ps.DeletePrefix(framePrefix)
}
