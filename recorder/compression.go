package recorder

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// CompressionType is stored as the first byte of every frame record.
type CompressionType byte

const (
	NoCompression CompressionType = iota
	ZstdCompression
)

var (
	// DefaultCompression is the default compression algorithm
	DefaultCompression = ZstdCompression

	// encoder and decoder for zstd are reusable and thread-safe
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compress(data []byte, ct CompressionType) ([]byte, error) {
	out := []byte{byte(ct)}
	switch ct {
	case NoCompression:
		return append(out, data...), nil
	case ZstdCompression:
		return zstdEncoder.EncodeAll(data, out), nil
	}
	return nil, fmt.Errorf("recorder: unknown compression %d", ct)
}

func decompress(record []byte) ([]byte, error) {
	if len(record) == 0 {
		return nil, fmt.Errorf("recorder: empty record")
	}
	switch ct := CompressionType(record[0]); ct {
	case NoCompression:
		return record[1:], nil
	case ZstdCompression:
		return zstdDecoder.DecodeAll(record[1:], nil)
	default:
		return nil, fmt.Errorf("recorder: unknown compression %d", ct)
	}
}
