package container

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
)

// tileIndexEntry is one 12-byte record in a block's tile index: absolute
// file offset of the tile payload and its length (0 = missing).
type tileIndexEntry struct {
	Offset uint64
	Length uint32
}

const tileIndexEntrySize = 12

// serializeTileIndex Brotli-compresses a block's tile index.
func serializeTileIndex(entries []tileIndexEntry) (blob.Blob, error) {
	var raw bytes.Buffer
	rec := make([]byte, tileIndexEntrySize)
	for _, e := range entries {
		binary.LittleEndian.PutUint64(rec[0:8], e.Offset)
		binary.LittleEndian.PutUint32(rec[8:12], e.Length)
		raw.Write(rec)
	}
	return compress.Encode(raw.Bytes(), blob.CompressionBrotli)
}

// deserializeTileIndex decompresses and parses a block's tile index.
func deserializeTileIndex(data []byte) ([]tileIndexEntry, error) {
	raw, err := compress.Decode(data, blob.CompressionBrotli)
	if err != nil {
		return nil, fmt.Errorf("container: decoding tile index: %w", err)
	}
	buf := raw.Bytes()
	if len(buf)%tileIndexEntrySize != 0 {
		return nil, fmt.Errorf("container: tile index size %d not a multiple of %d", len(buf), tileIndexEntrySize)
	}
	n := len(buf) / tileIndexEntrySize
	out := make([]tileIndexEntry, n)
	for i := 0; i < n; i++ {
		rec := buf[i*tileIndexEntrySize : (i+1)*tileIndexEntrySize]
		out[i] = tileIndexEntry{
			Offset: binary.LittleEndian.Uint64(rec[0:8]),
			Length: binary.LittleEndian.Uint32(rec[8:12]),
		}
	}
	return out, nil
}
