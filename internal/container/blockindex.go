package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
)

// BlockKey identifies a 256x256-tile block within one zoom level.
type BlockKey struct {
	Level uint8
	Row   uint32 // y / 256
	Col   uint32 // x / 256
}

// BlockRecord is one 29-byte entry in the block index.
type BlockRecord struct {
	Level               uint8
	Row, Col            uint32
	MinRow, MaxRow      uint8
	MinCol, MaxCol      uint8
	Offset              uint64
	TileIndexLength     uint64
}

const blockRecordSize = 29

// serializeBlockIndex writes records sorted by (level asc, row asc, col
// asc) per spec.md §3, then Brotli-compresses the result.
func serializeBlockIndex(records []BlockRecord) (blob.Blob, error) {
	sorted := append([]BlockRecord(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})

	var raw bytes.Buffer
	rec := make([]byte, blockRecordSize)
	for _, r := range sorted {
		rec[0] = r.Level
		binary.LittleEndian.PutUint32(rec[1:5], r.Row)
		binary.LittleEndian.PutUint32(rec[5:9], r.Col)
		rec[9] = r.MinRow
		rec[10] = r.MaxRow
		rec[11] = r.MinCol
		rec[12] = r.MaxCol
		binary.LittleEndian.PutUint64(rec[13:21], r.Offset)
		binary.LittleEndian.PutUint64(rec[21:29], r.TileIndexLength)
		raw.Write(rec)
	}

	return compress.Encode(raw.Bytes(), blob.CompressionBrotli)
}

// deserializeBlockIndex decompresses and parses the block index.
func deserializeBlockIndex(data []byte) ([]BlockRecord, error) {
	raw, err := compress.Decode(data, blob.CompressionBrotli)
	if err != nil {
		return nil, fmt.Errorf("container: decoding block index: %w", err)
	}
	buf := raw.Bytes()
	if len(buf)%blockRecordSize != 0 {
		return nil, fmt.Errorf("container: block index size %d not a multiple of %d", len(buf), blockRecordSize)
	}
	n := len(buf) / blockRecordSize
	out := make([]BlockRecord, n)
	for i := 0; i < n; i++ {
		rec := buf[i*blockRecordSize : (i+1)*blockRecordSize]
		out[i] = BlockRecord{
			Level:           rec[0],
			Row:             binary.LittleEndian.Uint32(rec[1:5]),
			Col:             binary.LittleEndian.Uint32(rec[5:9]),
			MinRow:          rec[9],
			MaxRow:          rec[10],
			MinCol:          rec[11],
			MaxCol:          rec[12],
			Offset:          binary.LittleEndian.Uint64(rec[13:21]),
			TileIndexLength: binary.LittleEndian.Uint64(rec[21:29]),
		}
	}
	return out, nil
}

// Width returns the number of columns covered inside the block.
func (r BlockRecord) Width() int { return int(r.MaxCol) - int(r.MinCol) + 1 }

// Height returns the number of rows covered inside the block.
func (r BlockRecord) Height() int { return int(r.MaxRow) - int(r.MinRow) + 1 }
