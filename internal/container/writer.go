package container

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// WriterOptions configures a new container Writer.
type WriterOptions struct {
	TileFormat      blob.TileFormat
	TileCompression blob.TileCompression
	ZoomMin, ZoomMax uint8
	Bounds          coord.GeoBBox
	TileJSON        blob.TileJSON
}

type openTile struct {
	row, col uint32
	entry    tileIndexEntry
}

// Writer streams tiles directly into a native .versatiles container in one
// pass: tiles must arrive in (level asc, block_row asc, block_col asc) /
// row-major order (spec.md §4.1, §7), so there is no clustering rewrite
// pass the way a PMTiles archive needs — each block's tile_index is
// written immediately after its payloads and never touched again.
type Writer struct {
	out  *os.File
	opts WriterOptions
	pos  uint64

	haveBlock  bool
	blockLevel uint8
	blockRow   uint32
	blockCol   uint32
	minRow, maxRow uint8
	minCol, maxCol uint8
	tiles      []openTile
	dedup      map[uint64]tileIndexEntry // payload hash → first occurrence this block

	haveLast bool
	lastKey  [5]uint64 // level, blockRow, blockCol, innerRow, innerCol

	metaOffset, metaLength uint64

	blockRecords []BlockRecord
	finalized    bool
}

// CreateFile creates a new .versatiles container at path.
func CreateFile(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "container: creating file", err)
	}
	return NewWriter(f, opts)
}

// NewWriter wraps an already-open, seekable, truncated file.
func NewWriter(out *os.File, opts WriterOptions) (*Writer, error) {
	w := &Writer{out: out, opts: opts, dedup: make(map[uint64]tileIndexEntry)}

	if _, err := out.Write(make([]byte, HeaderSize)); err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "container: writing header placeholder", err)
	}
	w.pos = HeaderSize

	metaBytes, err := json.Marshal(opts.TileJSON)
	if err != nil {
		return nil, fmt.Errorf("container: marshalling metadata: %w", err)
	}
	metaBlob, err := compress.Encode(metaBytes, opts.TileCompression)
	if err != nil {
		return nil, fmt.Errorf("container: compressing metadata: %w", err)
	}
	metaOffset := w.pos
	if _, err := out.Write(metaBlob.Bytes()); err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "container: writing metadata", err)
	}
	w.pos += uint64(metaBlob.Len())

	w.metaOffset, w.metaLength = metaOffset, uint64(metaBlob.Len())
	return w, nil
}

// RequiresOrder implements source.Writer: the native container's block
// layout depends entirely on receiving tiles pre-sorted.
func (w *Writer) RequiresOrder() bool { return true }

func tileHash(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// WriteTile implements source.Writer.
func (w *Writer) WriteTile(ctx context.Context, c coord.TileCoord, data blob.Blob) error {
	if w.finalized {
		return xerrors.New(xerrors.Internal, "container: write after finalize")
	}
	blockRow, blockCol := c.Y>>8, c.X>>8
	innerRow, innerCol := uint8(c.Y&0xff), uint8(c.X&0xff)

	key := [5]uint64{uint64(c.Z), uint64(blockRow), uint64(blockCol), uint64(innerRow), uint64(innerCol)}
	if w.haveLast && !keyLess(w.lastKey, key) {
		return xerrors.New(xerrors.OutOfOrder, fmt.Sprintf("container: tile %s arrived out of order", c))
	}
	w.lastKey, w.haveLast = key, true

	if w.haveBlock && (c.Z != w.blockLevel || blockRow != w.blockRow || blockCol != w.blockCol) {
		if err := w.closeBlock(); err != nil {
			return err
		}
	}
	if !w.haveBlock {
		w.beginBlock(c.Z, blockRow, blockCol, innerRow, innerCol)
	}

	if innerRow < w.minRow {
		w.minRow = innerRow
	}
	if innerRow > w.maxRow {
		w.maxRow = innerRow
	}
	if innerCol < w.minCol {
		w.minCol = innerCol
	}
	if innerCol > w.maxCol {
		w.maxCol = innerCol
	}

	raw := data.Bytes()
	if len(raw) == 0 {
		w.tiles = append(w.tiles, openTile{row: uint32(innerRow), col: uint32(innerCol), entry: tileIndexEntry{}})
		return nil
	}

	hash := tileHash(raw)
	if e, ok := w.dedup[hash]; ok && int(e.Length) == len(raw) {
		w.tiles = append(w.tiles, openTile{row: uint32(innerRow), col: uint32(innerCol), entry: e})
		return nil
	}

	entry := tileIndexEntry{Offset: w.pos, Length: uint32(len(raw))}
	if _, err := w.out.Write(raw); err != nil {
		return xerrors.Wrap(xerrors.Io, fmt.Sprintf("container: writing tile %s", c), err)
	}
	w.pos += uint64(len(raw))
	w.dedup[hash] = entry
	w.tiles = append(w.tiles, openTile{row: uint32(innerRow), col: uint32(innerCol), entry: entry})
	return nil
}

func keyLess(a, b [5]uint64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (w *Writer) beginBlock(level uint8, row, col uint32, innerRow, innerCol uint8) {
	w.haveBlock = true
	w.blockLevel, w.blockRow, w.blockCol = level, row, col
	w.minRow, w.maxRow = innerRow, innerRow
	w.minCol, w.maxCol = innerCol, innerCol
	w.tiles = w.tiles[:0]
	for k := range w.dedup {
		delete(w.dedup, k)
	}
}

// closeBlock writes the current block's Brotli-compressed tile_index
// immediately after its payloads and records the block_index entry.
func (w *Writer) closeBlock() error {
	width := int(w.maxCol) - int(w.minCol) + 1
	height := int(w.maxRow) - int(w.minRow) + 1
	entries := make([]tileIndexEntry, width*height)
	for _, t := range w.tiles {
		idx := (int(t.row)-int(w.minRow))*width + (int(t.col) - int(w.minCol))
		entries[idx] = t.entry
	}

	indexBlob, err := serializeTileIndex(entries)
	if err != nil {
		return err
	}
	tileIndexOffset := w.pos
	if _, err := w.out.Write(indexBlob.Bytes()); err != nil {
		return xerrors.Wrap(xerrors.Io, "container: writing block tile index", err)
	}
	w.pos += uint64(indexBlob.Len())

	w.blockRecords = append(w.blockRecords, BlockRecord{
		Level:           w.blockLevel,
		Row:             w.blockRow,
		Col:             w.blockCol,
		MinRow:          w.minRow,
		MaxRow:          w.maxRow,
		MinCol:          w.minCol,
		MaxCol:          w.maxCol,
		Offset:          tileIndexOffset,
		TileIndexLength: uint64(indexBlob.Len()),
	})
	w.haveBlock = false
	return nil
}

// Finalize implements source.Writer: closes any open block, writes the
// block index, and patches the header in place.
func (w *Writer) Finalize(ctx context.Context) error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	if w.haveBlock {
		if err := w.closeBlock(); err != nil {
			return err
		}
	}

	blockIdxBlob, err := serializeBlockIndex(w.blockRecords)
	if err != nil {
		return err
	}
	blockIdxOffset := w.pos
	if _, err := w.out.Write(blockIdxBlob.Bytes()); err != nil {
		return xerrors.Wrap(xerrors.Io, "container: writing block index", err)
	}

	bbox := w.opts.Bounds
	header := Header{
		TileFormat:       w.opts.TileFormat,
		TileCompression:  w.opts.TileCompression,
		ZoomMin:          w.opts.ZoomMin,
		ZoomMax:          w.opts.ZoomMax,
		GeoBBox:          EncodeGeoBBox(bbox.West, bbox.South, bbox.East, bbox.North),
		MetadataOffset:   w.metaOffset,
		MetadataLength:   w.metaLength,
		BlockIndexOffset: blockIdxOffset,
		BlockIndexLength: uint64(blockIdxBlob.Len()),
	}
	if _, err := w.out.WriteAt(header.Serialize(), 0); err != nil {
		return xerrors.Wrap(xerrors.Io, "container: patching header", err)
	}
	return w.out.Close()
}

// Abort discards the partially written file.
func (w *Writer) Abort() {
	if w.out == nil {
		return
	}
	name := w.out.Name()
	w.out.Close()
	os.Remove(name)
}
