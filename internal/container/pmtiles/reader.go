// Package pmtiles reads PMTiles v3 archives (root + leaf directories,
// Hilbert-ordered tile IDs, gzip-compressed directories) as specified
// upstream, exposing them through the internal/source capability
// interfaces. Per spec.md §4.3, this adapter is read-only.
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// RangeReader is the I/O capability a Reader needs. A local *os.File
// satisfies it directly; internal/container/remote adapts an HTTP
// byte-range endpoint to it for reading an archive over HTTP.
type RangeReader interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

type localFile struct {
	*os.File
	size int64
}

func (f *localFile) Size() int64 { return f.size }

type tileRef struct {
	offset uint64
	length uint32
}

// Reader provides read access to a PMTiles v3 archive.
type Reader struct {
	backend  RangeReader
	header   header
	tileIdx  map[uint64]tileRef
	tileJSON blob.TileJSON
	pyramid  *coord.TileBBoxPyramid
}

// OpenFile opens a local PMTiles archive.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "pmtiles: opening file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, xerrors.Wrap(xerrors.Io, "pmtiles: stat", err)
	}
	return Open(&localFile{File: f, size: info.Size()})
}

// Open parses an already-open PMTiles v3 backend.
func Open(backend RangeReader) (*Reader, error) {
	headerBuf := make([]byte, headerSize)
	if _, err := backend.ReadAt(headerBuf, 0); err != nil {
		backend.Close()
		return nil, xerrors.Wrap(xerrors.Io, "pmtiles: reading header", err)
	}
	h, err := deserializeHeader(headerBuf)
	if err != nil {
		backend.Close()
		return nil, xerrors.Wrap(xerrors.FormatMismatch, "pmtiles: not a pmtiles archive", err)
	}

	rootRaw := make([]byte, h.RootDirLength)
	if _, err := backend.ReadAt(rootRaw, int64(h.RootDirOffset)); err != nil {
		backend.Close()
		return nil, xerrors.Wrap(xerrors.Io, "pmtiles: reading root directory", err)
	}
	rootEntries, err := deserializeDirectory(rootRaw)
	if err != nil {
		backend.Close()
		return nil, err
	}

	var all []dirEntry
	for _, e := range rootEntries {
		if e.RunLength == 0 {
			leafRaw := make([]byte, e.Length)
			absOffset := int64(h.LeafDirOffset + e.Offset)
			if _, err := backend.ReadAt(leafRaw, absOffset); err != nil {
				backend.Close()
				return nil, xerrors.Wrap(xerrors.Io, "pmtiles: reading leaf directory", err)
			}
			leafEntries, err := deserializeDirectory(leafRaw)
			if err != nil {
				backend.Close()
				return nil, err
			}
			all = append(all, leafEntries...)
		} else {
			all = append(all, e)
		}
	}

	tileIdx := make(map[uint64]tileRef, len(all)*2)
	pyramid := coord.NewPyramid()
	for _, e := range all {
		for r := uint32(0); r < e.RunLength; r++ {
			tileID := e.TileID + uint64(r)
			tileIdx[tileID] = tileRef{
				offset: h.TileDataOffset + e.Offset + uint64(r)*uint64(e.Length),
				length: e.Length,
			}
			z, x, y := tileIDToZXY(tileID)
			pyramid.Set(pyramid.Get(z).Union(coord.NewTileBBox(z, x, y, x, y)))
		}
	}

	tj, err := readMetadata(backend, h)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Reader{backend: backend, header: h, tileIdx: tileIdx, tileJSON: tj, pyramid: pyramid}, nil
}

func readMetadata(backend RangeReader, h header) (blob.TileJSON, error) {
	tj := blob.NewTileJSON()
	tj.MinZoom, tj.MaxZoom = int(h.MinZoom), int(h.MaxZoom)
	tj.Bounds = [4]float64{float64(h.MinLon), float64(h.MinLat), float64(h.MaxLon), float64(h.MaxLat)}
	if h.MetadataLength == 0 {
		return tj, nil
	}

	raw := make([]byte, h.MetadataLength)
	if _, err := backend.ReadAt(raw, int64(h.MetadataOffset)); err != nil {
		return tj, xerrors.Wrap(xerrors.Io, "pmtiles: reading metadata", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return tj, fmt.Errorf("pmtiles: metadata gzip reader: %w", err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return tj, fmt.Errorf("pmtiles: decompressing metadata: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return tj, fmt.Errorf("pmtiles: parsing metadata json: %w", err)
	}
	if v, ok := m["name"].(string); ok {
		tj.Name = v
	}
	if v, ok := m["description"].(string); ok {
		tj.Description = v
	}
	if v, ok := m["attribution"].(string); ok {
		tj.Attribution = v
	}
	return tj, nil
}

// GetTile implements source.Reader.
func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	ref, ok := r.tileIdx[zxyToTileID(c.Z, c.X, c.Y)]
	if !ok {
		return blob.Blob{}, false, nil
	}
	data := make([]byte, ref.length)
	if _, err := r.backend.ReadAt(data, int64(ref.offset)); err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Io, fmt.Sprintf("pmtiles: reading tile %s", c), err)
	}
	return blob.New(data), true, nil
}

// Metadata implements source.Reader.
func (r *Reader) Metadata() blob.SourceMetadata {
	return blob.SourceMetadata{
		TileFormat:      tileTypeToFormat(r.header.TileType),
		TileCompression: internalCompressionToBlob(r.header.TileCompression),
		MinZoom:         r.header.MinZoom,
		MaxZoom:         r.header.MaxZoom,
		TileJSON:        r.tileJSON,
		Pyramid:         r.pyramid,
	}
}

// BBoxPyramid implements source.Reader.
func (r *Reader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

// SourceType implements source.Reader.
func (r *Reader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindContainer, Name: "pmtiles"}
}

// Close closes the underlying backend.
func (r *Reader) Close() error { return r.backend.Close() }
