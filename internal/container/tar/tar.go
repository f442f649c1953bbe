// Package tar adapts a TAR archive of {z}/{x}/{y}.{ext} entries to the
// internal/source capability interfaces (spec.md §4.3). The reader builds
// an offset index in a single pass over the archive at open time; the
// writer streams entries directly, since TAR itself imposes no ordering
// requirement on its members.
package tar

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

type entry struct {
	offset int64
	size   int64
}

// Reader reads tiles from a TAR archive via a header-scanned offset index.
type Reader struct {
	file     *os.File
	format   blob.TileFormat
	comp     blob.TileCompression
	tileJSON blob.TileJSON
	index    map[coord.TileCoord]entry
	pyramid  *coord.TileBBoxPyramid
}

func parseTileName(name string, ext string) (coord.TileCoord, bool) {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, ext)
	parts := strings.Split(name, "/")
	if len(parts) != 3 {
		return coord.TileCoord{}, false
	}
	z, err1 := strconv.Atoi(parts[0])
	x, err2 := strconv.Atoi(parts[1])
	y, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || z < 0 || z > 31 || x < 0 || y < 0 {
		return coord.TileCoord{}, false
	}
	return coord.TileCoord{Z: uint8(z), X: uint32(x), Y: uint32(y)}, true
}

// Open scans a TAR archive once, building an in-memory offset index.
func Open(path string, format blob.TileFormat, comp blob.TileCompression) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "tar: opening archive", err)
	}

	r := &Reader{
		file:     f,
		format:   format,
		comp:     comp,
		tileJSON: blob.NewTileJSON(),
		index:    make(map[coord.TileCoord]entry),
		pyramid:  coord.NewPyramid(),
	}

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return nil, xerrors.Wrap(xerrors.FormatMismatch, "tar: scanning archive", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		c, ok := parseTileName(hdr.Name, format.Extension())
		if !ok {
			continue
		}
		offset, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			f.Close()
			return nil, xerrors.Wrap(xerrors.Io, "tar: seeking", err)
		}
		r.index[c] = entry{offset: offset, size: hdr.Size}
		r.pyramid.Set(r.pyramid.Get(c.Z).Union(coord.NewTileBBox(c.Z, c.X, c.Y, c.X, c.Y)))
	}
	return r, nil
}

// GetTile implements source.Reader.
func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	e, ok := r.index[c]
	if !ok {
		return blob.Blob{}, false, nil
	}
	data := make([]byte, e.size)
	if _, err := r.file.ReadAt(data, e.offset); err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Io, fmt.Sprintf("tar: reading tile %s", c), err)
	}
	return blob.New(data), true, nil
}

// Metadata implements source.Reader.
func (r *Reader) Metadata() blob.SourceMetadata {
	minZ, maxZ, _ := r.pyramid.MinMaxZoom()
	return blob.SourceMetadata{
		TileFormat:      r.format,
		TileCompression: r.comp,
		MinZoom:         minZ,
		MaxZoom:         maxZ,
		TileJSON:        r.tileJSON,
		Pyramid:         r.pyramid,
	}
}

// BBoxPyramid implements source.Reader.
func (r *Reader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

// SourceType implements source.Reader.
func (r *Reader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindContainer, Name: "tar"}
}

// Close closes the backing file.
func (r *Reader) Close() error { return r.file.Close() }

// Writer streams tiles as TAR entries. TAR imposes no ordering requirement.
type Writer struct {
	file   *os.File
	tw     *tar.Writer
	format blob.TileFormat
}

// Create creates a new TAR archive at path.
func Create(path string, format blob.TileFormat) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "tar: creating archive", err)
	}
	return &Writer{file: f, tw: tar.NewWriter(f), format: format}, nil
}

// RequiresOrder implements source.Writer.
func (w *Writer) RequiresOrder() bool { return false }

// WriteTile implements source.Writer.
func (w *Writer) WriteTile(ctx context.Context, c coord.TileCoord, data blob.Blob) error {
	if data.IsEmpty() {
		return nil
	}
	name := path.Join(fmt.Sprint(c.Z), fmt.Sprint(c.X), fmt.Sprintf("%d%s", c.Y, w.format.Extension()))
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(data.Len()), Typeflag: tar.TypeReg}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return xerrors.Wrap(xerrors.Io, fmt.Sprintf("tar: writing header for %s", c), err)
	}
	if _, err := w.tw.Write(data.Bytes()); err != nil {
		return xerrors.Wrap(xerrors.Io, fmt.Sprintf("tar: writing tile %s", c), err)
	}
	return nil
}

// Finalize implements source.Writer.
func (w *Writer) Finalize(ctx context.Context) error {
	if err := w.tw.Close(); err != nil {
		return xerrors.Wrap(xerrors.Io, "tar: closing writer", err)
	}
	return w.file.Close()
}

// Abort implements source.Writer.
func (w *Writer) Abort() {
	w.tw.Close()
	name := w.file.Name()
	w.file.Close()
	os.Remove(name)
}
