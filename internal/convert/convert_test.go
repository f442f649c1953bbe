package convert

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

type fakeReader struct {
	pyramid *coord.TileBBoxPyramid
	meta    blob.SourceMetadata
}

func (f *fakeReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if err := ctx.Err(); err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Cancelled, "fakeReader: context done", err)
	}
	if !f.pyramid.Get(c.Z).Contains(c.X, c.Y) {
		return blob.Blob{}, false, nil
	}
	return blob.New([]byte(fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y))), true, nil
}
func (f *fakeReader) Metadata() blob.SourceMetadata       { return f.meta }
func (f *fakeReader) BBoxPyramid() *coord.TileBBoxPyramid { return f.pyramid }
func (f *fakeReader) SourceType() blob.SourceType         { return blob.SourceType{Name: "fake"} }

type fakeWriter struct {
	mu        sync.Mutex
	tiles     map[coord.TileCoord]blob.Blob
	finalized bool
	aborted   bool
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{tiles: make(map[coord.TileCoord]blob.Blob)}
}

func (w *fakeWriter) WriteTile(ctx context.Context, c coord.TileCoord, data blob.Blob) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tiles[c] = data
	return nil
}
func (w *fakeWriter) RequiresOrder() bool { return false }
func (w *fakeWriter) Finalize(ctx context.Context) error {
	w.finalized = true
	return nil
}
func (w *fakeWriter) Abort() { w.aborted = true }

func testPyramid() *coord.TileBBoxPyramid {
	p := coord.NewPyramid()
	p.Set(coord.NewTileBBox(0, 0, 0, 0, 0))
	p.Set(coord.NewTileBBox(1, 0, 0, 1, 1))
	p.Set(coord.NewTileBBox(2, 0, 0, 3, 3))
	return p
}

func TestConvert_CopiesEveryTileUnchanged(t *testing.T) {
	pyramid := testPyramid()
	reader := &fakeReader{pyramid: pyramid, meta: blob.SourceMetadata{
		TileFormat: blob.FormatPNG, TileCompression: blob.CompressionNone, Pyramid: pyramid,
	}}
	writer := newFakeWriter()

	result, err := Convert(context.Background(), reader, writer, Options{})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := pyramid.Count(); result.TilesWritten != want {
		t.Fatalf("TilesWritten = %d, want %d", result.TilesWritten, want)
	}
	if len(writer.tiles) != int(pyramid.Count()) {
		t.Fatalf("writer received %d tiles, want %d", len(writer.tiles), pyramid.Count())
	}
	if !writer.finalized {
		t.Fatal("writer was not finalized")
	}
	if writer.aborted {
		t.Fatal("writer should not have been aborted")
	}
}

func TestConvert_ZoomClampRestrictsLevels(t *testing.T) {
	pyramid := testPyramid()
	reader := &fakeReader{pyramid: pyramid, meta: blob.SourceMetadata{
		TileFormat: blob.FormatPNG, TileCompression: blob.CompressionNone, Pyramid: pyramid,
	}}
	writer := newFakeWriter()

	minZ, maxZ := uint8(1), uint8(1)
	result, err := Convert(context.Background(), reader, writer, Options{MinZoom: &minZ, MaxZoom: &maxZ})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if want := pyramid.Get(1).Count(); result.TilesWritten != want {
		t.Fatalf("TilesWritten = %d, want %d", result.TilesWritten, want)
	}
	for c := range writer.tiles {
		if c.Z != 1 {
			t.Fatalf("unexpected level %d written under MinZoom=MaxZoom=1", c.Z)
		}
	}
}

func TestConvert_RecompressesWhenTargetDiffers(t *testing.T) {
	pyramid := coord.NewPyramid()
	pyramid.Set(coord.NewTileBBox(0, 0, 0, 0, 0))
	reader := &fakeReader{pyramid: pyramid, meta: blob.SourceMetadata{
		TileFormat: blob.FormatPNG, TileCompression: blob.CompressionNone, Pyramid: pyramid,
	}}
	writer := newFakeWriter()

	result, err := Convert(context.Background(), reader, writer, Options{TargetCompression: blob.CompressionGzip})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if result.TilesWritten != 1 {
		t.Fatalf("TilesWritten = %d, want 1", result.TilesWritten)
	}
	for _, data := range writer.tiles {
		if len(data.Bytes()) == 0 {
			t.Fatal("expected non-empty recompressed payload")
		}
	}
}

func TestConvert_EmptyEffectivePyramidErrors(t *testing.T) {
	pyramid := coord.NewPyramid() // no levels at all
	reader := &fakeReader{pyramid: pyramid, meta: blob.SourceMetadata{
		TileFormat: blob.FormatPNG, TileCompression: blob.CompressionNone, Pyramid: pyramid,
	}}
	writer := newFakeWriter()

	if _, err := Convert(context.Background(), reader, writer, Options{}); err == nil {
		t.Fatal("expected an error for an empty effective pyramid")
	}
}

func TestConvert_AbortsWriterOnSchedulerError(t *testing.T) {
	pyramid := testPyramid()
	reader := &fakeReader{pyramid: pyramid, meta: blob.SourceMetadata{
		TileFormat: blob.FormatPNG, TileCompression: blob.CompressionNone, Pyramid: pyramid,
	}}
	writer := newFakeWriter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-cancelled context forces an early scheduler error
	_, err := Convert(ctx, reader, writer, Options{})
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
	if !writer.aborted {
		t.Fatal("writer should have been aborted on scheduler failure")
	}
}
