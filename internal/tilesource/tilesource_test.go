package tilesource

import (
	"context"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
	"github.com/versatiles-org/versatiles-go/internal/coord"
)

type fakeReader struct {
	meta    blob.SourceMetadata
	payload blob.Blob
	found   bool
}

func (f *fakeReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	return f.payload, f.found, nil
}
func (f *fakeReader) Metadata() blob.SourceMetadata       { return f.meta }
func (f *fakeReader) BBoxPyramid() *coord.TileBBoxPyramid { return coord.NewPyramid() }
func (f *fakeReader) SourceType() blob.SourceType         { return blob.SourceType{Name: "fake"} }

func TestGetTile_NotFound(t *testing.T) {
	ts := New("demo", &fakeReader{found: false})
	resp, err := ts.GetTile(context.Background(), 0, 0, 0, nil, false)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !resp.NotFound {
		t.Fatal("expected NotFound=true")
	}
}

func TestGetTile_ServesAsIsWhenAccepted(t *testing.T) {
	compressed, err := compress.Encode([]byte("hello"), blob.CompressionGzip)
	if err != nil {
		t.Fatalf("compress.Encode: %v", err)
	}
	reader := &fakeReader{
		meta: blob.SourceMetadata{
			TileFormat:      blob.FormatPNG,
			TileCompression: blob.CompressionGzip,
		},
		payload: compressed,
		found:   true,
	}
	ts := New("demo", reader)

	resp, err := ts.GetTile(context.Background(), 0, 0, 0, []string{"gzip"}, false)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if resp.ContentEncoding != "gzip" {
		t.Fatalf("ContentEncoding = %q, want gzip", resp.ContentEncoding)
	}
	if resp.ContentType != blob.FormatPNG.MIME() {
		t.Fatalf("ContentType = %q, want %q", resp.ContentType, blob.FormatPNG.MIME())
	}
	if string(resp.Data) != string(compressed.Bytes()) {
		t.Fatal("expected the compressed payload to pass through unchanged")
	}
}

func TestGetTile_DecompressesWhenClientDoesNotAcceptEncoding(t *testing.T) {
	raw := []byte("hello world")
	compressed, err := compress.Encode(raw, blob.CompressionGzip)
	if err != nil {
		t.Fatalf("compress.Encode: %v", err)
	}
	reader := &fakeReader{
		meta: blob.SourceMetadata{
			TileFormat:      blob.FormatPNG,
			TileCompression: blob.CompressionGzip,
		},
		payload: compressed,
		found:   true,
	}
	ts := New("demo", reader)

	resp, err := ts.GetTile(context.Background(), 0, 0, 0, nil, false)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if resp.ContentEncoding != "" {
		t.Fatalf("ContentEncoding = %q, want empty (decompressed)", resp.ContentEncoding)
	}
	if string(resp.Data) != string(raw) {
		t.Fatalf("Data = %q, want %q", resp.Data, raw)
	}
}

func TestGetTile_MinimalRecompressionForcesDecompress(t *testing.T) {
	raw := []byte("hello world")
	compressed, err := compress.Encode(raw, blob.CompressionGzip)
	if err != nil {
		t.Fatalf("compress.Encode: %v", err)
	}
	reader := &fakeReader{
		meta: blob.SourceMetadata{
			TileFormat:      blob.FormatPNG,
			TileCompression: blob.CompressionGzip,
		},
		payload: compressed,
		found:   true,
	}
	ts := New("demo", reader)

	// Client accepts brotli (not gzip); with minimal_recompression the
	// server must decompress rather than pay for a brotli transcode.
	resp, err := ts.GetTile(context.Background(), 0, 0, 0, []string{"br"}, true)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if resp.ContentEncoding != "" {
		t.Fatalf("ContentEncoding = %q, want empty under minimal_recompression", resp.ContentEncoding)
	}
	if string(resp.Data) != string(raw) {
		t.Fatalf("Data = %q, want %q", resp.Data, raw)
	}
}

func TestTileJSON_SubstitutesBaseURL(t *testing.T) {
	reader := &fakeReader{meta: blob.SourceMetadata{
		TileFormat: blob.FormatPNG,
		TileJSON:   blob.NewTileJSON(),
	}}
	ts := New("demo", reader)

	data, err := ts.TileJSON("https://example.com")
	if err != nil {
		t.Fatalf("TileJSON: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty tiles.json body")
	}
}

func TestProbe_ReturnsReaderMetadata(t *testing.T) {
	reader := &fakeReader{meta: blob.SourceMetadata{TileFormat: blob.FormatPNG}}
	ts := New("demo", reader)

	meta, st := ts.Probe()
	if meta.TileFormat != blob.FormatPNG {
		t.Fatalf("TileFormat = %v, want PNG", meta.TileFormat)
	}
	if st.Name != "fake" {
		t.Fatalf("SourceType.Name = %q, want fake", st.Name)
	}
}
