package ops

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
)

// staticTileReader returns the same pre-loaded blob for every coordinate
// (spec.md §4.5 from_tile) — useful for debug overlays and fixed markers.
type staticTileReader struct {
	data     blob.Blob
	format   blob.TileFormat
	pyramid  *coord.TileBBoxPyramid
	tileJSON blob.TileJSON
}

func newStaticTileReader(data blob.Blob, format blob.TileFormat) source.Reader {
	pyramid := coord.NewPyramid()
	for z := uint8(0); z <= 22; z++ {
		n := uint32(1) << z
		pyramid.Set(coord.NewTileBBox(z, 0, 0, n-1, n-1))
	}
	tj := blob.NewTileJSON()
	tj.MinZoom, tj.MaxZoom = 0, 22
	return &staticTileReader{data: data, format: format, pyramid: pyramid, tileJSON: tj}
}

func (r *staticTileReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if !r.pyramid.Get(c.Z).Contains(c.X, c.Y) {
		return blob.Blob{}, false, nil
	}
	return r.data, true, nil
}

func (r *staticTileReader) Metadata() blob.SourceMetadata {
	return blob.SourceMetadata{TileFormat: r.format, TileCompression: blob.CompressionNone, MinZoom: 0, MaxZoom: 22, TileJSON: r.tileJSON, Pyramid: r.pyramid}
}

func (r *staticTileReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *staticTileReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindStatic, Name: "from_tile"}
}
