package ops

import (
	"context"
	"image"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/ops/raster"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// rasterOverviewReader rebuilds tiles at or below level by averaging their
// four children recursively, one level at a time — spec.md §4.6 raster_overview.
// Tiles above level pass through untouched.
type rasterOverviewReader struct {
	upstream source.Reader
	level    uint8
	tileSize int
}

func buildRasterOverview(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	return &rasterOverviewReader{
		upstream: upstream,
		level:    uint8(op.FloatArg("level", 0)),
		tileSize: int(op.FloatArg("tile_size", 256)),
	}, nil
}

func (r *rasterOverviewReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if c.Z > r.level {
		return r.upstream.GetTile(ctx, c)
	}
	return r.buildLevel(ctx, c)
}

// buildLevel recursively averages c's four children, each of which may
// itself need to be rebuilt if it is also at or below r.level.
func (r *rasterOverviewReader) buildLevel(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	children := c.Children()
	format := r.upstream.Metadata().TileFormat
	var imgs [4]image.Image
	any := false
	for i, child := range children {
		var (
			data blob.Blob
			ok   bool
			err  error
		)
		if child.Z > r.level {
			data, ok, err = r.upstream.GetTile(ctx, child)
		} else {
			data, ok, err = r.buildLevel(ctx, child)
		}
		if err != nil {
			return blob.Blob{}, false, err
		}
		if !ok {
			continue
		}
		img, err := encode.DecodeImage(data.Bytes(), format.String())
		if err != nil {
			return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "raster_overview: decode", err)
		}
		imgs[i] = img
		any = true
	}
	if !any {
		return blob.Blob{}, false, nil
	}

	out := raster.Average4(imgs[0], imgs[1], imgs[2], imgs[3], r.tileSize)
	enc, err := encode.NewEncoder(format.String(), 90)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "raster_overview", err)
	}
	data, err := enc.Encode(out)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "raster_overview: encode", err)
	}
	return blob.New(data), true, nil
}

func (r *rasterOverviewReader) Metadata() blob.SourceMetadata { return r.upstream.Metadata() }
func (r *rasterOverviewReader) BBoxPyramid() *coord.TileBBoxPyramid {
	return r.upstream.BBoxPyramid()
}
func (r *rasterOverviewReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "raster_overview", Input: ptr(r.upstream.SourceType())}
}
