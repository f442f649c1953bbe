package ops

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// rasterOverscaleReader passes levels at or below levelBase through
// untouched; between levelBase and levelMax it extracts and upscales a
// sub-rectangle of the ancestor tile at levelBase or, when that tile is
// missing and enableClimbing is set, of the nearest lower ancestor the
// upstream has; above levelMax it reports tiles missing — spec.md §4.6
// raster_overscale.
type rasterOverscaleReader struct {
	upstream       source.Reader
	levelBase      uint8
	levelMax       uint8
	enableClimbing bool
	tileSize       int
}

func buildRasterOverscale(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	return &rasterOverscaleReader{
		upstream:       upstream,
		levelBase:      uint8(op.FloatArg("level_base", 0)),
		levelMax:       uint8(op.FloatArg("level_max", 22)),
		enableClimbing: op.BoolArg("enable_climbing", false),
		tileSize:       256,
	}, nil
}

func (r *rasterOverscaleReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if c.Z <= r.levelBase {
		return r.upstream.GetTile(ctx, c)
	}
	if c.Z > r.levelMax {
		return blob.Blob{}, false, nil
	}

	cur := c
	var offX, offY uint32
	scale := uint32(1)
	for cur.Z > r.levelBase {
		offX += (cur.X % 2) * scale
		offY += (cur.Y % 2) * scale
		scale *= 2
		parent, hasParent := cur.Parent()
		if !hasParent {
			return blob.Blob{}, false, nil
		}
		cur = parent
	}

	data, ok, err := r.upstream.GetTile(ctx, cur)
	if err != nil {
		return blob.Blob{}, false, err
	}
	if !ok {
		if !r.enableClimbing {
			return blob.Blob{}, false, nil
		}
		for cur.Z > 0 {
			parent, hasParent := cur.Parent()
			if !hasParent {
				return blob.Blob{}, false, nil
			}
			offX += (cur.X % 2) * scale
			offY += (cur.Y % 2) * scale
			scale *= 2
			cur = parent
			data, ok, err = r.upstream.GetTile(ctx, cur)
			if err != nil {
				return blob.Blob{}, false, err
			}
			if ok {
				break
			}
		}
		if !ok {
			return blob.Blob{}, false, nil
		}
	}

	format := r.upstream.Metadata().TileFormat
	img, err := encode.DecodeImage(data.Bytes(), format.String())
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "raster_overscale: decode", err)
	}
	cropped := cropAndUpscale(img, offX, offY, scale, r.tileSize)
	enc, err := encode.NewEncoder(format.String(), 90)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "raster_overscale", err)
	}
	out, err := enc.Encode(cropped)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "raster_overscale: encode", err)
	}
	return blob.New(out), true, nil
}

func (r *rasterOverscaleReader) Metadata() blob.SourceMetadata {
	m := r.upstream.Metadata()
	if r.levelMax > m.MaxZoom {
		m.MaxZoom = r.levelMax
	}
	return m
}

func (r *rasterOverscaleReader) BBoxPyramid() *coord.TileBBoxPyramid {
	pyramid := coord.NewPyramid()
	upstream := r.upstream.BBoxPyramid()
	for _, z := range upstream.Levels() {
		pyramid.Set(upstream.Get(z))
	}
	base := upstream.Get(r.levelBase)
	for z := r.levelBase + 1; z <= r.levelMax; z++ {
		shift := uint32(z - r.levelBase)
		pyramid.Set(coord.NewTileBBox(z, base.MinX<<shift, base.MinY<<shift, (base.MaxX+1)<<shift-1, (base.MaxY+1)<<shift-1))
	}
	return pyramid
}

func (r *rasterOverscaleReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "raster_overscale", Input: ptr(r.upstream.SourceType())}
}
