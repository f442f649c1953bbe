package ops

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

// filterReader intersects the upstream pyramid with a geographic bbox and
// clamps levels — spec.md §4.6 filter.
type filterReader struct {
	upstream source.Reader
	pyramid  *coord.TileBBoxPyramid
	minZoom  uint8
	maxZoom  uint8
}

func buildFilter(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	pyramid := coord.NewPyramid()
	for _, z := range upstream.BBoxPyramid().Levels() {
		pyramid.Set(upstream.BBoxPyramid().Get(z))
	}

	if bbox := floatListArg(op, "bbox"); len(bbox) == 4 {
		geo := coord.GeoBBox{West: bbox[0], South: bbox[1], East: bbox[2], North: bbox[3]}
		pyramid = pyramid.IntersectGeo(geo)
	}

	minZoom, maxZoom, _ := pyramid.MinMaxZoom()
	if v, ok := op.Arg("level_min"); ok {
		if f, ok := v.(float64); ok {
			minZoom = uint8(f)
		}
	}
	if v, ok := op.Arg("level_max"); ok {
		if f, ok := v.(float64); ok {
			maxZoom = uint8(f)
		}
	}
	pyramid = pyramid.ClampZoom(minZoom, maxZoom)

	return &filterReader{upstream: upstream, pyramid: pyramid, minZoom: minZoom, maxZoom: maxZoom}, nil
}

func (r *filterReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if c.Z < r.minZoom || c.Z > r.maxZoom || !r.pyramid.Get(c.Z).Contains(c.X, c.Y) {
		return blob.Blob{}, false, nil
	}
	return r.upstream.GetTile(ctx, c)
}

func (r *filterReader) Metadata() blob.SourceMetadata {
	m := r.upstream.Metadata()
	m.MinZoom, m.MaxZoom = r.minZoom, r.maxZoom
	m.Pyramid = r.pyramid
	return m
}

func (r *filterReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *filterReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "filter", Input: ptr(r.upstream.SourceType())}
}

func ptr[T any](v T) *T { return &v }
