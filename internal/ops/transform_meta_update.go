package ops

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

// metaUpdateReader overrides TileJSON/metadata fields at construction time;
// tile bytes and the runtime read path are untouched — spec.md §4.6 meta_update.
type metaUpdateReader struct {
	upstream source.Reader
	tileJSON blob.TileJSON
}

func buildMetaUpdate(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	tj := upstream.Metadata().TileJSON.Clone()

	if v := op.StringArg("attribution", ""); v != "" {
		tj.Attribution = v
	}
	if v := op.StringArg("description", ""); v != "" {
		tj.Description = v
	}
	if v := op.StringArg("legend", ""); v != "" {
		tj.Legend = v
	}
	if v := op.StringArg("name", ""); v != "" {
		tj.Name = v
	}
	if v := op.StringArg("schema", ""); v != "" {
		tj.Schema = blob.TileSchema(v)
	}
	if bounds := floatListArg(op, "bounds"); len(bounds) == 4 {
		tj.Bounds = [4]float64{bounds[0], bounds[1], bounds[2], bounds[3]}
	}
	if center := floatListArg(op, "center"); len(center) == 3 {
		tj.Center = [3]float64{center[0], center[1], center[2]}
	}
	if v, ok := op.Arg("fillzoom"); ok {
		if f, ok := v.(float64); ok {
			fz := int(f)
			tj.FillZoom = &fz
		}
	}

	return &metaUpdateReader{upstream: upstream, tileJSON: tj}, nil
}

func (r *metaUpdateReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	return r.upstream.GetTile(ctx, c)
}

func (r *metaUpdateReader) Metadata() blob.SourceMetadata {
	m := r.upstream.Metadata()
	m.TileJSON = r.tileJSON
	return m
}

func (r *metaUpdateReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.upstream.BBoxPyramid() }

func (r *metaUpdateReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "meta_update", Input: ptr(r.upstream.SourceType())}
}
