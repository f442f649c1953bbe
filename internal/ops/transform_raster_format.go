package ops

import (
	"context"
	"strconv"
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// qualityByZoom holds the parsed "default, z1:q1, z2:q2, …" list from
// raster_format's quality parameter: the default applies below the lowest
// threshold, and each threshold's quality applies for zooms >= it.
type qualityByZoom struct {
	def        int
	thresholds []int
	qualities  []int
}

func parseQualityByZoom(spec string) qualityByZoom {
	q := qualityByZoom{def: 90}
	if spec == "" {
		return q
	}
	parts := strings.Split(spec, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i == 0 && !strings.Contains(part, ":") {
			if v, err := strconv.Atoi(part); err == nil {
				q.def = v
			}
			continue
		}
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		z, err1 := strconv.Atoi(strings.TrimSpace(kv[0]))
		v, err2 := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err1 != nil || err2 != nil {
			continue
		}
		q.thresholds = append(q.thresholds, z)
		q.qualities = append(q.qualities, v)
	}
	return q
}

func (q qualityByZoom) forZoom(z uint8) int {
	best := q.def
	for i, t := range q.thresholds {
		if int(z) >= t {
			best = q.qualities[i]
		}
	}
	return best
}

// rasterFormatReader re-encodes every upstream raster tile to a new format
// and per-zoom quality — spec.md §4.6 raster_format.
type rasterFormatReader struct {
	upstream source.Reader
	format   blob.TileFormat
	quality  qualityByZoom
}

func buildRasterFormat(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	format, ok := blob.ParseFormat(op.StringArg("format", ""))
	if !ok {
		return nil, &vpl.InvalidParameterValueError{Operation: op.Name, Param: "format", Value: op.StringArg("format", ""), Line: op.Line, Col: op.Col}
	}
	return &rasterFormatReader{
		upstream: upstream,
		format:   format,
		quality:  parseQualityByZoom(op.StringArg("quality", "")),
	}, nil
}

func (r *rasterFormatReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	data, ok, err := r.upstream.GetTile(ctx, c)
	if err != nil || !ok {
		return blob.Blob{}, ok, err
	}
	img, err := encode.DecodeImage(data.Bytes(), r.upstream.Metadata().TileFormat.String())
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "raster_format: decode", err)
	}
	enc, err := encode.NewEncoder(r.format.String(), r.quality.forZoom(c.Z))
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "raster_format", err)
	}
	out, err := enc.Encode(img)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "raster_format: encode", err)
	}
	return blob.New(out), true, nil
}

func (r *rasterFormatReader) Metadata() blob.SourceMetadata {
	m := r.upstream.Metadata()
	m.TileFormat = r.format
	return m
}

func (r *rasterFormatReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.upstream.BBoxPyramid() }

func (r *rasterFormatReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "raster_format", Input: ptr(r.upstream.SourceType())}
}
