package ops

import (
	"context"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/ops/raster"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

const metersPerDegree = 111000.0

// rasterMaskReader rasterizes a GeoJSON polygon collection per tile into an
// alpha mask (with buffer and edge blur, both given in meters) and
// multiplies it into the tile's alpha channel — spec.md §4.6 raster_mask.
type rasterMaskReader struct {
	upstream source.Reader
	polygons []orb.Polygon
	bufferM  float64
	blurM    float64
	blurFn   raster.BlurFunction
}

func buildRasterMask(op vpl.Operation, upstream source.Reader, ctx *BuildContext) (source.Reader, error) {
	path := ctx.resolve(op.StringArg("geojson", ""))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.NotFound, "raster_mask: "+path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Parse, "raster_mask: decoding geojson", err)
	}
	var polys []orb.Polygon
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
	}

	blurFn := raster.BlurLinear
	if op.StringArg("blur_function", "linear") == "cosine" {
		blurFn = raster.BlurCosine
	}

	return &rasterMaskReader{
		upstream: upstream,
		polygons: polys,
		bufferM:  op.FloatArg("buffer", 0),
		blurM:    op.FloatArg("blur", 0),
		blurFn:   blurFn,
	}, nil
}

// distanceToNearestEdgeMeters returns the point's approximate distance (in
// meters) to the nearest polygon ring segment, using an equirectangular
// approximation scaled by metersPerDegree — sufficient for the blur band
// widths raster_mask deals in.
func distanceToNearestEdgeMeters(p orb.Point, polygons []orb.Polygon) float64 {
	best := math.Inf(1)
	for _, poly := range polygons {
		for _, ring := range poly {
			for i := 0; i < len(ring)-1; i++ {
				d := pointSegmentDistanceMeters(p, ring[i], ring[i+1])
				if d < best {
					best = d
				}
			}
		}
	}
	return best
}

func pointSegmentDistanceMeters(p, a, b orb.Point) float64 {
	latScale := math.Cos(a[1] * math.Pi / 180)
	px, py := p[0]*latScale, p[1]
	ax, ay := a[0]*latScale, a[1]
	bx, by := b[0]*latScale, b[1]

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	cx, cy := ax+t*dx, ay+t*dy
	ddx, ddy := px-cx, py-cy
	return math.Sqrt(ddx*ddx+ddy*ddy) * metersPerDegree
}

func (r *rasterMaskReader) coverageAt(lon, lat float64) float64 {
	p := orb.Point{lon, lat}
	inside := false
	for _, poly := range r.polygons {
		if planar.PolygonContains(poly, p) {
			inside = true
			break
		}
	}
	dist := distanceToNearestEdgeMeters(p, r.polygons)
	if inside {
		// Inside the (possibly buffered) polygon: full coverage unless
		// within one blur band of the boundary on the interior side.
		if dist < r.blurM {
			return raster.EdgeFalloff(dist, r.blurM, r.blurFn)*0.5 + 0.5
		}
		return 1
	}
	// Outside: covered out to bufferM, then fades to 0 across blurM.
	edge := dist - r.bufferM
	return 1 - raster.EdgeFalloff(edge, r.blurM, r.blurFn)
}

func (r *rasterMaskReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	data, ok, err := r.upstream.GetTile(ctx, c)
	if err != nil || !ok {
		return blob.Blob{}, ok, err
	}
	format := r.upstream.Metadata().TileFormat
	img, err := encode.DecodeImage(data.Bytes(), format.String())
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "raster_mask: decode", err)
	}
	b := img.Bounds()
	mask := image.NewAlpha(b)
	minLon, minLat, maxLon, maxLat := coord.TileBounds(int(c.Z), int(c.X), int(c.Y))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		lat := maxLat - (float64(y)+0.5)/float64(b.Dy())*(maxLat-minLat)
		for x := b.Min.X; x < b.Max.X; x++ {
			lon := minLon + (float64(x)+0.5)/float64(b.Dx())*(maxLon-minLon)
			coverage := r.coverageAt(lon, lat)
			if coverage < 0 {
				coverage = 0
			} else if coverage > 1 {
				coverage = 1
			}
			mask.SetAlpha(x, y, color.Alpha{A: uint8(coverage * 255)})
		}
	}
	out := raster.ApplyMask(img, mask)
	enc, err := encode.NewEncoder(format.String(), 90)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "raster_mask", err)
	}
	data2, err := enc.Encode(out)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "raster_mask: encode", err)
	}
	return blob.New(data2), true, nil
}

func (r *rasterMaskReader) Metadata() blob.SourceMetadata        { return r.upstream.Metadata() }
func (r *rasterMaskReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.upstream.BBoxPyramid() }
func (r *rasterMaskReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "raster_mask", Input: ptr(r.upstream.SourceType())}
}
