package ops

import (
	"context"
	"image"
	"image/color"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/ops/raster"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// demQuantizeReader zeroes the low elevation bits of an upstream terrarium
// DEM tile so the remaining step size is no coarser than the stricter of a
// resolution-ratio bound and a max-gradient-error bound — spec.md §4.6
// dem_quantize. Each tile is processed independently (single-pass, no
// global scan).
type demQuantizeReader struct {
	upstream         source.Reader
	resolutionRatio  float64
	maxGradientError float64
}

func buildDEMQuantize(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	return &demQuantizeReader{
		upstream:         upstream,
		resolutionRatio:  op.FloatArg("resolution_ratio", 0.001),
		maxGradientError: op.FloatArg("max_gradient_error", 1.0),
	}, nil
}

func (r *demQuantizeReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	data, ok, err := r.upstream.GetTile(ctx, c)
	if err != nil || !ok {
		return blob.Blob{}, ok, err
	}
	img, err := encode.DecodeImage(data.Bytes(), "terrarium")
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "dem_quantize: decode", err)
	}

	b := img.Bounds()
	pixelSizeMeters := groundResolutionMeters(c.Z, b.Dy())
	elevations := make([]float32, b.Dx()*b.Dy())
	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rr, gg, bb, aa := img.At(x, y).RGBA()
			elevations[idx] = float32(encode.TerrariumToElevation(color.RGBA{R: uint8(rr >> 8), G: uint8(gg >> 8), B: uint8(bb >> 8), A: uint8(aa >> 8)}))
			idx++
		}
	}

	quantized, _ := raster.QuantizeElevation(elevations, r.resolutionRatio, r.maxGradientError, pixelSizeMeters)

	out := image.NewRGBA(b)
	idx = 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetRGBA(x, y, encode.ElevationToTerrarium(float64(quantized[idx])))
			idx++
		}
	}

	enc, err := encode.NewEncoder("terrarium", 90)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "dem_quantize", err)
	}
	encoded, err := enc.Encode(out)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "dem_quantize: encode", err)
	}
	return blob.New(encoded), true, nil
}

// groundResolutionMeters approximates the meters-per-pixel of a web-mercator
// tile at zoom z with the given tile-side pixel count.
func groundResolutionMeters(z uint8, tileSize int) float64 {
	return coord.EarthCircumference / (float64(uint32(1)<<z) * float64(tileSize))
}

func (r *demQuantizeReader) Metadata() blob.SourceMetadata        { return r.upstream.Metadata() }
func (r *demQuantizeReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.upstream.BBoxPyramid() }
func (r *demQuantizeReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "dem_quantize", Input: ptr(r.upstream.SourceType())}
}
