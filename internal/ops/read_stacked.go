package ops

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// stackedReader returns the first non-empty tile among its inputs, in the
// order they were listed — spec.md §4.5 from_stacked. All inputs must share
// the same tile format and compression; the first one present is served
// untouched, so a mismatch would silently corrupt whichever format the
// container declares.
type stackedReader struct {
	readers []source.Reader
	pyramid *coord.TileBBoxPyramid
	meta    blob.SourceMetadata
}

func newStackedReader(readers []source.Reader) (source.Reader, error) {
	if len(readers) == 0 {
		return nil, xerrors.New(xerrors.Parse, "from_stacked: requires at least one source")
	}
	first := readers[0].Metadata()
	for _, r := range readers[1:] {
		m := r.Metadata()
		if m.TileFormat != first.TileFormat || m.TileCompression != first.TileCompression {
			return nil, xerrors.New(xerrors.FormatMismatch, fmt.Sprintf(
				"from_stacked: inputs must share format+compression, got %s/%s and %s/%s",
				first.TileFormat, first.TileCompression, m.TileFormat, m.TileCompression))
		}
	}
	pyramid := coord.NewPyramid()
	for _, r := range readers {
		for _, z := range r.BBoxPyramid().Levels() {
			pyramid.Set(pyramid.Get(z).Union(r.BBoxPyramid().Get(z)))
		}
	}
	return &stackedReader{readers: readers, pyramid: pyramid, meta: first}, nil
}

func (r *stackedReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	for _, reader := range r.readers {
		data, ok, err := reader.GetTile(ctx, c)
		if err != nil {
			return blob.Blob{}, false, err
		}
		if ok {
			return data, true, nil
		}
	}
	return blob.Blob{}, false, nil
}

func (r *stackedReader) Metadata() blob.SourceMetadata {
	m := r.meta
	m.Pyramid = r.pyramid
	return m
}

func (r *stackedReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *stackedReader) SourceType() blob.SourceType {
	inputs := make([]blob.SourceType, len(r.readers))
	for i, reader := range r.readers {
		inputs[i] = reader.SourceType()
	}
	return blob.SourceType{Kind: blob.KindProcessor, Name: "from_stacked", Inputs: inputs}
}

// stackedRasterReader alpha-composites its inputs in listed order (first
// input on the bottom), falling back to an upscaled sub-rectangle of a
// lower zoom level when auto_overscale is set and a level's tile is missing
// — spec.md §4.5 from_stacked_raster.
type stackedRasterReader struct {
	readers       []source.Reader
	format        blob.TileFormat
	autoOverscale bool
	tileSize      int
	pyramid       *coord.TileBBoxPyramid
}

func newStackedRasterReader(readers []source.Reader, format blob.TileFormat, autoOverscale bool) (source.Reader, error) {
	if len(readers) == 0 {
		return nil, xerrors.New(xerrors.Parse, "from_stacked_raster: requires at least one source")
	}
	if format == blob.FormatUnknown {
		format = readers[0].Metadata().TileFormat
	}
	pyramid := coord.NewPyramid()
	for _, r := range readers {
		for _, z := range r.BBoxPyramid().Levels() {
			pyramid.Set(pyramid.Get(z).Union(r.BBoxPyramid().Get(z)))
		}
	}
	return &stackedRasterReader{readers: readers, format: format, autoOverscale: autoOverscale, tileSize: 256, pyramid: pyramid}, nil
}

func (r *stackedRasterReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	var composite draw.Image
	any := false
	for _, reader := range r.readers {
		img, ok, err := r.fetchImage(ctx, reader, c)
		if err != nil {
			return blob.Blob{}, false, err
		}
		if !ok {
			continue
		}
		any = true
		if composite == nil {
			b := img.Bounds()
			composite = image.NewRGBA(b)
			draw.Draw(composite, b, img, b.Min, draw.Src)
			continue
		}
		draw.Draw(composite, composite.Bounds(), img, img.Bounds().Min, draw.Over)
	}
	if !any {
		return blob.Blob{}, false, nil
	}

	enc, err := encode.NewEncoder(r.format.String(), 90)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "from_stacked_raster", err)
	}
	data, err := enc.Encode(composite)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "from_stacked_raster: encode", err)
	}
	return blob.New(data), true, nil
}

// fetchImage fetches coordinate c from reader, decoding its native format.
// When autoOverscale is enabled and the tile is absent, it walks up to the
// parent level (repeatedly, up to 4 levels) and crops+nearest-upscales the
// corresponding quadrant instead of reporting the tile missing.
func (r *stackedRasterReader) fetchImage(ctx context.Context, reader source.Reader, c coord.TileCoord) (image.Image, bool, error) {
	data, ok, err := reader.GetTile(ctx, c)
	if err != nil {
		return nil, false, err
	}
	if ok {
		img, err := encode.DecodeImage(data.Bytes(), reader.Metadata().TileFormat.String())
		if err != nil {
			return nil, false, xerrors.Wrap(xerrors.FormatMismatch, "from_stacked_raster: decode", err)
		}
		return img, true, nil
	}
	if !r.autoOverscale {
		return nil, false, nil
	}

	cur := c
	var offX, offY uint32
	scale := uint32(1)
	for level := 0; level < 4 && cur.Z > 0; level++ {
		offX += (cur.X % 2) * scale
		offY += (cur.Y % 2) * scale
		scale *= 2
		parent, hasParent := cur.Parent()
		if !hasParent {
			break
		}
		cur = parent

		data, ok, err := reader.GetTile(ctx, cur)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		img, err := encode.DecodeImage(data.Bytes(), reader.Metadata().TileFormat.String())
		if err != nil {
			return nil, false, xerrors.Wrap(xerrors.FormatMismatch, "from_stacked_raster: decode", err)
		}
		return cropAndUpscale(img, offX, offY, scale, r.tileSize), true, nil
	}
	return nil, false, nil
}

// cropAndUpscale extracts the (offX,offY) quadrant out of a scale*scale grid
// covering img and nearest-neighbor-scales it back up to tileSize.
func cropAndUpscale(img image.Image, offX, offY, scale uint32, tileSize int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	sx0 := b.Min.X + int(offX)*w/int(scale)
	sy0 := b.Min.Y + int(offY)*h/int(scale)
	sw := w / int(scale)
	sh := h / int(scale)
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}

	out := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	for y := 0; y < tileSize; y++ {
		sy := sy0 + y*sh/tileSize
		for x := 0; x < tileSize; x++ {
			sx := sx0 + x*sw/tileSize
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

func (r *stackedRasterReader) Metadata() blob.SourceMetadata {
	m := r.readers[0].Metadata()
	m.TileFormat = r.format
	m.Pyramid = r.pyramid
	return m
}

func (r *stackedRasterReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *stackedRasterReader) SourceType() blob.SourceType {
	inputs := make([]blob.SourceType, len(r.readers))
	for i, reader := range r.readers {
		inputs[i] = reader.SourceType()
	}
	return blob.SourceType{Kind: blob.KindProcessor, Name: "from_stacked_raster", Inputs: inputs}
}
