package ops

import (
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// colorReader synthesizes one canonical raster blob and returns it for
// every requested coordinate (spec.md §4.5 from_color).
type colorReader struct {
	blob     blob.Blob
	format   blob.TileFormat
	tileJSON blob.TileJSON
	pyramid  *coord.TileBBoxPyramid
}

func newColorReader(colorStr string, size int, format blob.TileFormat) (*colorReader, error) {
	c, err := parseHexColor(colorStr)
	if err != nil {
		return nil, err
	}
	enc, err := encode.NewEncoder(format.String(), 90)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Unsupported, "from_color", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := enc.Encode(img)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, "from_color: encode", err)
	}

	pyramid := coord.NewPyramid()
	for z := uint8(0); z <= 22; z++ {
		n := uint32(1) << z
		pyramid.Set(coord.NewTileBBox(z, 0, 0, n-1, n-1))
	}

	tj := blob.NewTileJSON()
	tj.MinZoom, tj.MaxZoom = 0, 22
	return &colorReader{blob: blob.New(data), format: format, tileJSON: tj, pyramid: pyramid}, nil
}

func parseHexColor(s string) (color.RGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	var r, g, b, a uint8 = 0, 0, 0, 255
	raw, err := hex.DecodeString(s)
	if err != nil {
		return color.RGBA{}, xerrors.New(xerrors.Parse, fmt.Sprintf("from_color: invalid color %q", s))
	}
	switch len(raw) {
	case 3:
		r, g, b = raw[0], raw[1], raw[2]
	case 4:
		r, g, b, a = raw[0], raw[1], raw[2], raw[3]
	default:
		return color.RGBA{}, xerrors.New(xerrors.Parse, fmt.Sprintf("from_color: color %q must be RRGGBB or RRGGBBAA", s))
	}
	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

func (r *colorReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if !r.pyramid.Get(c.Z).Contains(c.X, c.Y) {
		return blob.Blob{}, false, nil
	}
	return r.blob, true, nil
}

func (r *colorReader) Metadata() blob.SourceMetadata {
	return blob.SourceMetadata{TileFormat: r.format, TileCompression: blob.CompressionNone, MinZoom: 0, MaxZoom: 22, TileJSON: r.tileJSON, Pyramid: r.pyramid}
}

func (r *colorReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *colorReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindStatic, Name: "from_color"}
}
