package ops

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/ops/vector"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

const debugTileSize = 256

// debugReader synthesizes a tile labeled with its own z/x/y coordinate
// (spec.md §4.5 from_debug). The vector variant emits a one-layer MVT
// whose single feature carries the label as a property.
type debugReader struct {
	format  blob.TileFormat
	pyramid *coord.TileBBoxPyramid
}

func newDebugReader(format blob.TileFormat) *debugReader {
	pyramid := coord.NewPyramid()
	for z := uint8(0); z <= 22; z++ {
		n := uint32(1) << z
		pyramid.Set(coord.NewTileBBox(z, 0, 0, n-1, n-1))
	}
	return &debugReader{format: format, pyramid: pyramid}
}

func (r *debugReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	label := fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
	if r.format.Category() == blob.CategoryVector {
		data, err := vector.EncodeLabelTile(label, debugTileSize)
		if err != nil {
			return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "from_debug", err)
		}
		return blob.New(data), true, nil
	}

	img := renderDebugTile(label, c)
	enc, err := encode.NewEncoder(r.format.String(), 90)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Unsupported, "from_debug", err)
	}
	data, err := enc.Encode(img)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "from_debug: encode", err)
	}
	return blob.New(data), true, nil
}

func renderDebugTile(label string, c coord.TileCoord) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, debugTileSize, debugTileSize))
	bg := debugBackground(c)
	for y := 0; y < debugTileSize; y++ {
		for x := 0; x < debugTileSize; x++ {
			img.Set(x, y, bg)
		}
	}
	for y := 0; y < debugTileSize; y++ {
		img.Set(0, y, color.Black)
		img.Set(debugTileSize-1, y, color.Black)
	}
	for x := 0; x < debugTileSize; x++ {
		img.Set(x, 0, color.Black)
		img.Set(x, debugTileSize-1, color.Black)
	}
	drawBitmapText(img, label, 8, 8, color.Black)
	return img
}

// debugBackground derives a stable, distinct-looking color from (z,x,y) so
// adjacent tiles are visually distinguishable.
func debugBackground(c coord.TileCoord) color.RGBA {
	h := uint32(c.Z)*2654435761 + c.X*40503 + c.Y*2246822519
	return color.RGBA{
		R: uint8(180 + (h>>0)&0x3f),
		G: uint8(180 + (h>>8)&0x3f),
		B: uint8(180 + (h>>16)&0x3f),
		A: 255,
	}
}
