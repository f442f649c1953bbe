package ops

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

// terrariumReader serves one fixed elevation-encoded DEM tile for every
// requested coordinate, for exercising dem_quantize without a real source.
type terrariumReader struct {
	payload blob.Blob
	pyramid *coord.TileBBoxPyramid
}

func newTerrariumReader(t *testing.T, elevation float64, size int) *terrariumReader {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	c := encode.ElevationToTerrarium(elevation)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	enc, err := encode.NewEncoder("terrarium", 90)
	if err != nil {
		t.Fatalf("NewEncoder(terrarium): %v", err)
	}
	data, err := enc.Encode(img)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	pyramid := coord.NewPyramid()
	for z := uint8(0); z <= 10; z++ {
		n := uint32(1) << z
		pyramid.Set(coord.NewTileBBox(z, 0, 0, n-1, n-1))
	}
	return &terrariumReader{payload: blob.New(data), pyramid: pyramid}
}

func (r *terrariumReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	return r.payload, true, nil
}
func (r *terrariumReader) Metadata() blob.SourceMetadata {
	return blob.SourceMetadata{TileFormat: blob.FormatPNG, Pyramid: r.pyramid}
}
func (r *terrariumReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }
func (r *terrariumReader) SourceType() blob.SourceType         { return blob.SourceType{Name: "terrarium-fixture"} }

func TestDEMQuantize_RoundTripsWithinBound(t *testing.T) {
	upstream := newTerrariumReader(t, 1234.5, 8)

	pipeline, err := vpl.Parse(`dem_quantize resolution_ratio=0.001 max_gradient_error=1`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	op := pipeline.Operations[0]
	reader, err := buildDEMQuantize(op, upstream)
	if err != nil {
		t.Fatalf("buildDEMQuantize: %v", err)
	}

	c, _ := coord.NewTileCoord(5, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a non-empty quantized DEM tile")
	}

	img, err := encode.DecodeImage(data.Bytes(), "terrarium")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	_, _, _, a := img.At(0, 0).RGBA()
	if uint8(a>>8) != 255 {
		t.Fatal("expected an opaque terrarium tile")
	}
}

func writeGeoJSONFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.geojson")
	const fc = `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[-10, -10], [10, -10], [10, 10], [-10, 10], [-10, -10]]]
			}
		}]
	}`
	if err := os.WriteFile(path, []byte(fc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func TestRasterMask_AppliesAlphaInsideAndOutsidePolygon(t *testing.T) {
	dir := writeGeoJSONFixture(t)

	pipeline, err := vpl.Parse(`raster_mask geojson="mask.geojson" buffer=0 blur=1000`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	op := pipeline.Operations[0]

	var upstream source.Reader = newColorReaderForTest(t)
	reader, err := buildRasterMask(op, upstream, &BuildContext{BaseDir: dir})
	if err != nil {
		t.Fatalf("buildRasterMask: %v", err)
	}

	// z=0,x=0,y=0 covers the whole world, so the tile spans far outside
	// the small polygon around the origin — some pixels should end up
	// fully masked out (alpha 0) and some near the origin should not.
	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a non-empty masked tile")
	}

	img, err := encode.DecodeImage(data.Bytes(), "png")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	_, _, _, aCorner := img.At(b.Min.X, b.Min.Y).RGBA()
	_, _, _, aCenter := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	if uint8(aCorner>>8) == uint8(aCenter>>8) {
		t.Fatal("expected the mask to distinguish inside-polygon from far-outside pixels")
	}
}

func newColorReaderForTest(t *testing.T) source.Reader {
	t.Helper()
	r, err := newColorReader("336699", 256, blob.FormatPNG)
	if err != nil {
		t.Fatalf("newColorReader: %v", err)
	}
	return r
}
