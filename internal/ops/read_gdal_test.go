package ops

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

// writeMinimalGeoTIFF hand-builds a tiny uncompressed, single-strip,
// single-band 8-bit GeoTIFF plus a TFW sidecar, the same layout the teacher's
// GDAL-backed reader is generalized from: a strip-based TIFF promoted to a
// single virtual tile by internal/cog.
func writeMinimalGeoTIFF(t *testing.T, dir string, width, height int, value byte, pixelSize float64) string {
	t.Helper()

	pixels := make([]byte, width*height)
	for i := range pixels {
		pixels[i] = value
	}

	const ifdOffset = 8
	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	entries := []entry{
		{256, 3, 1, uint32(width)},        // ImageWidth
		{257, 3, 1, uint32(height)},       // ImageLength
		{258, 3, 1, 8},                    // BitsPerSample
		{259, 3, 1, 1},                    // Compression: none
		{262, 3, 1, 1},                    // Photometric: BlackIsZero
		{273, 4, 1, 0},                    // StripOffsets (patched below)
		{277, 3, 1, 1},                    // SamplesPerPixel
		{278, 4, 1, uint32(height)},       // RowsPerStrip
		{279, 4, 1, uint32(width * height)}, // StripByteCounts
	}
	ifdSize := 2 + len(entries)*12 + 4
	stripOffset := ifdOffset + ifdSize
	for i := range entries {
		if entries[i].tag == 273 {
			entries[i].value = uint32(stripOffset)
		}
	}

	buf := make([]byte, stripOffset+len(pixels))
	copy(buf[0:2], []byte("II"))
	binary.LittleEndian.PutUint16(buf[2:4], 42)
	binary.LittleEndian.PutUint32(buf[4:8], ifdOffset)

	binary.LittleEndian.PutUint16(buf[ifdOffset:ifdOffset+2], uint16(len(entries)))
	off := ifdOffset + 2
	for _, e := range entries {
		binary.LittleEndian.PutUint16(buf[off:off+2], e.tag)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], e.typ)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.count)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.value)
		off += 12
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], 0) // next IFD offset
	copy(buf[stripOffset:], pixels)

	path := filepath.Join(dir, "source.tif")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile tif: %v", err)
	}

	half := pixelSize / 2
	tfw := ""
	for _, v := range []float64{pixelSize, 0, 0, -pixelSize, half, -half} {
		tfw += strconv.FormatFloat(v, 'f', -1, 64) + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "source.tfw"), []byte(tfw), 0o644); err != nil {
		t.Fatalf("WriteFile tfw: %v", err)
	}

	return path
}

func TestFromGDALRaster_ServesATileInsideTheDatasetPyramid(t *testing.T) {
	dir := t.TempDir()
	writeMinimalGeoTIFF(t, dir, 64, 64, 128, 100)

	pipeline, err := vpl.Parse(`from_gdal_raster filename="source.tif" tile_size=32 tile_format="png" level_min=0 level_max=4`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}
	reader, err := Build(pipeline, &BuildContext{BaseDir: dir})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a rendered, encoded tile")
	}

	meta := reader.Metadata()
	if meta.MinZoom != 0 || meta.MaxZoom != 4 {
		t.Fatalf("MinZoom/MaxZoom = %d/%d, want 0/4", meta.MinZoom, meta.MaxZoom)
	}
}

func TestFromGDALRaster_RejectsTilesAboveLevelMax(t *testing.T) {
	dir := t.TempDir()
	writeMinimalGeoTIFF(t, dir, 64, 64, 128, 100)

	pipeline, err := vpl.Parse(`from_gdal_raster filename="source.tif" tile_size=32 tile_format="png" level_min=0 level_max=2`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}
	reader, err := Build(pipeline, &BuildContext{BaseDir: dir})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c, _ := coord.NewTileCoord(5, 10, 10)
	_, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false above level_max")
	}
}
