package cog

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// writeStripTIFF hand-builds a minimal uncompressed, single-strip, 1-band
// 8-bit TIFF (plus a TFW sidecar), the same strip-based layout Open promotes
// into a virtual tile via promoteStripsToTiles.
func writeStripTIFF(t *testing.T, dir string, width, height int, fill byte, pixelSize float64) string {
	t.Helper()

	pixels := make([]byte, width*height)
	for i := range pixels {
		pixels[i] = fill
	}

	const ifdOffset = 8
	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	entries := []entry{
		{256, 3, 1, uint32(width)},
		{257, 3, 1, uint32(height)},
		{258, 3, 1, 8},
		{259, 3, 1, 1},
		{262, 3, 1, 1},
		{273, 4, 1, 0}, // StripOffsets, patched below
		{277, 3, 1, 1},
		{278, 4, 1, uint32(height)},
		{279, 4, 1, uint32(width * height)},
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
	binary.LittleEndian.PutUint32(buf[off:off+4], 0)
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

func TestOpen_PromotesAStripBasedTIFFIntoASingleVirtualTile(t *testing.T) {
	dir := t.TempDir()
	path := writeStripTIFF(t, dir, 64, 64, 128, 100)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Width() != 64 || r.Height() != 64 {
		t.Fatalf("Width/Height = %d/%d, want 64/64", r.Width(), r.Height())
	}
	if r.PixelSize() != 100 {
		t.Fatalf("PixelSize() = %v, want 100", r.PixelSize())
	}
	if r.IFDCount() != 1 || r.NumOverviews() != 0 {
		t.Fatalf("IFDCount/NumOverviews = %d/%d, want 1/0", r.IFDCount(), r.NumOverviews())
	}

	minX, minY, maxX, maxY := r.BoundsInCRS()
	if minX != 0 || maxY != 0 || maxX != 6400 || minY != -6400 {
		t.Fatalf("BoundsInCRS = (%v,%v,%v,%v), want (0,-6400,6400,0)", minX, minY, maxX, maxY)
	}
}

func TestReadTile_ReturnsTheUniformFillValue(t *testing.T) {
	dir := t.TempDir()
	path := writeStripTIFF(t, dir, 64, 64, 200, 100)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	img, err := r.ReadTile(0, 0, 0)
	if err != nil {
		t.Fatalf("ReadTile: %v", err)
	}
	rr, gg, bb, _ := img.At(10, 10).RGBA()
	if uint8(rr>>8) != 200 || uint8(gg>>8) != 200 || uint8(bb>>8) != 200 {
		t.Fatalf("pixel(10,10) = (%d,%d,%d), want (200,200,200)", rr>>8, gg>>8, bb>>8)
	}
}

func TestSampleBilinear_ClampsToImageBoundsOutsideRange(t *testing.T) {
	dir := t.TempDir()
	path := writeStripTIFF(t, dir, 64, 64, 200, 100)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	rr, gg, bb, _, err := r.SampleBilinear(0, -5, -5)
	if err != nil {
		t.Fatalf("SampleBilinear: %v", err)
	}
	if rr != 200 || gg != 200 || bb != 200 {
		t.Fatalf("SampleBilinear(-5,-5) = (%d,%d,%d), want clamped to (200,200,200)", rr, gg, bb)
	}
}

func TestOverviewForZoom_PicksTheOnlyAvailableLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeStripTIFF(t, dir, 64, 64, 100, 100)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if got := r.OverviewForZoom(50); got != 0 {
		t.Fatalf("OverviewForZoom(50) = %d, want 0 (only one level exists)", got)
	}
}
