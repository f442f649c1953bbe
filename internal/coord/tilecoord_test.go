package coord

import "testing"

func TestCoordRoundTrip(t *testing.T) {
	for z := uint8(0); z <= 12; z++ {
		n := uint32(1) << z
		for x := uint32(0); x < n; x += max32(1, n/7) {
			for y := uint32(0); y < n; y += max32(1, n/7) {
				c := TileCoord{Z: z, X: x, Y: y}
				lon, lat := c.ToGeoCenter()
				got := FromGeo(lon, lat, z)
				if got != c {
					t.Fatalf("round trip mismatch at z=%d: %v -> (%f,%f) -> %v", z, c, lon, lat, got)
				}
			}
		}
	}
}

func TestNewTileCoordValidation(t *testing.T) {
	if _, err := NewTileCoord(3, 8, 0); err == nil {
		t.Fatal("expected error for x out of range")
	}
	if _, err := NewTileCoord(3, 7, 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParentChildren(t *testing.T) {
	c := TileCoord{Z: 5, X: 10, Y: 20}
	children := c.Children()
	for _, child := range children {
		parent, ok := child.Parent()
		if !ok || parent != c {
			t.Fatalf("child %v parent = %v, want %v", child, parent, c)
		}
	}
}
