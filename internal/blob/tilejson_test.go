package blob

import "testing"

func TestNewTileJSON_SetsSpecVersionAndDefaultZoomRange(t *testing.T) {
	tj := NewTileJSON()
	if tj.TileJSON != "3.0.0" {
		t.Fatalf("TileJSON = %q, want 3.0.0", tj.TileJSON)
	}
	if tj.MinZoom != 0 || tj.MaxZoom != 14 {
		t.Fatalf("MinZoom/MaxZoom = %d/%d, want 0/14", tj.MinZoom, tj.MaxZoom)
	}
}

func TestTileJSON_CloneIsIndependentOfTheOriginal(t *testing.T) {
	fz := 5
	orig := NewTileJSON()
	orig.FillZoom = &fz
	orig.Tiles = []string{"https://example.com/{z}/{x}/{y}.pbf"}
	orig.VectorLayers = []VectorLayer{{ID: "roads"}}

	clone := orig.Clone()

	*clone.FillZoom = 9
	clone.Tiles[0] = "mutated"
	clone.VectorLayers[0].ID = "mutated"

	if *orig.FillZoom != 5 {
		t.Fatalf("mutating the clone's FillZoom affected the original: %d", *orig.FillZoom)
	}
	if orig.Tiles[0] != "https://example.com/{z}/{x}/{y}.pbf" {
		t.Fatalf("mutating the clone's Tiles affected the original: %v", orig.Tiles)
	}
	if orig.VectorLayers[0].ID != "roads" {
		t.Fatalf("mutating the clone's VectorLayers affected the original: %v", orig.VectorLayers)
	}
}

func TestTileJSON_CloneOfNilFillZoomStaysNil(t *testing.T) {
	orig := NewTileJSON()
	clone := orig.Clone()
	if clone.FillZoom != nil {
		t.Fatal("expected a nil FillZoom to stay nil after Clone")
	}
}
