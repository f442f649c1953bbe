package ops

import (
	"context"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

func TestBuildFromColor_ServesSolidTile(t *testing.T) {
	pipeline, err := vpl.Parse(`from_color color="ff0000" size=16 format="png"`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}

	reader, err := Build(pipeline, &BuildContext{BaseDir: "."})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c, err := coord.NewTileCoord(3, 0, 0)
	if err != nil {
		t.Fatalf("NewTileCoord: %v", err)
	}
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected a tile for a coordinate within the static color pyramid")
	}
	if data.Len() == 0 {
		t.Fatal("expected non-empty encoded PNG payload")
	}

	meta := reader.Metadata()
	if meta.TileFormat != blob.FormatPNG {
		t.Fatalf("TileFormat = %v, want PNG", meta.TileFormat)
	}
}

func TestBuildFromColor_InvalidColorErrors(t *testing.T) {
	pipeline, err := vpl.Parse(`from_color color="not-a-color"`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}
	if _, err := Build(pipeline, &BuildContext{BaseDir: "."}); err == nil {
		t.Fatal("expected an error building from_color with an invalid color")
	}
}

func TestBuildFromDebug_LabelsEachTileDistinctly(t *testing.T) {
	pipeline, err := vpl.Parse(`from_debug format="png"`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}
	reader, err := Build(pipeline, &BuildContext{BaseDir: "."})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c1, _ := coord.NewTileCoord(5, 1, 1)
	c2, _ := coord.NewTileCoord(5, 2, 2)
	d1, ok1, err := reader.GetTile(context.Background(), c1)
	if err != nil || !ok1 {
		t.Fatalf("GetTile(c1): ok=%v err=%v", ok1, err)
	}
	d2, ok2, err := reader.GetTile(context.Background(), c2)
	if err != nil || !ok2 {
		t.Fatalf("GetTile(c2): ok=%v err=%v", ok2, err)
	}
	if string(d1.Bytes()) == string(d2.Bytes()) {
		t.Fatal("expected distinct tiles at distinct coordinates")
	}
}

func TestUnknownOperationError(t *testing.T) {
	pipeline, err := vpl.Parse(`from_nonexistent_thing`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	err = vpl.Validate(pipeline, Registry())
	if err == nil {
		t.Fatal("expected validation to reject an unknown operation")
	}
}
