package ops

import (
	"context"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

func buildPipeline(t *testing.T, src string) source.Reader {
	t.Helper()
	pipeline, err := vpl.Parse(src)
	if err != nil {
		t.Fatalf("vpl.Parse(%q): %v", src, err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate(%q): %v", src, err)
	}
	reader, err := Build(pipeline, &BuildContext{BaseDir: "."})
	if err != nil {
		t.Fatalf("Build(%q): %v", src, err)
	}
	return reader
}

func TestFilter_ClampsLevels(t *testing.T) {
	reader := buildPipeline(t, `from_color color="336699" size=8 format="png" | filter level_min=3 level_max=4`)

	meta := reader.Metadata()
	if meta.MinZoom != 3 || meta.MaxZoom != 4 {
		t.Fatalf("MinZoom/MaxZoom = %d/%d, want 3/4", meta.MinZoom, meta.MaxZoom)
	}

	c, _ := coord.NewTileCoord(5, 0, 0)
	_, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if ok {
		t.Fatal("expected z=5 to be filtered out by level_max=4")
	}

	c2, _ := coord.NewTileCoord(3, 0, 0)
	_, ok2, err := reader.GetTile(context.Background(), c2)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok2 {
		t.Fatal("expected z=3 to pass the filter")
	}
}

func TestMetaUpdate_OverridesTileJSONFields(t *testing.T) {
	reader := buildPipeline(t, `from_color color="336699" size=8 format="png" | meta_update name="demo layer" attribution="Test Co"`)

	tj := reader.Metadata().TileJSON
	if tj.Name != "demo layer" {
		t.Fatalf("TileJSON.Name = %q, want %q", tj.Name, "demo layer")
	}
	if tj.Attribution != "Test Co" {
		t.Fatalf("TileJSON.Attribution = %q, want %q", tj.Attribution, "Test Co")
	}
}

func TestMetaUpdate_LeavesUnsetFieldsAlone(t *testing.T) {
	reader := buildPipeline(t, `from_color color="336699" size=8 format="png" | meta_update attribution="Only Attribution"`)

	tj := reader.Metadata().TileJSON
	if tj.Attribution != "Only Attribution" {
		t.Fatalf("TileJSON.Attribution = %q, want %q", tj.Attribution, "Only Attribution")
	}
	if tj.Name != "" {
		t.Fatalf("TileJSON.Name = %q, want empty (untouched)", tj.Name)
	}
}

func TestRasterFormat_ReencodesToTargetFormatAndUpdatesMetadata(t *testing.T) {
	reader := buildPipeline(t, `from_color color="336699" size=8 format="png" | raster_format format="jpeg" quality="60"`)

	if got := reader.Metadata().TileFormat; got != blob.FormatJPEG {
		t.Fatalf("TileFormat = %v, want JPEG", got)
	}

	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected a tile")
	}
	if data.Len() == 0 {
		t.Fatal("expected non-empty re-encoded payload")
	}
}

func TestRasterFormat_InvalidFormatErrors(t *testing.T) {
	pipeline, err := vpl.Parse(`from_color color="336699" size=8 format="png" | raster_format format="not-a-format"`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}
	if _, err := Build(pipeline, &BuildContext{BaseDir: "."}); err == nil {
		t.Fatal("expected an error building raster_format with an unknown format")
	}
}

func TestRasterLevels_ProducesNonEmptyReencodedTile(t *testing.T) {
	reader := buildPipeline(t, `from_color color="808080" size=8 format="png" | raster_levels brightness=10 contrast=1.2 gamma=0.9`)

	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a non-empty adjusted tile")
	}
}

func TestRasterFlatten_CompositesOntoBackground(t *testing.T) {
	reader := buildPipeline(t, `from_color color="ff0000aa" size=8 format="png" | raster_flatten color=[0,255,0]`)

	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a non-empty flattened tile")
	}
}

func TestRasterOverscale_UpscalesBeyondLevelBase(t *testing.T) {
	reader := buildPipeline(t, `from_color color="336699" size=8 format="png" | raster_overscale level_base=2 level_max=4`)

	base, _ := coord.NewTileCoord(1, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), base)
	if err != nil {
		t.Fatalf("GetTile(base): %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected the pass-through tile at or below level_base to be served")
	}

	over, _ := coord.NewTileCoord(3, 0, 0)
	data2, ok2, err := reader.GetTile(context.Background(), over)
	if err != nil {
		t.Fatalf("GetTile(over): %v", err)
	}
	if !ok2 || data2.Len() == 0 {
		t.Fatal("expected an overscaled (cropped+upscaled) tile between level_base and level_max")
	}

	beyond, _ := coord.NewTileCoord(5, 0, 0)
	_, ok3, err := reader.GetTile(context.Background(), beyond)
	if err != nil {
		t.Fatalf("GetTile(beyond level_max): %v", err)
	}
	if ok3 {
		t.Fatal("expected no tile beyond level_max")
	}
}

func TestRasterOverview_PassesThroughAboveLevelAndRebuildsAtOrBelow(t *testing.T) {
	reader := buildPipeline(t, `from_color color="336699" size=4 format="png" | raster_overview level=1 tile_size=4`)

	above, _ := coord.NewTileCoord(2, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), above)
	if err != nil {
		t.Fatalf("GetTile(above): %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected the pass-through tile above the overview level to be served")
	}

	at, _ := coord.NewTileCoord(1, 0, 0)
	data2, ok2, err := reader.GetTile(context.Background(), at)
	if err != nil {
		t.Fatalf("GetTile(at level): %v", err)
	}
	if !ok2 || data2.Len() == 0 {
		t.Fatal("expected a rebuilt (averaged) tile at the overview level")
	}
}
