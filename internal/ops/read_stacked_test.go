package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

func TestFromStacked_ReturnsFirstNonEmptySource(t *testing.T) {
	reader := buildPipeline(t, `from_stacked [from_debug format="png", from_color color="ff0000" size=4 format="png"]`)

	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected the first listed source to win")
	}
}

func TestFromStacked_RejectsMismatchedInputFormats(t *testing.T) {
	pipeline, err := vpl.Parse(`from_stacked [from_debug format="png", from_debug format="mvt"]`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err != nil {
		t.Fatalf("vpl.Validate: %v", err)
	}
	_, err = Build(pipeline, &BuildContext{})
	if err == nil {
		t.Fatal("expected Build to reject from_stacked inputs with mismatched formats")
	}
	if !xerrors.Is(err, xerrors.FormatMismatch) {
		t.Fatalf("error kind = %v, want FormatMismatch", err)
	}
}

func TestFromStackedRaster_CompositesAllSources(t *testing.T) {
	reader := buildPipeline(t, `from_stacked_raster format="png" [from_color color="ff0000" size=4 format="png", from_color color="0000ff80" size=4 format="png"]`)

	c, _ := coord.NewTileCoord(0, 0, 0)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a composited tile")
	}
}

func TestFromMergedVector_ConcatenatesLayersAcrossSources(t *testing.T) {
	reader := buildPipeline(t, `from_merged_vector [from_debug format="mvt", from_debug format="mvt"]`)

	c, _ := coord.NewTileCoord(4, 2, 2)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok || data.Len() == 0 {
		t.Fatal("expected a merged MVT tile")
	}
	if reader.Metadata().TileFormat.String() != "mvt" {
		t.Fatalf("TileFormat = %v, want mvt", reader.Metadata().TileFormat)
	}
}

func TestFromTile_ServesTheSameFixedFileForEveryCoordinate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "marker.png")
	if err := os.WriteFile(path, []byte("fixed-png-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pipeline, err := vpl.Parse(`from_tile filename="marker.png"`)
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

	c1, _ := coord.NewTileCoord(0, 0, 0)
	c2, _ := coord.NewTileCoord(5, 3, 3)
	d1, ok1, err := reader.GetTile(context.Background(), c1)
	if err != nil || !ok1 {
		t.Fatalf("GetTile(c1): ok=%v err=%v", ok1, err)
	}
	d2, ok2, err := reader.GetTile(context.Background(), c2)
	if err != nil || !ok2 {
		t.Fatalf("GetTile(c2): ok=%v err=%v", ok2, err)
	}
	if string(d1.Bytes()) != "fixed-png-bytes" || string(d2.Bytes()) != string(d1.Bytes()) {
		t.Fatal("expected the same fixed file content at every coordinate")
	}
}

func TestFromStacked_RequiresAtLeastOneSource(t *testing.T) {
	pipeline, err := vpl.Parse(`from_stacked`)
	if err != nil {
		t.Fatalf("vpl.Parse: %v", err)
	}
	if err := vpl.Validate(pipeline, Registry()); err == nil {
		t.Fatal("expected validation to reject from_stacked with zero sources")
	}
}
