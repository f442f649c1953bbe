package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/ops/vector"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

func TestVectorFilterLayers_DropsNamedLayer(t *testing.T) {
	reader := buildPipeline(t, `from_debug format="mvt" | vector_filter_layers filter="debug"`)

	c, _ := coord.NewTileCoord(3, 1, 1)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		t.Fatalf("vector.Decode: %v", err)
	}
	if len(layers) != 0 {
		t.Fatalf("expected the debug layer to be dropped, got %d layers", len(layers))
	}
}

func TestVectorFilterLayers_InvertKeepsOnlyNamed(t *testing.T) {
	reader := buildPipeline(t, `from_debug format="mvt" | vector_filter_layers filter="debug" invert=true`)

	c, _ := coord.NewTileCoord(3, 1, 1)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		t.Fatalf("vector.Decode: %v", err)
	}
	if len(layers) != 1 || layers[0].Name != "debug" {
		t.Fatalf("expected exactly the debug layer to survive, got %v", layers)
	}
}

func TestVectorFilterProperties_RemovesMatchingKey(t *testing.T) {
	reader := buildPipeline(t, `from_debug format="mvt" | vector_filter_properties regex="debug/label"`)

	c, _ := coord.NewTileCoord(3, 1, 1)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		t.Fatalf("vector.Decode: %v", err)
	}
	if len(layers) != 1 || len(layers[0].Features) != 1 {
		t.Fatalf("expected one layer with one feature, got %v", layers)
	}
	if _, has := layers[0].Features[0].Properties["label"]; has {
		t.Fatal("expected the label property to be removed")
	}
}

func TestVectorUpdateProperties_JoinsByTileSideID(t *testing.T) {
	c0, _ := coord.NewTileCoord(3, 1, 1)
	label := "3/1/1"

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "extra.csv")
	content := "id,region\n" + label + ",somewhere\n"
	if err := os.WriteFile(csvPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	pipeline, err := vpl.Parse(`from_debug format="mvt" | vector_update_properties data_source_path="extra.csv" layer_name="debug" id_field_tiles="label" id_field_data="id" include_id=true`)
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

	data, ok, err := reader.GetTile(context.Background(), c0)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		t.Fatalf("vector.Decode: %v", err)
	}
	if len(layers) != 1 || len(layers[0].Features) != 1 {
		t.Fatalf("expected one layer with one feature, got %v", layers)
	}
	props := layers[0].Features[0].Properties
	if props["region"] != "somewhere" {
		t.Fatalf("expected joined region property, got %v", props)
	}
}

