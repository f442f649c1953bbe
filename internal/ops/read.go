package ops

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/container"
	"github.com/versatiles-org/versatiles-go/internal/container/dir"
	"github.com/versatiles-org/versatiles-go/internal/container/mbtiles"
	"github.com/versatiles-org/versatiles-go/internal/container/pmtiles"
	"github.com/versatiles-org/versatiles-go/internal/container/remote"
	"github.com/versatiles-org/versatiles-go/internal/container/tar"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

var readSpecs = map[string]vpl.OperationSpec{
	"from_container": {
		Name:    "from_container",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "filename", Kind: vpl.ParamString, Required: true},
			{Name: "format", Kind: vpl.ParamString},
			{Name: "compression", Kind: vpl.ParamString},
		},
	},
	"from_color": {
		Name:    "from_color",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "color", Kind: vpl.ParamString, Required: true},
			{Name: "size", Kind: vpl.ParamNumber},
			{Name: "format", Kind: vpl.ParamString},
		},
	},
	"from_debug": {
		Name:    "from_debug",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "format", Kind: vpl.ParamString, Required: true},
		},
	},
	"from_tile": {
		Name:    "from_tile",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "filename", Kind: vpl.ParamString, Required: true},
		},
	},
	"from_tilejson": {
		Name:    "from_tilejson",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "url", Kind: vpl.ParamString, Required: true},
			{Name: "max_retries", Kind: vpl.ParamNumber},
			{Name: "max_concurrent_requests", Kind: vpl.ParamNumber},
		},
	},
	"from_stacked": {
		Name:    "from_stacked",
		Sources: vpl.AtLeast(1),
	},
	"from_stacked_raster": {
		Name:    "from_stacked_raster",
		Sources: vpl.AtLeast(1),
		Params: []vpl.ParamSpec{
			{Name: "format", Kind: vpl.ParamString},
			{Name: "auto_overscale", Kind: vpl.ParamBool},
		},
	},
	"from_merged_vector": {
		Name:    "from_merged_vector",
		Sources: vpl.AtLeast(1),
	},
	"from_gdal_raster": {
		Name:    "from_gdal_raster",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "filename", Kind: vpl.ParamString, Required: true},
			{Name: "tile_size", Kind: vpl.ParamNumber},
			{Name: "tile_format", Kind: vpl.ParamString},
			{Name: "level_min", Kind: vpl.ParamNumber},
			{Name: "level_max", Kind: vpl.ParamNumber},
			{Name: "gdal_reuse_limit", Kind: vpl.ParamNumber},
			{Name: "gdal_concurrency_limit", Kind: vpl.ParamNumber},
		},
	},
}

// BuildContext carries the state a read operation needs beyond its own
// arguments: the directory relative paths resolve against, and the shared
// HTTP client used by network-backed readers.
type BuildContext struct {
	BaseDir    string
	HTTPClient *http.Client
}

func (c *BuildContext) resolve(path string) string {
	if filepath.IsAbs(path) || strings.Contains(path, "://") {
		return path
	}
	return filepath.Join(c.BaseDir, path)
}

func (c *BuildContext) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// buildRead dispatches a read operation (the first stage of a pipeline) to
// its constructor.
func buildRead(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	switch op.Name {
	case "from_container":
		return buildFromContainer(op, ctx)
	case "from_color":
		return buildFromColor(op, ctx)
	case "from_debug":
		return buildFromDebug(op, ctx)
	case "from_tile":
		return buildFromTile(op, ctx)
	case "from_tilejson":
		return buildFromTileJSON(op, ctx)
	case "from_stacked":
		return buildFromStacked(op, ctx)
	case "from_stacked_raster":
		return buildFromStackedRaster(op, ctx)
	case "from_merged_vector":
		return buildFromMergedVector(op, ctx)
	case "from_gdal_raster":
		return buildFromGDALRaster(op, ctx)
	default:
		return nil, &vpl.UnknownOperationError{Name: op.Name, Line: op.Line, Col: op.Col}
	}
}

func buildFromContainer(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	filename := op.StringArg("filename", "")
	format, _ := blob.ParseFormat(op.StringArg("format", "png"))
	comp, _ := blob.ParseCompression(op.StringArg("compression", "none"))

	if strings.HasPrefix(filename, "http://") || strings.HasPrefix(filename, "https://") {
		return openRemoteContainer(filename, ctx)
	}

	path := ctx.resolve(filename)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".versatiles":
		return container.OpenFile(path)
	case ".mbtiles":
		return mbtiles.Open(path)
	case ".pmtiles":
		return pmtiles.OpenFile(path)
	case ".tar":
		return tar.Open(path, format, comp)
	default:
		info, err := os.Stat(path)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.NotFound, fmt.Sprintf("from_container: %s", path), err)
		}
		if info.IsDir() {
			return dir.Open(path, format, comp), nil
		}
		return nil, xerrors.New(xerrors.FormatMismatch, fmt.Sprintf("from_container: unrecognized container %q", path))
	}
}

func openRemoteContainer(url string, ctx *BuildContext) (source.Reader, error) {
	backend, err := remote.Open(url, ctx.client())
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(url)); ext {
	case ".pmtiles":
		return pmtiles.Open(backend)
	default:
		return container.Open(backend)
	}
}

func buildFromColor(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	colorStr := op.StringArg("color", "")
	size := int(op.FloatArg("size", 256))
	format, ok := blob.ParseFormat(op.StringArg("format", "png"))
	if !ok {
		return nil, &vpl.InvalidParameterValueError{Operation: op.Name, Param: "format", Value: op.StringArg("format", ""), Line: op.Line, Col: op.Col}
	}
	return newColorReader(colorStr, size, format)
}

func buildFromDebug(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	format, ok := blob.ParseFormat(op.StringArg("format", ""))
	if !ok {
		return nil, &vpl.InvalidParameterValueError{Operation: op.Name, Param: "format", Value: op.StringArg("format", ""), Line: op.Line, Col: op.Col}
	}
	return newDebugReader(format), nil
}

func buildFromTile(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	path := ctx.resolve(op.StringArg("filename", ""))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.NotFound, fmt.Sprintf("from_tile: %s", path), err)
	}
	format := formatFromExtension(filepath.Ext(path))
	return newStaticTileReader(blob.New(data), format), nil
}

func formatFromExtension(ext string) blob.TileFormat {
	switch strings.ToLower(ext) {
	case ".png":
		return blob.FormatPNG
	case ".jpg", ".jpeg":
		return blob.FormatJPEG
	case ".webp":
		return blob.FormatWebP
	case ".pbf", ".mvt":
		return blob.FormatMVT
	default:
		return blob.FormatBin
	}
}

func buildFromTileJSON(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	url := op.StringArg("url", "")
	maxRetries := int(op.FloatArg("max_retries", 3))
	maxConcurrent := int(op.FloatArg("max_concurrent_requests", 8))
	return newTileJSONReader(context.Background(), url, ctx.client(), maxRetries, maxConcurrent)
}

func buildFromStacked(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	readers, err := buildSources(op.Sources, ctx)
	if err != nil {
		return nil, err
	}
	return newStackedReader(readers)
}

func buildFromStackedRaster(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	readers, err := buildSources(op.Sources, ctx)
	if err != nil {
		return nil, err
	}
	format, _ := blob.ParseFormat(op.StringArg("format", ""))
	autoOverscale := op.BoolArg("auto_overscale", false)
	return newStackedRasterReader(readers, format, autoOverscale)
}

func buildFromMergedVector(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	readers, err := buildSources(op.Sources, ctx)
	if err != nil {
		return nil, err
	}
	return newMergedVectorReader(readers)
}

func buildFromGDALRaster(op vpl.Operation, ctx *BuildContext) (source.Reader, error) {
	filename := ctx.resolve(op.StringArg("filename", ""))
	tileSize := int(op.FloatArg("tile_size", 256))
	tileFormat, _ := blob.ParseFormat(op.StringArg("tile_format", "png"))
	reuseLimit := int(op.FloatArg("gdal_reuse_limit", 64))
	concurrencyLimit := int(op.FloatArg("gdal_concurrency_limit", 4))

	_, levelMinSet := op.Arg("level_min")
	_, levelMaxSet := op.Arg("level_max")
	levelMin := uint8(op.FloatArg("level_min", 0))
	levelMax := uint8(op.FloatArg("level_max", 14))

	return newGDALRasterReader(gdalRasterOptions{
		Filename:         filename,
		TileSize:         tileSize,
		TileFormat:       tileFormat,
		LevelMin:         levelMin,
		LevelMax:         levelMax,
		AutoLevelMin:     !levelMinSet,
		AutoLevelMax:     !levelMaxSet,
		ReuseLimit:       reuseLimit,
		ConcurrencyLimit: concurrencyLimit,
	})
}

// buildSources builds every nested pipeline in a source_list, applying
// transforms in order after its read operation.
func buildSources(pipelines []vpl.Pipeline, ctx *BuildContext) ([]source.Reader, error) {
	readers := make([]source.Reader, 0, len(pipelines))
	for _, p := range pipelines {
		r, err := Build(p, ctx)
		if err != nil {
			return nil, err
		}
		readers = append(readers, r)
	}
	return readers, nil
}

// Build constructs the full source.Reader graph for a parsed pipeline: the
// first operation's reader, piped through each subsequent transform.
func Build(p vpl.Pipeline, ctx *BuildContext) (source.Reader, error) {
	if len(p.Operations) == 0 {
		return nil, xerrors.New(xerrors.Parse, "ops: empty pipeline")
	}
	reader, err := buildRead(p.Operations[0], ctx)
	if err != nil {
		return nil, err
	}
	for _, op := range p.Operations[1:] {
		reader, err = buildTransform(op, reader, ctx)
		if err != nil {
			return nil, err
		}
	}
	return reader, nil
}
