package ops

import (
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
)

var transformSpecs = map[string]vpl.OperationSpec{
	"filter": {
		Name:    "filter",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "bbox", Kind: vpl.ParamList},
			{Name: "level_min", Kind: vpl.ParamNumber},
			{Name: "level_max", Kind: vpl.ParamNumber},
		},
	},
	"raster_format": {
		Name:    "raster_format",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "format", Kind: vpl.ParamString, Required: true},
			{Name: "quality", Kind: vpl.ParamString},
			{Name: "speed", Kind: vpl.ParamNumber},
		},
	},
	"raster_levels": {
		Name:    "raster_levels",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "brightness", Kind: vpl.ParamNumber},
			{Name: "contrast", Kind: vpl.ParamNumber},
			{Name: "gamma", Kind: vpl.ParamNumber},
		},
	},
	"raster_flatten": {
		Name:    "raster_flatten",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "color", Kind: vpl.ParamList, Required: true},
		},
	},
	"raster_mask": {
		Name:    "raster_mask",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "geojson", Kind: vpl.ParamString, Required: true},
			{Name: "buffer", Kind: vpl.ParamNumber},
			{Name: "blur", Kind: vpl.ParamNumber},
			{Name: "blur_function", Kind: vpl.ParamString},
		},
	},
	"raster_overscale": {
		Name:    "raster_overscale",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "level_base", Kind: vpl.ParamNumber, Required: true},
			{Name: "level_max", Kind: vpl.ParamNumber, Required: true},
			{Name: "enable_climbing", Kind: vpl.ParamBool},
		},
	},
	"raster_overview": {
		Name:    "raster_overview",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "level", Kind: vpl.ParamNumber, Required: true},
			{Name: "tile_size", Kind: vpl.ParamNumber},
		},
	},
	"dem_quantize": {
		Name:    "dem_quantize",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "resolution_ratio", Kind: vpl.ParamNumber},
			{Name: "max_gradient_error", Kind: vpl.ParamNumber},
			{Name: "encoding", Kind: vpl.ParamString},
		},
	},
	"vector_filter_layers": {
		Name:    "vector_filter_layers",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "filter", Kind: vpl.ParamString, Required: true},
			{Name: "invert", Kind: vpl.ParamBool},
		},
	},
	"vector_filter_properties": {
		Name:    "vector_filter_properties",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "regex", Kind: vpl.ParamString, Required: true},
			{Name: "invert", Kind: vpl.ParamBool},
		},
	},
	"vector_update_properties": {
		Name:    "vector_update_properties",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "data_source_path", Kind: vpl.ParamString, Required: true},
			{Name: "layer_name", Kind: vpl.ParamString, Required: true},
			{Name: "id_field_tiles", Kind: vpl.ParamString, Required: true},
			{Name: "id_field_data", Kind: vpl.ParamString, Required: true},
			{Name: "replace_properties", Kind: vpl.ParamBool},
			{Name: "remove_non_matching", Kind: vpl.ParamBool},
			{Name: "include_id", Kind: vpl.ParamBool},
			{Name: "field_separator", Kind: vpl.ParamString},
			{Name: "decimal_separator", Kind: vpl.ParamString},
		},
	},
	"meta_update": {
		Name:    "meta_update",
		Sources: vpl.Exactly(0),
		Params: []vpl.ParamSpec{
			{Name: "attribution", Kind: vpl.ParamString},
			{Name: "bounds", Kind: vpl.ParamList},
			{Name: "center", Kind: vpl.ParamList},
			{Name: "description", Kind: vpl.ParamString},
			{Name: "fillzoom", Kind: vpl.ParamNumber},
			{Name: "legend", Kind: vpl.ParamString},
			{Name: "name", Kind: vpl.ParamString},
			{Name: "schema", Kind: vpl.ParamString},
		},
	},
}

// buildTransform dispatches one piped transform stage onto upstream.
func buildTransform(op vpl.Operation, upstream source.Reader, ctx *BuildContext) (source.Reader, error) {
	switch op.Name {
	case "filter":
		return buildFilter(op, upstream)
	case "raster_format":
		return buildRasterFormat(op, upstream)
	case "raster_levels":
		return buildRasterLevels(op, upstream)
	case "raster_flatten":
		return buildRasterFlatten(op, upstream)
	case "raster_mask":
		return buildRasterMask(op, upstream, ctx)
	case "raster_overscale":
		return buildRasterOverscale(op, upstream)
	case "raster_overview":
		return buildRasterOverview(op, upstream)
	case "dem_quantize":
		return buildDEMQuantize(op, upstream)
	case "vector_filter_layers":
		return buildVectorFilterLayers(op, upstream)
	case "vector_filter_properties":
		return buildVectorFilterProperties(op, upstream)
	case "vector_update_properties":
		return buildVectorUpdateProperties(op, upstream, ctx)
	case "meta_update":
		return buildMetaUpdate(op, upstream)
	default:
		return nil, &vpl.UnknownOperationError{Name: op.Name, Line: op.Line, Col: op.Col}
	}
}

// floatListArg converts a parsed list argument into a []float64, skipping
// values that are not numbers.
func floatListArg(op vpl.Operation, key string) []float64 {
	vals := op.ListArg(key)
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}
