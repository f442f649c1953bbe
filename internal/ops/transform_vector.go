package ops

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/ops/vector"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/vpl"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// vectorFilterLayersReader drops (or keeps, if invert) named layers —
// spec.md §4.6 vector_filter_layers.
type vectorFilterLayersReader struct {
	upstream source.Reader
	names    []string
	invert   bool
}

func buildVectorFilterLayers(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	raw := op.StringArg("filter", "")
	names := strings.Split(raw, ",")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	return &vectorFilterLayersReader{upstream: upstream, names: names, invert: op.BoolArg("invert", false)}, nil
}

func (r *vectorFilterLayersReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	data, ok, err := r.upstream.GetTile(ctx, c)
	if err != nil || !ok {
		return blob.Blob{}, ok, err
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "vector_filter_layers: decode", err)
	}
	out, err := vector.Encode(vector.FilterLayers(layers, r.names, r.invert))
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "vector_filter_layers: encode", err)
	}
	return blob.New(out), true, nil
}

func (r *vectorFilterLayersReader) Metadata() blob.SourceMetadata        { return r.upstream.Metadata() }
func (r *vectorFilterLayersReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.upstream.BBoxPyramid() }
func (r *vectorFilterLayersReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "vector_filter_layers", Input: ptr(r.upstream.SourceType())}
}

// vectorFilterPropertiesReader removes (or keeps, if invert) properties
// whose "{layer}/{key}" matches regex — spec.md §4.6 vector_filter_properties.
type vectorFilterPropertiesReader struct {
	upstream source.Reader
	re       *regexp.Regexp
	invert   bool
}

func buildVectorFilterProperties(op vpl.Operation, upstream source.Reader) (source.Reader, error) {
	pattern := op.StringArg("regex", "")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &vpl.InvalidParameterValueError{Operation: op.Name, Param: "regex", Value: pattern, Line: op.Line, Col: op.Col}
	}
	return &vectorFilterPropertiesReader{upstream: upstream, re: re, invert: op.BoolArg("invert", false)}, nil
}

func (r *vectorFilterPropertiesReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	data, ok, err := r.upstream.GetTile(ctx, c)
	if err != nil || !ok {
		return blob.Blob{}, ok, err
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "vector_filter_properties: decode", err)
	}
	vector.FilterProperties(layers, r.re, r.invert)
	out, err := vector.Encode(layers)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "vector_filter_properties: encode", err)
	}
	return blob.New(out), true, nil
}

func (r *vectorFilterPropertiesReader) Metadata() blob.SourceMetadata { return r.upstream.Metadata() }
func (r *vectorFilterPropertiesReader) BBoxPyramid() *coord.TileBBoxPyramid {
	return r.upstream.BBoxPyramid()
}
func (r *vectorFilterPropertiesReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "vector_filter_properties", Input: ptr(r.upstream.SourceType())}
}

// vectorUpdatePropertiesReader joins a layer's features against an
// in-memory CSV/TSV index built once at open time — spec.md §4.6
// vector_update_properties.
type vectorUpdatePropertiesReader struct {
	upstream          source.Reader
	layerName         string
	idFieldTiles      string
	index             map[string]vector.DataRow
	replace           bool
	removeNonMatching bool
	includeID         bool
}

func buildVectorUpdateProperties(op vpl.Operation, upstream source.Reader, ctx *BuildContext) (source.Reader, error) {
	path := ctx.resolve(op.StringArg("data_source_path", ""))
	sep := op.StringArg("field_separator", ",")
	idFieldData := op.StringArg("id_field_data", "")

	index, err := loadDataIndex(path, sep, idFieldData)
	if err != nil {
		return nil, err
	}

	return &vectorUpdatePropertiesReader{
		upstream:          upstream,
		layerName:         op.StringArg("layer_name", ""),
		idFieldTiles:      op.StringArg("id_field_tiles", ""),
		index:             index,
		replace:           op.BoolArg("replace_properties", false),
		removeNonMatching: op.BoolArg("remove_non_matching", false),
		includeID:         op.BoolArg("include_id", false),
	}, nil
}

func loadDataIndex(path, sep, idField string) (map[string]vector.DataRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.NotFound, "vector_update_properties: "+path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if sep == "" {
		sep = ","
	}
	reader.Comma = rune(sep[0])
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Parse, "vector_update_properties: reading "+path, err)
	}
	if len(rows) == 0 {
		return map[string]vector.DataRow{}, nil
	}

	header := rows[0]
	idCol := -1
	for i, h := range header {
		if h == idField {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return nil, xerrors.New(xerrors.Parse, fmt.Sprintf("vector_update_properties: id_field_data %q not found in %s", idField, path))
	}

	index := make(map[string]vector.DataRow, len(rows)-1)
	for _, row := range rows[1:] {
		if idCol >= len(row) {
			continue
		}
		data := make(vector.DataRow, len(header))
		for i, h := range header {
			if i < len(row) {
				data[h] = row[i]
			}
		}
		index[row[idCol]] = data
	}
	return index, nil
}

func (r *vectorUpdatePropertiesReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	data, ok, err := r.upstream.GetTile(ctx, c)
	if err != nil || !ok {
		return blob.Blob{}, ok, err
	}
	layers, err := vector.Decode(data.Bytes())
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "vector_update_properties: decode", err)
	}
	vector.UpdateProperties(layers, r.layerName, r.idFieldTiles, r.index, r.replace, r.removeNonMatching, r.includeID)
	out, err := vector.Encode(layers)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "vector_update_properties: encode", err)
	}
	return blob.New(out), true, nil
}

func (r *vectorUpdatePropertiesReader) Metadata() blob.SourceMetadata { return r.upstream.Metadata() }
func (r *vectorUpdatePropertiesReader) BBoxPyramid() *coord.TileBBoxPyramid {
	return r.upstream.BBoxPyramid()
}
func (r *vectorUpdatePropertiesReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindProcessor, Name: "vector_update_properties", Input: ptr(r.upstream.SourceType())}
}
