package ops

import (
	"context"

	"github.com/paulmach/orb/encoding/mvt"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/ops/vector"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// mergedVectorReader decodes every input's MVT tile at a coordinate and
// concatenates same-named layers — spec.md §4.5 from_merged_vector.
type mergedVectorReader struct {
	readers []source.Reader
	pyramid *coord.TileBBoxPyramid
	meta    blob.SourceMetadata
}

func newMergedVectorReader(readers []source.Reader) (source.Reader, error) {
	if len(readers) == 0 {
		return nil, xerrors.New(xerrors.Parse, "from_merged_vector: requires at least one source")
	}
	pyramid := coord.NewPyramid()
	for _, r := range readers {
		for _, z := range r.BBoxPyramid().Levels() {
			pyramid.Set(pyramid.Get(z).Union(r.BBoxPyramid().Get(z)))
		}
	}
	meta := readers[0].Metadata()
	meta.TileFormat = blob.FormatMVT
	return &mergedVectorReader{readers: readers, pyramid: pyramid, meta: meta}, nil
}

func (r *mergedVectorReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	any := false
	inputs := make([][]byte, 0, len(r.readers))
	for _, reader := range r.readers {
		data, ok, err := reader.GetTile(ctx, c)
		if err != nil {
			return blob.Blob{}, false, err
		}
		if !ok {
			continue
		}
		any = true
		inputs = append(inputs, data.Bytes())
	}
	if !any {
		return blob.Blob{}, false, nil
	}

	layerSets := make([]mvt.Layers, 0, len(inputs))
	for _, raw := range inputs {
		layers, err := vector.Decode(raw)
		if err != nil {
			return blob.Blob{}, false, xerrors.Wrap(xerrors.FormatMismatch, "from_merged_vector: decode", err)
		}
		layerSets = append(layerSets, layers)
	}
	merged := vector.Merge(layerSets)
	data, err := vector.Encode(merged)
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Internal, "from_merged_vector: encode", err)
	}
	return blob.New(data), true, nil
}

func (r *mergedVectorReader) Metadata() blob.SourceMetadata {
	m := r.meta
	m.Pyramid = r.pyramid
	return m
}

func (r *mergedVectorReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *mergedVectorReader) SourceType() blob.SourceType {
	inputs := make([]blob.SourceType, len(r.readers))
	for i, reader := range r.readers {
		inputs[i] = reader.SourceType()
	}
	return blob.SourceType{Kind: blob.KindProcessor, Name: "from_merged_vector", Inputs: inputs}
}
