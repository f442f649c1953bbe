package blob

import "github.com/versatiles-org/versatiles-go/internal/coord"

// SourceMetadata is the resolved metadata of any TileReader: its payload
// format/compression, the zoom range it covers, its full TileJSON document,
// and the bbox pyramid that enumerates exactly which tiles exist.
type SourceMetadata struct {
	TileFormat      TileFormat
	TileCompression TileCompression
	MinZoom         uint8
	MaxZoom         uint8
	TileJSON        TileJSON
	Pyramid         *coord.TileBBoxPyramid
}

// SourceKind classifies a node in the operation graph for inspection/errors.
type SourceKind string

const (
	KindContainer SourceKind = "container"
	KindProcessor SourceKind = "processor"
	KindStatic    SourceKind = "static"
)

// SourceType describes the shape of a node in the resolved operation graph,
// used by `probe` and in error messages to show the pipeline's structure.
type SourceType struct {
	Kind   SourceKind
	Name   string
	URI    string
	Input  *SourceType
	Inputs []SourceType
}
