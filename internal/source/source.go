// Package source defines the capability set shared by every node in the
// operation graph (spec.md §9 design notes): get_tile, metadata,
// bbox_pyramid, tile_json, and an optional streaming fast path. Containers,
// adapters, VPL operations, and transforms all implement Reader; the
// runtime and converter façade depend only on this interface, never on a
// concrete container type — this is what lets the graph compose without a
// class hierarchy.
package source

import (
	"context"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
)

// Reader is implemented by every readable node: containers, adapters, and
// transform outputs alike.
type Reader interface {
	// GetTile returns the tile payload at (z,x,y), or ok=false if absent.
	GetTile(ctx context.Context, coord coord.TileCoord) (data blob.Blob, ok bool, err error)

	// Metadata returns the resolved format/compression/zoom-range/TileJSON/pyramid.
	Metadata() blob.SourceMetadata

	// BBoxPyramid returns the set of tiles this reader can produce.
	BBoxPyramid() *coord.TileBBoxPyramid

	// SourceType describes this node's shape for probe/inspection.
	SourceType() blob.SourceType
}

// TileItem is one item flowing through a stream: a coordinate, its payload,
// and/or an error. A nil Data with no error and Ok=false means "no tile at
// this coordinate" (not a failure — see spec.md §7 partial-failure rules).
type TileItem struct {
	Coord coord.TileCoord
	Data  blob.Blob
	Ok    bool
	Err   error
}

// Streamer is an optional fast path for readers that can emit their tiles
// in a natural, efficient order (e.g. a container iterating its own block
// index) rather than being driven tile-by-tile through GetTile. The
// runtime (§7) uses this when available and falls back to bbox-pyramid
// enumeration + GetTile otherwise.
type Streamer interface {
	Reader
	Stream(ctx context.Context, pyramid *coord.TileBBoxPyramid) (<-chan TileItem, error)
}

// Writer is implemented by every container/adapter writer.
type Writer interface {
	// WriteTile sinks one tile. Writers that set RequiresOrder must receive
	// items in (level asc, row asc, col asc) / row-major order within a
	// block; others accept any order.
	WriteTile(ctx context.Context, c coord.TileCoord, data blob.Blob) error

	// RequiresOrder reports whether WriteTile calls must arrive in the
	// native-container block order (spec.md §4.1, §7).
	RequiresOrder() bool

	// Finalize completes the archive (index write, header patch, commit).
	Finalize(ctx context.Context) error

	// Abort cleans up any partial output; called on error or cancellation.
	Abort()
}
