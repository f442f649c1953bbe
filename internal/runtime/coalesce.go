package runtime

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
)

// Coalescer serves concurrent get_tile calls for the same (node, z, x, y)
// from one underlying computation — spec.md §5 "per-source request
// coalescing" and the "at-most-once" testable property. Grounded on the
// singleflight.Group use in the retrieval pack's tile cache service
// (mapcache.go), generalized from a per-host HTTP fetch key to a
// per-operation-node tile key.
type Coalescer struct {
	group singleflight.Group
}

// NewCoalescer creates an empty coalescing map.
func NewCoalescer() *Coalescer {
	return &Coalescer{}
}

// result bundles GetTile's data and ok return values so they can travel
// through singleflight.Do's single `any` return; the error travels as Do's
// own error.
type result struct {
	data blob.Blob
	ok   bool
}

// GetTile serves reader.GetTile(ctx, c) for key nodeID, folding concurrent
// callers requesting the same (nodeID, c) into a single call to reader.
func (co *Coalescer) GetTile(ctx context.Context, nodeID string, reader source.Reader, c coord.TileCoord) (blob.Blob, bool, error) {
	key := fmt.Sprintf("%s/%d/%d/%d", nodeID, c.Z, c.X, c.Y)
	v, err, _ := co.group.Do(key, func() (any, error) {
		data, ok, err := reader.GetTile(ctx, c)
		if err != nil {
			return nil, err
		}
		return result{data: data, ok: ok}, nil
	})
	if err != nil {
		return blob.Blob{}, false, err
	}
	r := v.(result)
	return r.data, r.ok, nil
}
