package runtime

import (
	"context"
	"encoding/binary"

	"github.com/lanrat/extsort"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// reassemble replays results from an unordered results channel to deliver
// in increasing seq order, holding up to window out-of-order items in
// memory (spec.md §5's "order-preserving reassembly stage... holds up to
// 2 × workers × batch_size items"). If producers run further ahead of the
// oldest pending item than window allows, the held items are moved to an
// overflow list; once the input ends, the overflow and anything still
// pending are delivered in seq order through an external sort (SPEC_FULL.md
// §3's "clustering pass" generalization of the teacher's clusterTileData).
// The overflow list is kept in memory and is not bounded by window.
func reassemble(ctx context.Context, results <-chan jobResult, window int, deliver func(jobResult) error) error {
	pending := make(map[int64]jobResult, window)
	var overflow []jobResult
	next := int64(0)

	drain := func() error {
		for {
			r, ok := pending[next]
			if !ok {
				return nil
			}
			delete(pending, next)
			if err := deliver(r); err != nil {
				return err
			}
			next++
		}
	}

	for r := range results {
		select {
		case <-ctx.Done():
			return xerrors.Wrap(xerrors.Cancelled, "reassemble", ctx.Err())
		default:
		}

		if r.seq < next {
			continue // already delivered (shouldn't happen; defensive)
		}
		pending[r.seq] = r
		if err := drain(); err != nil {
			return err
		}

		if len(pending) > window {
			// The item blocking delivery (seq == next) hasn't arrived yet,
			// and the buffer has grown past its bound: move everything
			// currently held to the overflow list and keep accepting new
			// arrivals; the overflow list stays in memory until the input ends.
			for seq, item := range pending {
				overflow = append(overflow, item)
				delete(pending, seq)
			}
		}
	}

	if err := drain(); err != nil {
		return err
	}
	if len(overflow) == 0 {
		return nil
	}
	for _, item := range pending {
		overflow = append(overflow, item)
	}
	return deliverSorted(overflow, deliver)
}

// deliverSorted externally sorts spilled out-of-order items by seq and
// delivers them in order, using lanrat/extsort the way the retrieval pack's
// qrank builder sorts oversized streams that don't fit in memory.
func deliverSorted(items []jobResult, deliver func(jobResult) error) error {
	ch := make(chan extsort.SortType, len(items))
	for _, it := range items {
		ch <- reorderItem(it)
	}
	close(ch)

	config := extsort.DefaultConfig()
	sorter, outChan, errChan := extsort.New(ch, reorderItemFromBytes, reorderItemLess, config)
	sorter.Sort(context.Background())

	for v := range outChan {
		it := v.(reorderItem)
		if err := deliver(jobResult(it)); err != nil {
			return err
		}
	}
	return <-errChan
}

// reorderItem adapts jobResult to extsort.SortType, serializing just enough
// (seq, coord, ok, data) to survive an external sort pass.
type reorderItem jobResult

const reorderHeaderSize = 8 + 1 + 4 + 4 + 1 + 8 // seq, z, x, y, ok, len(data)

func (it reorderItem) ToBytes() []byte {
	data := it.data.Bytes()
	buf := make([]byte, reorderHeaderSize+len(data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(it.seq))
	buf[8] = it.c.Z
	binary.LittleEndian.PutUint32(buf[9:13], it.c.X)
	binary.LittleEndian.PutUint32(buf[13:17], it.c.Y)
	if it.ok {
		buf[17] = 1
	}
	binary.LittleEndian.PutUint64(buf[18:26], uint64(len(data)))
	copy(buf[26:], data)
	return buf
}

// reorderItemFromBytes is extsort's deserializer, the inverse of ToBytes.
func reorderItemFromBytes(buf []byte) extsort.SortType {
	seq := int64(binary.LittleEndian.Uint64(buf[0:8]))
	z := buf[8]
	x := binary.LittleEndian.Uint32(buf[9:13])
	y := binary.LittleEndian.Uint32(buf[13:17])
	ok := buf[17] == 1
	n := binary.LittleEndian.Uint64(buf[18:26])
	data := make([]byte, n)
	copy(data, buf[26:26+n])
	return reorderItem{seq: seq, c: coord.TileCoord{Z: z, X: x, Y: y}, data: blob.New(data), ok: ok}
}

// reorderItemLess sorts strictly by seq, restoring input order.
func reorderItemLess(a, b extsort.SortType) bool {
	return a.(reorderItem).seq < b.(reorderItem).seq
}
