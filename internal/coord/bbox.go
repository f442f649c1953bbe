package coord

// TileBBox is an inclusive rectangle of tile coordinates at one zoom level.
// The sentinel empty bbox (constructed via EmptyBBox) is marked by an
// internal flag; its Min/Max fields are left at zero.
type TileBBox struct {
	Level              uint8
	MinX, MinY         uint32
	MaxX, MaxY         uint32
	empty              bool
}

// EmptyBBox returns the empty bbox sentinel for the given level.
func EmptyBBox(level uint8) TileBBox {
	return TileBBox{Level: level, empty: true}
}

// NewTileBBox builds a bbox, clamping to the valid [0, 2^level-1] range.
func NewTileBBox(level uint8, minX, minY, maxX, maxY uint32) TileBBox {
	n := uint32(1) << level
	if maxX >= n {
		maxX = n - 1
	}
	if maxY >= n {
		maxY = n - 1
	}
	if minX > maxX || minY > maxY {
		return EmptyBBox(level)
	}
	return TileBBox{Level: level, MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// GeoBBox is a WGS84 bounding box: west, south, east, north in degrees.
type GeoBBox struct {
	West, South, East, North float64
}

// BBoxFromGeo intersects a WGS84 bbox with the whole tile grid at the given level.
func BBoxFromGeo(level uint8, geo GeoBBox) TileBBox {
	minX, minY := LonLatToTile(geo.West, geo.North, int(level))
	maxX, maxY := LonLatToTile(geo.East, geo.South, int(level))
	return NewTileBBox(level, uint32(minX), uint32(minY), uint32(maxX), uint32(maxY))
}

// IsEmpty reports whether the bbox covers no tiles.
func (b TileBBox) IsEmpty() bool {
	return b.empty
}

// Count returns the number of tiles covered.
func (b TileBBox) Count() int64 {
	if b.empty {
		return 0
	}
	return int64(b.MaxX-b.MinX+1) * int64(b.MaxY-b.MinY+1)
}

// Contains reports whether (x,y) lies within the bbox.
func (b TileBBox) Contains(x, y uint32) bool {
	if b.empty {
		return false
	}
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Intersect returns the overlap of two bboxes at the same level.
func (b TileBBox) Intersect(o TileBBox) TileBBox {
	if b.empty || o.empty || b.Level != o.Level {
		return EmptyBBox(b.Level)
	}
	minX, minY := max32(b.MinX, o.MinX), max32(b.MinY, o.MinY)
	maxX, maxY := min32(b.MaxX, o.MaxX), min32(b.MaxY, o.MaxY)
	if minX > maxX || minY > maxY {
		return EmptyBBox(b.Level)
	}
	return TileBBox{Level: b.Level, MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Union returns the smallest bbox covering both inputs (not the exact set union).
func (b TileBBox) Union(o TileBBox) TileBBox {
	if b.empty {
		return o
	}
	if o.empty || b.Level != o.Level {
		return b
	}
	return TileBBox{
		Level: b.Level,
		MinX:  min32(b.MinX, o.MinX), MinY: min32(b.MinY, o.MinY),
		MaxX: max32(b.MaxX, o.MaxX), MaxY: max32(b.MaxY, o.MaxY),
	}
}

// Border grows the bbox by n tiles on every edge, clamping at the grid edge.
func (b TileBBox) Border(n uint32) TileBBox {
	if b.empty {
		return b
	}
	var minX, minY uint32
	if b.MinX > n {
		minX = b.MinX - n
	}
	if b.MinY > n {
		minY = b.MinY - n
	}
	return NewTileBBox(b.Level, minX, minY, b.MaxX+n, b.MaxY+n)
}

// Each calls fn for every coordinate in the bbox in (y,x) row-major order.
func (b TileBBox) Each(fn func(x, y uint32)) {
	if b.empty {
		return
	}
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			fn(x, y)
			if x == ^uint32(0) {
				break
			}
		}
		if y == ^uint32(0) {
			break
		}
	}
}

// Iter returns a lazy iterator function following Each's ordering; calling
// it repeatedly yields successive coordinates and a final false.
func (b TileBBox) Iter() func() (x, y uint32, ok bool) {
	if b.empty {
		done := true
		_ = done
		return func() (uint32, uint32, bool) { return 0, 0, false }
	}
	x, y := b.MinX, b.MinY
	started := false
	return func() (uint32, uint32, bool) {
		if started {
			x++
			if x > b.MaxX {
				x = b.MinX
				y++
				if y > b.MaxY {
					return 0, 0, false
				}
			}
		}
		started = true
		return x, y, true
	}
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
