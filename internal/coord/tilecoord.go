package coord

import "fmt"

// TileCoord addresses one tile in the web-mercator XYZ grid.
//
// Origin is top-left (standard slippy-map convention): x grows east,
// y grows south. Zero value is the single root tile at z=0.
type TileCoord struct {
	Z uint8
	X uint32
	Y uint32
}

// MaxZoom is the highest zoom level representable by the grid (x,y < 2^31).
const MaxZoom = 31

// NewTileCoord validates (z,x,y) against the grid invariant x,y < 2^z.
func NewTileCoord(z uint8, x, y uint32) (TileCoord, error) {
	if z > MaxZoom {
		return TileCoord{}, fmt.Errorf("coord: zoom %d exceeds maximum %d", z, MaxZoom)
	}
	n := uint32(1) << z
	if x >= n || y >= n {
		return TileCoord{}, fmt.Errorf("coord: (%d,%d) out of range for zoom %d (max %d)", x, y, z, n-1)
	}
	return TileCoord{Z: z, X: x, Y: y}, nil
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// ToGeoCenter returns the WGS84 lon/lat of the tile's center point.
func (c TileCoord) ToGeoCenter() (lon, lat float64) {
	minLon, minLat, maxLon, maxLat := TileBounds(int(c.Z), int(c.X), int(c.Y))
	return (minLon + maxLon) / 2, (minLat + maxLat) / 2
}

// FromGeo converts a WGS84 lon/lat to the tile containing it at the given zoom.
// lat is clamped to the web-mercator range [-85.0511, 85.0511] before conversion.
func FromGeo(lon, lat float64, z uint8) TileCoord {
	if lat > 85.0511 {
		lat = 85.0511
	}
	if lat < -85.0511 {
		lat = -85.0511
	}
	if lon > 180 {
		lon = 180
	}
	if lon < -180 {
		lon = -180
	}
	x, y := LonLatToTile(lon, lat, int(z))
	return TileCoord{Z: z, X: uint32(x), Y: uint32(y)}
}

// Parent returns the tile at zoom z-1 that contains this tile, and false if z==0.
func (c TileCoord) Parent() (TileCoord, bool) {
	if c.Z == 0 {
		return TileCoord{}, false
	}
	return TileCoord{Z: c.Z - 1, X: c.X / 2, Y: c.Y / 2}, true
}

// Children returns the four tiles at zoom z+1 covered by this tile.
func (c TileCoord) Children() [4]TileCoord {
	z := c.Z + 1
	x, y := c.X*2, c.Y*2
	return [4]TileCoord{
		{z, x, y}, {z, x + 1, y},
		{z, x, y + 1}, {z, x + 1, y + 1},
	}
}
