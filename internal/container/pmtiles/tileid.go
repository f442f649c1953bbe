package pmtiles

// zxyToTileID converts z/x/y to a PMTiles v3 tile ID via Hilbert curve
// ordering within each zoom level.
func zxyToTileID(z uint8, x, y uint32) uint64 {
	if z == 0 {
		return 0
	}
	var acc uint64
	for i := uint8(0); i < z; i++ {
		n := uint64(1) << i
		acc += n * n
	}
	n := uint64(1) << z
	return acc + xyToHilbert(uint64(x), uint64(y), n)
}

// tileIDToZXY converts a PMTiles v3 tile ID back to z/x/y.
func tileIDToZXY(tileID uint64) (z uint8, x, y uint32) {
	if tileID == 0 {
		return 0, 0, 0
	}
	var acc uint64
	for {
		n := uint64(1) << z
		count := n * n
		if acc+count > tileID {
			break
		}
		acc += count
		z++
	}
	n := uint64(1) << z
	hx, hy := hilbertToXY(tileID-acc, n)
	return z, uint32(hx), uint32(hy)
}

func xyToHilbert(x, y, n uint64) uint64 {
	var d uint64
	s := n / 2
	for s > 0 {
		var rx, ry uint64
		if (x & s) > 0 {
			rx = 1
		}
		if (y & s) > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		if ry == 0 {
			if rx == 1 {
				x = s*2 - 1 - x
				y = s*2 - 1 - y
			}
			x, y = y, x
		}
		s /= 2
	}
	return d
}

func hilbertToXY(d, n uint64) (x, y uint64) {
	var rx, ry uint64
	s := uint64(1)
	for s < n {
		rx = 1 & (d / 2)
		ry = 1 & (d ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		d /= 4
		s *= 2
	}
	return x, y
}
