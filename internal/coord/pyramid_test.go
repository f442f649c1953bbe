package coord

import "testing"

func TestPyramidIntersectGeoSubset(t *testing.T) {
	p := NewPyramid()
	p.Set(NewTileBBox(4, 0, 0, 15, 15))
	p.Set(NewTileBBox(5, 0, 0, 31, 31))

	geo := GeoBBox{West: -10, South: -10, East: 10, North: 10}
	sub := p.IntersectGeo(geo)

	for _, level := range sub.Levels() {
		b := sub.Get(level)
		full := p.Get(level)
		inter := full.Intersect(b)
		if inter.MinX != b.MinX || inter.MaxX != b.MaxX || inter.MinY != b.MinY || inter.MaxY != b.MaxY {
			t.Fatalf("level %d: intersection not subset of original pyramid", level)
		}
		b.Each(func(x, y uint32) {
			minLon, minLat, maxLon, maxLat := TileBounds(int(level), int(x), int(y))
			if maxLon < geo.West || minLon > geo.East || maxLat < geo.South || minLat > geo.North {
				t.Fatalf("level %d tile (%d,%d) bounds (%f,%f,%f,%f) outside requested geo bbox", level, x, y, minLon, minLat, maxLon, maxLat)
			}
		})
	}
}

func TestPyramidBorder(t *testing.T) {
	p := NewPyramid()
	p.Set(NewTileBBox(4, 4, 4, 8, 8))
	grown := p.Border(2)
	b := grown.Get(4)
	if b.MinX != 2 || b.MinY != 2 || b.MaxX != 10 || b.MaxY != 10 {
		t.Fatalf("unexpected bordered bbox: %+v", b)
	}
}
