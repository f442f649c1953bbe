// Package vector implements MVT decode/encode/manipulation helpers shared
// by the vector_* transform operations and the vector read operations
// (from_merged_vector, the vector variant of from_debug), wrapping
// github.com/paulmach/orb's MVT codec.
package vector

import (
	"fmt"
	"regexp"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
)

// Decode parses raw MVT protobuf bytes into layers.
func Decode(data []byte) (mvt.Layers, error) {
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("vector: decoding mvt: %w", err)
	}
	return layers, nil
}

// Encode serializes layers back to MVT protobuf bytes.
func Encode(layers mvt.Layers) ([]byte, error) {
	data, err := mvt.Marshal(layers)
	if err != nil {
		return nil, fmt.Errorf("vector: encoding mvt: %w", err)
	}
	return data, nil
}

// FilterLayers drops layers whose name is in names (or, if invert, keeps
// only those) — vector_filter_layers.
func FilterLayers(layers mvt.Layers, names []string, invert bool) mvt.Layers {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make(mvt.Layers, 0, len(layers))
	for _, l := range layers {
		if want[l.Name] == invert {
			out = append(out, l)
		}
	}
	return out
}

// FilterProperties removes (or, if invert, keeps only) properties whose
// "{layer}/{key}" matches re, across every feature of every layer —
// vector_filter_properties.
func FilterProperties(layers mvt.Layers, re *regexp.Regexp, invert bool) {
	for _, l := range layers {
		for _, f := range l.Features {
			for key := range f.Properties {
				matches := re.MatchString(l.Name + "/" + key)
				if matches != invert {
					delete(f.Properties, key)
				}
			}
		}
	}
}

// DataRow is one joined row from an external CSV/TSV data source, keyed by
// its join-field value.
type DataRow map[string]string

// UpdateProperties joins layerName's features against index by
// idFieldTiles (tile-side) / the row's own key (data-side), merging or
// replacing properties per feature — vector_update_properties.
func UpdateProperties(layers mvt.Layers, layerName, idFieldTiles string, index map[string]DataRow, replace, removeNonMatching, includeID bool) {
	for _, l := range layers {
		if l.Name != layerName {
			continue
		}
		kept := l.Features[:0]
		for _, f := range l.Features {
			key := fmt.Sprint(f.Properties[idFieldTiles])
			row, ok := index[key]
			if !ok {
				if removeNonMatching {
					continue
				}
				kept = append(kept, f)
				continue
			}
			if replace {
				f.Properties = geojson.Properties{}
			}
			for k, v := range row {
				f.Properties[k] = v
			}
			if includeID {
				f.Properties[idFieldTiles] = key
			}
			kept = append(kept, f)
		}
		l.Features = kept
	}
}

// Merge concatenates same-named layers across multiple decoded tiles —
// from_merged_vector. Features are appended in input order; properties are
// untouched.
func Merge(inputs []mvt.Layers) mvt.Layers {
	order := []string{}
	byName := map[string]*mvt.Layer{}
	for _, layers := range inputs {
		for _, l := range layers {
			existing, ok := byName[l.Name]
			if !ok {
				clone := &mvt.Layer{Name: l.Name, Version: l.Version, Extent: l.Extent, Features: append([]*geojson.Feature(nil), l.Features...)}
				byName[l.Name] = clone
				order = append(order, l.Name)
				continue
			}
			existing.Features = append(existing.Features, l.Features...)
		}
	}
	out := make(mvt.Layers, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// EncodeLabelTile builds a one-layer, one-feature MVT tile whose feature
// carries label as a "label" property — the vector variant of from_debug.
// The point sits at the tile's center in already-projected tile-pixel
// space, so no further projection against a maptile.Tile is needed.
func EncodeLabelTile(label string, tileSize int) ([]byte, error) {
	extent := uint32(tileSize * 16)
	half := float64(extent) / 2
	feature := geojson.NewFeature(orb.Point{half, half})
	feature.Properties = geojson.Properties{"label": label}
	layer := &mvt.Layer{
		Name:     "debug",
		Version:  2,
		Extent:   extent,
		Features: []*geojson.Feature{feature},
	}
	return Encode(mvt.Layers{layer})
}
