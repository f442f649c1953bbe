package blob

// TileSchema hints at the semantic layout of a tile's content — used by
// downstream transforms (dem_quantize, raster_mask) that need to know what
// a pixel or property means beyond its raw bytes.
type TileSchema string

const (
	SchemaRGB             TileSchema = "rgb"
	SchemaRGBA            TileSchema = "rgba"
	SchemaDEMMapbox       TileSchema = "dem/mapbox"
	SchemaDEMTerrarium    TileSchema = "dem/terrarium"
	SchemaDEMVersatiles   TileSchema = "dem/versatiles"
	SchemaOpenMapTiles    TileSchema = "openmaptiles"
	SchemaShortbread1     TileSchema = "shortbread@1.0"
	SchemaOther           TileSchema = "other"
	SchemaUnknown         TileSchema = "unknown"
)
