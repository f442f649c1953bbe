package blob

// TileFormat enumerates the tile payload encodings the core understands.
// Numeric values from FormatUnknown up to FormatAVIF match the PMTiles v3 tile-type byte so
// the pmtiles adapter can use the enum directly as that header field.
type TileFormat uint8

const (
	FormatUnknown TileFormat = iota
	FormatMVT
	FormatPNG
	FormatJPEG
	FormatWebP
	FormatAVIF
	FormatBin
	FormatJSON
)

// Category classifies a format for transforms that only accept one kind.
type Category int

const (
	CategoryOther Category = iota
	CategoryVector
	CategoryRaster
)

type formatInfo struct {
	ext      string
	mime     string
	category Category
}

var formatTable = map[TileFormat]formatInfo{
	FormatMVT:  {".pbf", "application/vnd.mapbox-vector-tile", CategoryVector},
	FormatPNG:  {".png", "image/png", CategoryRaster},
	FormatJPEG: {".jpg", "image/jpeg", CategoryRaster},
	FormatWebP: {".webp", "image/webp", CategoryRaster},
	FormatAVIF: {".avif", "image/avif", CategoryRaster},
	FormatBin:  {".bin", "application/octet-stream", CategoryOther},
	FormatJSON: {".json", "application/json", CategoryOther},
}

// Extension returns the file extension including the leading dot.
func (f TileFormat) Extension() string {
	return formatTable[f].ext
}

// MIME returns the MIME type used for HTTP Content-Type.
func (f TileFormat) MIME() string {
	if info, ok := formatTable[f]; ok {
		return info.mime
	}
	return "application/octet-stream"
}

// Category reports whether the format is vector, raster, or other.
func (f TileFormat) Category() Category {
	return formatTable[f].category
}

func (f TileFormat) String() string {
	switch f {
	case FormatMVT:
		return "mvt"
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpg"
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	case FormatBin:
		return "bin"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name such as "mvt", "pbf", "png", "jpg"/"jpeg".
func ParseFormat(s string) (TileFormat, bool) {
	switch s {
	case "mvt", "pbf":
		return FormatMVT, true
	case "png":
		return FormatPNG, true
	case "jpg", "jpeg":
		return FormatJPEG, true
	case "webp":
		return FormatWebP, true
	case "avif":
		return FormatAVIF, true
	case "bin":
		return FormatBin, true
	case "json":
		return FormatJSON, true
	default:
		return FormatUnknown, false
	}
}
