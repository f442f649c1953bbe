package blob

// TileCompression enumerates the byte-exact codecs applied to a tile
// payload (or to a container's metadata/index blobs) independent of the
// tile's own format.
type TileCompression uint8

const (
	CompressionUnknown TileCompression = iota
	CompressionNone
	CompressionGzip
	CompressionBrotli
)

func (c TileCompression) String() string {
	switch c {
	case CompressionNone:
		return "uncompressed"
	case CompressionGzip:
		return "gzip"
	case CompressionBrotli:
		return "brotli"
	default:
		return "unknown"
	}
}

// ParseCompression parses "none"/"uncompressed", "gzip", "brotli".
func ParseCompression(s string) (TileCompression, bool) {
	switch s {
	case "none", "uncompressed", "":
		return CompressionNone, true
	case "gzip", "gz":
		return CompressionGzip, true
	case "brotli", "br":
		return CompressionBrotli, true
	default:
		return CompressionUnknown, false
	}
}

// ContentEncoding returns the HTTP Content-Encoding token, or "" for none.
func (c TileCompression) ContentEncoding() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBrotli:
		return "br"
	default:
		return ""
	}
}
