package pmtiles

import (
	"encoding/binary"
	"fmt"

	"github.com/versatiles-org/versatiles-go/internal/blob"
)

const headerSize = 127

// PMTiles v3 internal directory-compression and tile-type constants, kept
// distinct from internal/blob's own enums since they are this format's
// wire values, not ours.
const (
	compressionUnknown = 0
	compressionNone    = 1
	compressionGzip    = 2
	compressionBrotli  = 3
	compressionZstd    = 4

	tileTypeUnknown = 0
	tileTypeMVT     = 1
	tileTypePNG     = 2
	tileTypeJPEG    = 3
	tileTypeWebP    = 4
)

func internalCompressionToBlob(c uint8) blob.TileCompression {
	switch c {
	case compressionGzip:
		return blob.CompressionGzip
	case compressionBrotli:
		return blob.CompressionBrotli
	case compressionNone:
		return blob.CompressionNone
	default:
		return blob.CompressionUnknown
	}
}

func tileTypeToFormat(t uint8) blob.TileFormat {
	switch t {
	case tileTypeMVT:
		return blob.FormatMVT
	case tileTypePNG:
		return blob.FormatPNG
	case tileTypeJPEG:
		return blob.FormatJPEG
	case tileTypeWebP:
		return blob.FormatWebP
	default:
		return blob.FormatUnknown
	}
}

// header is the PMTiles v3 127-byte header.
type header struct {
	RootDirOffset       uint64
	RootDirLength       uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirOffset       uint64
	LeafDirLength       uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	NumAddressedTiles   uint64
	NumTileEntries      uint64
	NumTileContents     uint64
	Clustered           bool
	InternalCompression uint8
	TileCompression     uint8
	TileType            uint8
	MinZoom             uint8
	MaxZoom             uint8
	MinLon, MinLat      float32
	MaxLon, MaxLat      float32
	CenterZoom          uint8
	CenterLon, CenterLat float32
}

func deserializeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("pmtiles: header too short: %d bytes (need %d)", len(buf), headerSize)
	}
	if string(buf[0:7]) != "PMTiles" {
		return header{}, fmt.Errorf("pmtiles: invalid magic bytes: %q", buf[0:7])
	}
	if buf[7] != 3 {
		return header{}, fmt.Errorf("pmtiles: unsupported version %d (expected 3)", buf[7])
	}

	h := header{
		RootDirOffset:       binary.LittleEndian.Uint64(buf[8:16]),
		RootDirLength:       binary.LittleEndian.Uint64(buf[16:24]),
		MetadataOffset:      binary.LittleEndian.Uint64(buf[24:32]),
		MetadataLength:      binary.LittleEndian.Uint64(buf[32:40]),
		LeafDirOffset:       binary.LittleEndian.Uint64(buf[40:48]),
		LeafDirLength:       binary.LittleEndian.Uint64(buf[48:56]),
		TileDataOffset:      binary.LittleEndian.Uint64(buf[56:64]),
		TileDataLength:      binary.LittleEndian.Uint64(buf[64:72]),
		NumAddressedTiles:   binary.LittleEndian.Uint64(buf[72:80]),
		NumTileEntries:      binary.LittleEndian.Uint64(buf[80:88]),
		NumTileContents:     binary.LittleEndian.Uint64(buf[88:96]),
		Clustered:           buf[96] == 1,
		InternalCompression: buf[97],
		TileCompression:     buf[98],
		TileType:            buf[99],
		MinZoom:             buf[100],
		MaxZoom:             buf[101],
		MinLon:              e7ToLonLat(binary.LittleEndian.Uint32(buf[102:106])),
		MinLat:              e7ToLonLat(binary.LittleEndian.Uint32(buf[106:110])),
		MaxLon:              e7ToLonLat(binary.LittleEndian.Uint32(buf[110:114])),
		MaxLat:              e7ToLonLat(binary.LittleEndian.Uint32(buf[114:118])),
		CenterZoom:          buf[118],
		CenterLon:           e7ToLonLat(binary.LittleEndian.Uint32(buf[119:123])),
		CenterLat:           e7ToLonLat(binary.LittleEndian.Uint32(buf[123:127])),
	}
	return h, nil
}

func e7ToLonLat(v uint32) float32 {
	return float32(float64(int32(v)) / 1e7)
}
