// Package container implements the native `.versatiles` binary container
// format: header, metadata blob, block index, and per-block tile index
// (spec.md §3, §4.1).
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/versatiles-org/versatiles-go/internal/blob"
)

// Magic is the 14-byte file signature.
const Magic = "versatiles_v02"

// HeaderSize is the fixed on-disk size of the header in bytes.
const HeaderSize = 66

// Header is the 66-byte fixed-layout container header.
type Header struct {
	TileFormat      blob.TileFormat
	TileCompression blob.TileCompression
	ZoomMin         uint8
	ZoomMax         uint8
	GeoBBox         [4]int32 // west, south, east, north in micro-degrees
	MetadataOffset  uint64
	MetadataLength  uint64
	BlockIndexOffset uint64
	BlockIndexLength uint64
}

// Serialize writes the 66-byte header.
func (h Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:14], Magic)
	buf[14] = uint8(h.TileFormat)
	buf[15] = uint8(h.TileCompression)
	buf[16] = h.ZoomMin
	buf[17] = h.ZoomMax
	for i, v := range h.GeoBBox {
		binary.LittleEndian.PutUint32(buf[18+i*4:22+i*4], uint32(v))
	}
	binary.LittleEndian.PutUint64(buf[34:42], h.MetadataOffset)
	binary.LittleEndian.PutUint64(buf[42:50], h.MetadataLength)
	binary.LittleEndian.PutUint64(buf[50:58], h.BlockIndexOffset)
	binary.LittleEndian.PutUint64(buf[58:66], h.BlockIndexLength)
	return buf
}

// DeserializeHeader parses a 66-byte header, failing with a NotAContainer
// style error if the magic prefix doesn't match.
func DeserializeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("container: header too short: %d bytes (need %d)", len(buf), HeaderSize)
	}
	if string(buf[0:14]) != Magic {
		return Header{}, fmt.Errorf("container: not a versatiles container: magic %q", buf[0:14])
	}
	h := Header{
		TileFormat:      blob.TileFormat(buf[14]),
		TileCompression: blob.TileCompression(buf[15]),
		ZoomMin:         buf[16],
		ZoomMax:         buf[17],
	}
	for i := range h.GeoBBox {
		h.GeoBBox[i] = int32(binary.LittleEndian.Uint32(buf[18+i*4 : 22+i*4]))
	}
	h.MetadataOffset = binary.LittleEndian.Uint64(buf[34:42])
	h.MetadataLength = binary.LittleEndian.Uint64(buf[42:50])
	h.BlockIndexOffset = binary.LittleEndian.Uint64(buf[50:58])
	h.BlockIndexLength = binary.LittleEndian.Uint64(buf[58:66])
	return h, nil
}

// EncodeGeoBBox converts a WGS84 bbox (degrees) into the header's
// micro-degree integer fields.
func EncodeGeoBBox(west, south, east, north float64) [4]int32 {
	return [4]int32{
		int32(west * 1e6), int32(south * 1e6),
		int32(east * 1e6), int32(north * 1e6),
	}
}

// DecodeGeoBBox converts the header's micro-degree fields back to degrees.
func DecodeGeoBBox(b [4]int32) (west, south, east, north float64) {
	return float64(b[0]) / 1e6, float64(b[1]) / 1e6, float64(b[2]) / 1e6, float64(b[3]) / 1e6
}
