// Package compress implements the byte-exact GZip and Brotli codecs used
// by the container format and its adapters (§3/§4.1 of the spec).
package compress

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/versatiles-org/versatiles-go/internal/blob"
)

// Encode compresses data under the given compression, or returns it
// unchanged for CompressionNone.
func Encode(data []byte, c blob.TileCompression) (blob.Blob, error) {
	switch c {
	case blob.CompressionNone, blob.CompressionUnknown:
		return blob.New(data), nil
	case blob.CompressionGzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return blob.Blob{}, err
		}
		if _, err := w.Write(data); err != nil {
			return blob.Blob{}, err
		}
		if err := w.Close(); err != nil {
			return blob.Blob{}, err
		}
		return blob.New(buf.Bytes()), nil
	case blob.CompressionBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
		if _, err := w.Write(data); err != nil {
			return blob.Blob{}, err
		}
		if err := w.Close(); err != nil {
			return blob.Blob{}, err
		}
		return blob.New(buf.Bytes()), nil
	default:
		return blob.Blob{}, fmt.Errorf("compress: unsupported compression %v", c)
	}
}

// Decode decompresses data under the given compression, or returns it
// unchanged for CompressionNone.
func Decode(data []byte, c blob.TileCompression) (blob.Blob, error) {
	switch c {
	case blob.CompressionNone, blob.CompressionUnknown:
		return blob.New(data), nil
	case blob.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return blob.Blob{}, fmt.Errorf("compress: gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return blob.Blob{}, fmt.Errorf("compress: gzip decompress: %w", err)
		}
		return blob.New(out), nil
	case blob.CompressionBrotli:
		r := brotli.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(r)
		if err != nil {
			return blob.Blob{}, fmt.Errorf("compress: brotli decompress: %w", err)
		}
		return blob.New(out), nil
	default:
		return blob.Blob{}, fmt.Errorf("compress: unsupported compression %v", c)
	}
}

// Recompress decodes src under from, then encodes under to. A no-op when
// from == to.
func Recompress(src []byte, from, to blob.TileCompression) (blob.Blob, error) {
	if from == to {
		return blob.New(src), nil
	}
	raw, err := Decode(src, from)
	if err != nil {
		return blob.Blob{}, err
	}
	return Encode(raw.Bytes(), to)
}

// DetectFromMagic infers compression from the magic bytes of a blob: used
// by adapters (MBTiles, PMTiles) whose on-disk format does not declare a
// compression header (§9 open question (a)).
func DetectFromMagic(data []byte) blob.TileCompression {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return blob.CompressionGzip
	case len(data) >= 1 && (data[0]&0x0f) == 0x0b && looksLikeBrotliStream(data):
		return blob.CompressionBrotli
	default:
		return blob.CompressionNone
	}
}

// looksLikeBrotliStream is a best-effort heuristic: brotli has no fixed
// magic number, so DetectFromMagic checks the WBITS bit pattern of the
// first byte itself and this helper only requires more than 4 bytes.
func looksLikeBrotliStream(data []byte) bool {
	return len(data) > 4
}
