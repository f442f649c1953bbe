package compress

import (
	"bytes"
	"testing"

	"github.com/versatiles-org/versatiles-go/internal/blob"
)

func TestRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	for _, c := range []blob.TileCompression{blob.CompressionNone, blob.CompressionGzip, blob.CompressionBrotli} {
		enc, err := Encode(data, c)
		if err != nil {
			t.Fatalf("%v: encode: %v", c, err)
		}
		dec, err := Decode(enc.Bytes(), c)
		if err != nil {
			t.Fatalf("%v: decode: %v", c, err)
		}
		if !bytes.Equal(dec.Bytes(), data) {
			t.Fatalf("%v: round trip mismatch", c)
		}
	}
}

func TestRecompressNoop(t *testing.T) {
	data := []byte("abc")
	out, err := Recompress(data, blob.CompressionGzip, blob.CompressionGzip)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatal("expected no-op recompress to return input unchanged")
	}
}

func TestRecompressCrossCodec(t *testing.T) {
	data := []byte("hello, world! hello, world! hello, world!")
	gz, err := Encode(data, blob.CompressionGzip)
	if err != nil {
		t.Fatal(err)
	}
	br, err := Recompress(gz.Bytes(), blob.CompressionGzip, blob.CompressionBrotli)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Decode(br.Bytes(), blob.CompressionBrotli)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.Bytes(), data) {
		t.Fatal("cross-codec recompress round trip mismatch")
	}
}
