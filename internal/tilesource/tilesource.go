// Package tilesource implements the façade spec.md §6 describes as "Server
// interface": a thin adapter from a source.Reader to the shape an external
// HTTP server needs — Content-Type/Content-Encoding resolution, transparent
// recompression subject to Accept-Encoding, and the tiles.json/probe
// responses. It exposes no HTTP types itself (routing is an external
// collaborator per spec.md §1); callers wire this into whatever server they use.
package tilesource

import (
	"context"
	"encoding/json"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// TileSource binds a name (the URL path segment) to a reader, the unit the
// server's router keys /tiles/{name}/... requests on.
type TileSource struct {
	Name   string
	Reader source.Reader
}

// New wraps a reader under a URL name.
func New(name string, reader source.Reader) *TileSource {
	return &TileSource{Name: name, Reader: reader}
}

// Response is what a server handler needs to answer one tile request.
type Response struct {
	Data            []byte
	ContentType     string
	ContentEncoding string // "" means uncompressed
	NotFound        bool
}

// GetTile resolves (z,x,y), applying transparent recompression: if the
// client's accepted encodings don't include the source's compression, the
// tile is either decompressed (cheap) or recompressed to one the client
// accepts (costly, only attempted when minimalRecompression is false) —
// spec.md §6.
func (ts *TileSource) GetTile(ctx context.Context, z uint8, x, y uint32, acceptEncodings []string, minimalRecompression bool) (Response, error) {
	c, err := coord.NewTileCoord(z, x, y)
	if err != nil {
		return Response{}, xerrors.Wrap(xerrors.Parse, "tilesource: invalid coordinate", err)
	}

	data, ok, err := ts.Reader.GetTile(ctx, c)
	if err != nil {
		return Response{}, err
	}
	if !ok {
		return Response{NotFound: true}, nil
	}

	meta := ts.Reader.Metadata()
	srcEncoding := meta.TileCompression.ContentEncoding()

	if srcEncoding == "" || accepts(acceptEncodings, srcEncoding) {
		return Response{
			Data:            data.Bytes(),
			ContentType:     meta.TileFormat.MIME(),
			ContentEncoding: srcEncoding,
		}, nil
	}

	// Client doesn't accept the source encoding. Cheap path: decompress.
	if minimalRecompression || !acceptsAnyCompressed(acceptEncodings) {
		raw, err := compress.Decode(data.Bytes(), meta.TileCompression)
		if err != nil {
			return Response{}, xerrors.Wrap(xerrors.Internal, "tilesource: decompress", err)
		}
		return Response{Data: raw.Bytes(), ContentType: meta.TileFormat.MIME()}, nil
	}

	// Costly path: recompress to whichever accepted encoding is cheapest
	// to produce, preferring gzip (ubiquitous, fast) over brotli.
	target := blob.CompressionNone
	switch {
	case accepts(acceptEncodings, "gzip"):
		target = blob.CompressionGzip
	case accepts(acceptEncodings, "br"):
		target = blob.CompressionBrotli
	}
	recompressed, err := compress.Recompress(data.Bytes(), meta.TileCompression, target)
	if err != nil {
		return Response{}, xerrors.Wrap(xerrors.Internal, "tilesource: recompress", err)
	}
	return Response{
		Data:            recompressed.Bytes(),
		ContentType:     meta.TileFormat.MIME(),
		ContentEncoding: target.ContentEncoding(),
	}, nil
}

func accepts(acceptEncodings []string, enc string) bool {
	for _, a := range acceptEncodings {
		if a == enc {
			return true
		}
	}
	return false
}

func acceptsAnyCompressed(acceptEncodings []string) bool {
	return accepts(acceptEncodings, "gzip") || accepts(acceptEncodings, "br")
}

// TileJSON renders the tileset's tiles.json body, with the request-derived
// base URL substituted into the tiles[] template — spec.md §6.
func (ts *TileSource) TileJSON(baseURL string) ([]byte, error) {
	tj := ts.Reader.Metadata().TileJSON.Clone()
	if baseURL != "" {
		tj.Tiles = []string{baseURL + "/tiles/" + ts.Name + "/{z}/{x}/{y}" + ts.Reader.Metadata().TileFormat.Extension()}
	}
	return json.Marshal(tj)
}

// Probe returns the metadata/source-type pair the CLI's `probe` surface exposes.
func (ts *TileSource) Probe() (blob.SourceMetadata, blob.SourceType) {
	return ts.Reader.Metadata(), ts.Reader.SourceType()
}
