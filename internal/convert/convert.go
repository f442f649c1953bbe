// Package convert implements the converter façade of spec.md §4.7: it
// composes a reader and a writer, computes the effective tile pyramid,
// inserts the minimal implicit transcode when formats/compressions differ,
// and drives internal/runtime's scheduler to stream one to the other while
// reporting progress events.
package convert

import (
	"context"
	"fmt"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/encode"
	"github.com/versatiles-org/versatiles-go/internal/runtime"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Options configures one Convert call — spec.md §4.7's option set, plus the
// target format/compression the caller already chose when constructing the
// writer (needed so Convert can decide whether a tile needs re-encoding).
type Options struct {
	MinZoom, MaxZoom  *uint8
	BBox              *coord.GeoBBox
	BBoxBorder        uint32
	TargetCompression blob.TileCompression
	TargetFormat      blob.TileFormat // FormatUnknown = "same as reader"
	FlipY             bool
	SwapXY            bool
	Workers           int
	BatchSize         int
	ReencodeQuality   int
	Bus               *runtime.Bus
}

// Result summarizes a completed conversion.
type Result struct {
	TilesWritten int64
	TilesSkipped int64
	Pyramid      *coord.TileBBoxPyramid
}

// Convert streams reader's tiles into writer, applying the options' zoom
// and bbox restriction, axis transforms, and (if needed) the minimal
// implicit recompress/re-encode — spec.md §4.7.
func Convert(ctx context.Context, reader source.Reader, writer source.Writer, opts Options) (Result, error) {
	meta := reader.Metadata()

	pyramid := effectivePyramid(reader.BBoxPyramid(), opts)
	if pyramid.IsEmpty() {
		return Result{Pyramid: pyramid}, xerrors.New(xerrors.Parse, "convert: effective pyramid is empty")
	}

	targetFormat := opts.TargetFormat
	if targetFormat == blob.FormatUnknown {
		targetFormat = meta.TileFormat
	}
	targetCompression := opts.TargetCompression
	needsReencode := targetFormat != meta.TileFormat
	needsRecompress := targetCompression != meta.TileCompression && !needsReencode

	var written, skipped int64

	schedOpts := runtime.Options{
		Workers:       opts.Workers,
		BatchSize:     opts.BatchSize,
		RequiresOrder: writer.RequiresOrder(),
		MaxRetries:    3,
		Bus:           opts.Bus,
	}

	visit := func(ctx context.Context, c coord.TileCoord, data blob.Blob, ok bool) error {
		if !ok {
			skipped++
			return nil
		}
		out, c2, err := transformTile(data, c, meta, targetFormat, meta.TileCompression, targetCompression,
			needsReencode, needsRecompress, opts)
		if err != nil {
			if opts.Bus != nil {
				opts.Bus.Warning(fmt.Sprintf("tile %d/%d/%d: %v", c.Z, c.X, c.Y, err))
			}
			skipped++
			return nil
		}
		if err := writer.WriteTile(ctx, c2, out); err != nil {
			return xerrors.Wrap(xerrors.Io, "convert: write tile", err)
		}
		written++
		return nil
	}

	if opts.Bus != nil {
		opts.Bus.Step(fmt.Sprintf("converting %d tiles", pyramid.Count()))
	}

	err := runtime.Run(ctx, reader, pyramid, schedOpts, visit)
	if err != nil {
		writer.Abort()
		return Result{Pyramid: pyramid}, err
	}
	if err := writer.Finalize(ctx); err != nil {
		writer.Abort()
		return Result{Pyramid: pyramid}, xerrors.Wrap(xerrors.Io, "convert: finalize", err)
	}

	return Result{TilesWritten: written, TilesSkipped: skipped, Pyramid: pyramid}, nil
}

// effectivePyramid intersects the reader's pyramid with the requested bbox
// and zoom clamp, then grows it by BBoxBorder tiles per level — spec.md
// §4.7/§8 scenario 6.
func effectivePyramid(reader *coord.TileBBoxPyramid, opts Options) *coord.TileBBoxPyramid {
	p := reader
	if opts.BBox != nil {
		p = p.IntersectGeo(*opts.BBox)
	}
	var minZ, maxZ uint8 = 0, coord.MaxZoom
	if opts.MinZoom != nil {
		minZ = *opts.MinZoom
	}
	if opts.MaxZoom != nil {
		maxZ = *opts.MaxZoom
	}
	p = p.ClampZoom(minZ, maxZ)
	if opts.BBoxBorder > 0 {
		bordered := coord.NewPyramid()
		for _, z := range p.Levels() {
			bordered.Set(p.Get(z).Border(opts.BBoxBorder))
		}
		p = bordered
	}
	return p
}

// transformTile applies flip_y/swap_xy to the coordinate and, if needed,
// the minimal implicit transcode (decompress -> re-encode -> recompress) to
// the payload — spec.md §4.7.
func transformTile(data blob.Blob, c coord.TileCoord, meta blob.SourceMetadata,
	targetFormat blob.TileFormat, fromCompression, toCompression blob.TileCompression,
	needsReencode, needsRecompress bool, opts Options) (blob.Blob, coord.TileCoord, error) {

	out := c
	if opts.FlipY {
		n := uint32(1) << c.Z
		out.Y = n - 1 - out.Y
	}
	if opts.SwapXY {
		out.X, out.Y = out.Y, out.X
	}

	payload := data
	switch {
	case needsReencode:
		raw, err := compress.Decode(payload.Bytes(), fromCompression)
		if err != nil {
			return blob.Blob{}, out, xerrors.Wrap(xerrors.FormatMismatch, "decompress", err)
		}
		img, err := encode.DecodeImage(raw.Bytes(), meta.TileFormat.String())
		if err != nil {
			return blob.Blob{}, out, xerrors.Wrap(xerrors.FormatMismatch, "decode image", err)
		}
		quality := opts.ReencodeQuality
		if quality <= 0 {
			quality = 85
		}
		enc, err := encode.NewEncoder(targetFormat.String(), quality)
		if err != nil {
			return blob.Blob{}, out, xerrors.Wrap(xerrors.Unsupported, "encoder", err)
		}
		reencoded, err := enc.Encode(img)
		if err != nil {
			return blob.Blob{}, out, xerrors.Wrap(xerrors.Internal, "encode image", err)
		}
		compressed, err := compress.Encode(reencoded, toCompression)
		if err != nil {
			return blob.Blob{}, out, xerrors.Wrap(xerrors.Internal, "compress", err)
		}
		return compressed, out, nil

	case needsRecompress:
		recompressed, err := compress.Recompress(payload.Bytes(), fromCompression, toCompression)
		if err != nil {
			return blob.Blob{}, out, xerrors.Wrap(xerrors.Internal, "recompress", err)
		}
		return recompressed, out, nil

	default:
		return payload, out, nil
	}
}
