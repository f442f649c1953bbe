// Package mbtiles adapts the MBTiles SQLite layout (spec.md §4.2) to the
// internal/source capability interfaces: metadata(name,value) key-value
// rows and a tiles(zoom_level, tile_column, tile_row, tile_data) table,
// with the y-axis flipped relative to XYZ.
package mbtiles

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/compress"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

func flipY(z uint8, y uint32) uint32 {
	n := uint32(1)<<z - 1
	return n - y
}

// Reader reads tiles from an MBTiles SQLite archive.
type Reader struct {
	db       *sql.DB
	meta     map[string]string
	tileJSON blob.TileJSON
	pyramid  *coord.TileBBoxPyramid
	format   blob.TileFormat
	comp     blob.TileCompression
}

// Open opens an existing MBTiles file read-only.
func Open(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "mbtiles: opening database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.Io, "mbtiles: connecting", err)
	}

	r := &Reader{db: db, meta: map[string]string{}, pyramid: coord.NewPyramid()}
	if err := r.loadMetadata(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.loadPyramid(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.detectFormat(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) loadMetadata() error {
	rows, err := r.db.Query(`SELECT name, value FROM metadata`)
	if err != nil {
		return xerrors.Wrap(xerrors.FormatMismatch, "mbtiles: reading metadata table", err)
	}
	defer rows.Close()

	var name, value string
	for rows.Next() {
		if err := rows.Scan(&name, &value); err != nil {
			return xerrors.Wrap(xerrors.Io, "mbtiles: scanning metadata row", err)
		}
		r.meta[name] = value
	}

	tj := blob.NewTileJSON()
	tj.Name = r.meta["name"]
	tj.Description = r.meta["description"]
	tj.Attribution = r.meta["attribution"]
	if v, err := strconv.Atoi(r.meta["minzoom"]); err == nil {
		tj.MinZoom = v
	}
	if v, err := strconv.Atoi(r.meta["maxzoom"]); err == nil {
		tj.MaxZoom = v
	}
	r.tileJSON = tj
	return nil
}

func (r *Reader) loadPyramid() error {
	rows, err := r.db.Query(`SELECT zoom_level, MIN(tile_column), MAX(tile_column), MIN(tile_row), MAX(tile_row) FROM tiles GROUP BY zoom_level`)
	if err != nil {
		return xerrors.Wrap(xerrors.FormatMismatch, "mbtiles: reading tile extents", err)
	}
	defer rows.Close()

	var zoom int
	var minCol, maxCol, minRow, maxRow int
	for rows.Next() {
		if err := rows.Scan(&zoom, &minCol, &maxCol, &minRow, &maxRow); err != nil {
			return xerrors.Wrap(xerrors.Io, "mbtiles: scanning extent row", err)
		}
		z := uint8(zoom)
		minY, maxY := flipY(z, uint32(maxRow)), flipY(z, uint32(minRow))
		r.pyramid.Set(coord.NewTileBBox(z, uint32(minCol), minY, uint32(maxCol), maxY))
	}
	return nil
}

// detectFormat sniffs compression from the first tile's magic bytes, since
// MBTiles does not declare it explicitly (spec.md §9 open question).
func (r *Reader) detectFormat() error {
	r.format = blob.FormatPNG
	if fmtName := r.meta["format"]; fmtName != "" {
		if f, ok := blob.ParseFormat(fmtName); ok {
			r.format = f
		}
	}

	var data []byte
	row := r.db.QueryRow(`SELECT tile_data FROM tiles LIMIT 1`)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			r.comp = blob.CompressionNone
			return nil
		}
		return xerrors.Wrap(xerrors.Io, "mbtiles: sampling first tile", err)
	}
	r.comp = compress.DetectFromMagic(data)
	return nil
}

// GetTile implements source.Reader.
func (r *Reader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	var data []byte
	row := r.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		c.Z, c.X, flipY(c.Z, c.Y))
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return blob.Blob{}, false, nil
		}
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Io, fmt.Sprintf("mbtiles: reading tile %s", c), err)
	}
	return blob.New(data), true, nil
}

// Metadata implements source.Reader.
func (r *Reader) Metadata() blob.SourceMetadata {
	minZ, maxZ, _ := r.pyramid.MinMaxZoom()
	return blob.SourceMetadata{
		TileFormat:      r.format,
		TileCompression: r.comp,
		MinZoom:         minZ,
		MaxZoom:         maxZ,
		TileJSON:        r.tileJSON,
		Pyramid:         r.pyramid,
	}
}

// BBoxPyramid implements source.Reader.
func (r *Reader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

// SourceType implements source.Reader.
func (r *Reader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindContainer, Name: "mbtiles"}
}

// Close closes the underlying database handle.
func (r *Reader) Close() error { return r.db.Close() }
