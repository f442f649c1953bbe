package mbtiles

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// batchSize bounds how many inserts share one transaction, trading commit
// overhead against the size of work lost on a crash mid-batch.
const batchSize = 4096

// WriterOptions configures a new MBTiles writer.
type WriterOptions struct {
	Name        string
	Description string
	Attribution string
	Format      blob.TileFormat
	TileJSON    blob.TileJSON
}

// Writer writes tiles into a new MBTiles archive. Unlike the native
// container, MBTiles imposes no ordering requirement (spec.md §4.2):
// WriteTile may be called with coordinates in any order.
type Writer struct {
	path string
	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt
	opts WriterOptions
	n    int
}

// Create creates a new MBTiles archive at path, overwriting any existing file.
func Create(path string, opts WriterOptions) (*Writer, error) {
	os.Remove(path)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "mbtiles: creating database", err)
	}
	for _, pragma := range []string{
		"PRAGMA synchronous=OFF",
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA locking_mode=EXCLUSIVE",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, xerrors.Wrap(xerrors.Io, "mbtiles: setting pragma", err)
		}
	}

	schema := []string{
		`CREATE TABLE metadata (name TEXT, value TEXT)`,
		`CREATE UNIQUE INDEX metadata_name ON metadata (name)`,
		`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`,
		`CREATE UNIQUE INDEX tiles_index ON tiles (zoom_level, tile_column, tile_row)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, xerrors.Wrap(xerrors.Io, "mbtiles: creating schema", err)
		}
	}

	w := &Writer{path: path, db: db, opts: opts}
	if err := w.writeMetadataRows(); err != nil {
		db.Close()
		return nil, err
	}
	if err := w.beginBatch(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeMetadataRows() error {
	tj := w.opts.TileJSON
	rows := map[string]string{
		"name":        orDefault(w.opts.Name, "versatiles"),
		"description": orDefault(w.opts.Description, "generated by versatiles"),
		"format":      w.opts.Format.Extension()[1:],
		"version":     "1.3",
		"type":        "overlay",
		"minzoom":     fmt.Sprintf("%d", tj.MinZoom),
		"maxzoom":     fmt.Sprintf("%d", tj.MaxZoom),
		"bounds":      fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", tj.Bounds[0], tj.Bounds[1], tj.Bounds[2], tj.Bounds[3]),
	}
	if w.opts.Attribution != "" {
		rows["attribution"] = w.opts.Attribution
	}
	for name, value := range rows {
		if _, err := w.db.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, name, value); err != nil {
			return xerrors.Wrap(xerrors.Io, "mbtiles: writing metadata row", err)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (w *Writer) beginBatch() error {
	tx, err := w.db.Begin()
	if err != nil {
		return xerrors.Wrap(xerrors.Io, "mbtiles: beginning transaction", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return xerrors.Wrap(xerrors.Io, "mbtiles: preparing insert", err)
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

// RequiresOrder implements source.Writer.
func (w *Writer) RequiresOrder() bool { return false }

// WriteTile implements source.Writer.
func (w *Writer) WriteTile(ctx context.Context, c coord.TileCoord, data blob.Blob) error {
	if data.IsEmpty() {
		return nil
	}
	if _, err := w.stmt.ExecContext(ctx, c.Z, c.X, flipY(c.Z, c.Y), data.Bytes()); err != nil {
		return xerrors.Wrap(xerrors.Io, fmt.Sprintf("mbtiles: writing tile %s", c), err)
	}
	w.n++
	if w.n%batchSize == 0 {
		if err := w.commitBatch(); err != nil {
			return err
		}
		return w.beginBatch()
	}
	return nil
}

func (w *Writer) commitBatch() error {
	w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.Io, "mbtiles: committing batch", err)
	}
	return nil
}

// Finalize implements source.Writer.
func (w *Writer) Finalize(ctx context.Context) error {
	if err := w.commitBatch(); err != nil {
		return err
	}
	return w.db.Close()
}

// Abort implements source.Writer.
func (w *Writer) Abort() {
	if w.tx != nil {
		w.stmt.Close()
		w.tx.Rollback()
	}
	w.db.Close()
	os.Remove(w.path)
}
