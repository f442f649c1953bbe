package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/bits"
	"net/http"
	"strings"
	"time"

	"github.com/versatiles-org/versatiles-go/internal/blob"
	"github.com/versatiles-org/versatiles-go/internal/coord"
	"github.com/versatiles-org/versatiles-go/internal/source"
	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// tileJSONReader fetches a TileJSON document once at build time and then
// fetches tiles from its "tiles" URL template over HTTP, bounding request
// concurrency and retrying transient failures with exponential backoff
// (spec.md §4.5 from_tilejson).
type tileJSONReader struct {
	client        *http.Client
	tileURL       string
	maxRetries    int
	sem           chan struct{}
	format   blob.TileFormat
	pyramid  *coord.TileBBoxPyramid
	tileJSON blob.TileJSON
}

func newTileJSONReader(ctx context.Context, url string, client *http.Client, maxRetries, maxConcurrent int) (source.Reader, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	data, err := fetchWithRetry(ctx, client, url, maxRetries)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "from_tilejson: fetching "+url, err)
	}

	var tj blob.TileJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, xerrors.Wrap(xerrors.Parse, "from_tilejson: decoding TileJSON", err)
	}
	if len(tj.Tiles) == 0 {
		return nil, xerrors.New(xerrors.Parse, "from_tilejson: no tiles[] URL template")
	}

	format := blob.FormatPNG
	if strings.Contains(tj.Tiles[0], ".pbf") || strings.Contains(tj.Tiles[0], ".mvt") {
		format = blob.FormatMVT
	} else if strings.Contains(tj.Tiles[0], ".webp") {
		format = blob.FormatWebP
	} else if strings.Contains(tj.Tiles[0], ".jpg") || strings.Contains(tj.Tiles[0], ".jpeg") {
		format = blob.FormatJPEG
	}

	minZoom, maxZoom := uint8(tj.MinZoom), uint8(tj.MaxZoom)
	pyramid := coord.NewPyramid()
	geo := coord.GeoBBox{West: -180, South: -85.0511, East: 180, North: 85.0511}
	if tj.Bounds != [4]float64{} {
		geo = coord.GeoBBox{West: tj.Bounds[0], South: tj.Bounds[1], East: tj.Bounds[2], North: tj.Bounds[3]}
	}
	for z := minZoom; z <= maxZoom; z++ {
		pyramid.Set(coord.BBoxFromGeo(z, geo))
	}

	return &tileJSONReader{
		client:     client,
		tileURL:    tj.Tiles[0],
		maxRetries: maxRetries,
		sem:        make(chan struct{}, maxConcurrent),
		format:     format,
		pyramid:    pyramid,
		tileJSON:   tj,
	}, nil
}

func (r *tileJSONReader) tileRequestURL(c coord.TileCoord) string {
	url := r.tileURL
	url = strings.ReplaceAll(url, "{z}", fmt.Sprint(c.Z))
	url = strings.ReplaceAll(url, "{x}", fmt.Sprint(c.X))
	url = strings.ReplaceAll(url, "{y}", fmt.Sprint(c.Y))
	return url
}

func (r *tileJSONReader) GetTile(ctx context.Context, c coord.TileCoord) (blob.Blob, bool, error) {
	if !r.pyramid.Get(c.Z).Contains(c.X, c.Y) {
		return blob.Blob{}, false, nil
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return blob.Blob{}, false, ctx.Err()
	}
	defer func() { <-r.sem }()

	data, err := fetchWithRetry(ctx, r.client, r.tileRequestURL(c), r.maxRetries)
	if xerrors.Is(err, xerrors.NotFound) {
		return blob.Blob{}, false, nil
	}
	if err != nil {
		return blob.Blob{}, false, xerrors.Wrap(xerrors.Io, "from_tilejson: tile request", err)
	}
	return blob.New(data), true, nil
}

func (r *tileJSONReader) Metadata() blob.SourceMetadata {
	return blob.SourceMetadata{
		TileFormat:      r.format,
		TileCompression: blob.CompressionNone,
		MinZoom:         uint8(r.tileJSON.MinZoom),
		MaxZoom:         uint8(r.tileJSON.MaxZoom),
		TileJSON:        r.tileJSON,
		Pyramid:         r.pyramid,
	}
}

func (r *tileJSONReader) BBoxPyramid() *coord.TileBBoxPyramid { return r.pyramid }

func (r *tileJSONReader) SourceType() blob.SourceType {
	return blob.SourceType{Kind: blob.KindContainer, Name: "from_tilejson", URI: r.tileURL}
}

var fetchBackoffBase = 100 * time.Millisecond

// fetchWithRetry issues a GET request, retrying transient failures (5xx,
// connection errors) up to maxRetries times with exponential backoff. A 404
// is reported as xerrors.NotFound and is never retried.
func fetchWithRetry(ctx context.Context, client *http.Client, url string, maxRetries int) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := fetchBackoffBase * time.Duration(1<<uint(bits.Len(uint(attempt))))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, xerrors.New(xerrors.NotFound, fmt.Sprintf("fetching %s: 404", url))
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, lastErr
}
