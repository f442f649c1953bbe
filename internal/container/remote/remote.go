// Package remote adapts an HTTP endpoint supporting byte-range GET requests
// to the container.RangeReader capability (spec.md §4.1, §4.3), so a native
// .versatiles container or PMTiles archive can be read directly over HTTP
// without downloading it.
package remote

import (
	"fmt"
	"io"
	"net/http"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// Backend is an HTTP-range-backed container.RangeReader.
type Backend struct {
	url    string
	client *http.Client
	size   int64
}

// Open validates that url supports HTTP byte-range requests and returns a
// Backend sized from the response's Content-Length (or a ranged probe).
func Open(url string, client *http.Client) (*Backend, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "remote: building HEAD request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Io, "remote: HEAD request", err)
	}
	resp.Body.Close()

	if resp.Header.Get("Accept-Ranges") != "bytes" {
		probe, err := rangeProbe(client, url)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Unsupported, "remote: server does not support byte ranges", err)
		}
		return &Backend{url: url, client: client, size: probe}, nil
	}
	return &Backend{url: url, client: client, size: resp.ContentLength}, nil
}

// rangeProbe issues a single-byte range request to confirm range support
// and recover the total size from the Content-Range header, for servers
// that omit Accept-Ranges but still honor Range requests.
func rangeProbe(client *http.Client, url string) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("remote: expected 206, got %d", resp.StatusCode)
	}
	var total int64
	if _, err := fmt.Sscanf(resp.Header.Get("Content-Range"), "bytes 0-0/%d", &total); err != nil {
		return 0, fmt.Errorf("remote: parsing Content-Range: %w", err)
	}
	return total, nil
}

// Size implements container.RangeReader.
func (b *Backend) Size() int64 { return b.size }

// ReadAt implements io.ReaderAt via an HTTP Range request per call. Callers
// that need many small reads should layer caching above this (§4.1's
// tile-index and tile-payload LRUs).
func (b *Backend) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	req, err := http.NewRequest(http.MethodGet, b.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.Io, "remote: range GET", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, xerrors.New(xerrors.Io, fmt.Sprintf("remote: unexpected status %d", resp.StatusCode))
	}
	return io.ReadFull(resp.Body, p)
}

// Close is a no-op: the backend holds no persistent connection.
func (b *Backend) Close() error { return nil }
