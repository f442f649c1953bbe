package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/versatiles-org/versatiles-go/internal/coord"
)

func TestFromTileJSON_RetriesServerErrorsThenSucceeds(t *testing.T) {
	orig := fetchBackoffBase
	fetchBackoffBase = time.Millisecond
	defer func() { fetchBackoffBase = orig }()

	var tileRequests int32
	var failuresLeft int32 = 2

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/tiles.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tilejson": "3.0.0",
			"tiles":    []string{server.URL + "/tiles/{z}/{x}/{y}.pbf"},
			"minzoom":  0,
			"maxzoom":  5,
		})
	})
	mux.HandleFunc("/tiles/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tileRequests, 1)
		if atomic.AddInt32(&failuresLeft, -1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("tile-bytes"))
	})

	reader, err := newTileJSONReader(context.Background(), server.URL+"/tiles.json", server.Client(), 3, 4)
	if err != nil {
		t.Fatalf("newTileJSONReader: %v", err)
	}

	c, _ := coord.NewTileCoord(3, 1, 1)
	data, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if !ok {
		t.Fatal("expected the tile to eventually succeed after two 503s")
	}
	if string(data.Bytes()) != "tile-bytes" {
		t.Fatalf("data = %q, want %q", data.Bytes(), "tile-bytes")
	}
	if got := atomic.LoadInt32(&tileRequests); got != 3 {
		t.Fatalf("tile requests = %d, want exactly 3 (2 failures + 1 success)", got)
	}
}

func TestFromTileJSON_404IsReportedAsMissingNotError(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/tiles.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tilejson": "3.0.0",
			"tiles":    []string{server.URL + "/tiles/{z}/{x}/{y}.pbf"},
			"minzoom":  0,
			"maxzoom":  5,
		})
	})
	mux.HandleFunc("/tiles/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	reader, err := newTileJSONReader(context.Background(), server.URL+"/tiles.json", server.Client(), 1, 2)
	if err != nil {
		t.Fatalf("newTileJSONReader: %v", err)
	}

	c, _ := coord.NewTileCoord(2, 0, 0)
	_, ok, err := reader.GetTile(context.Background(), c)
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a 404")
	}
}
