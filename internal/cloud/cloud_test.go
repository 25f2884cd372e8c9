package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/engramhq/engram/internal/models"
)

// fakeCloud stands in for the three remote services behind a single
// httptest server, enough to exercise Backend's request/response shapes
// without a real Qdrant/row-store/object-store deployment.
type fakeCloud struct {
	mu      sync.Mutex
	rows    map[string]remoteRow
	vectors map[string]vectorPoint
	objects map[string]string
	columns map[string]bool
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		rows:    map[string]remoteRow{},
		vectors: map[string]vectorPoint{},
		objects: map[string]string{},
		columns: map[string]bool{"content_hash": true, "content": true},
	}
}

func (f *fakeCloud) server() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/collections/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/engram-memories":
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points_count": len(f.vectors)}})
		case r.Method == http.MethodPut && r.URL.Path == "/collections/engram-memories":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/engram-memories/points":
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  []float32      `json:"vector"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				f.vectors[p.ID] = vectorPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	})

	mux.HandleFunc("/tables/memories/schema", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var cols []string
		for c := range f.columns {
			cols = append(cols, c)
		}
		json.NewEncoder(w).Encode(map[string]any{"columns": cols})
	})

	mux.HandleFunc("/tables/memories/schema/columns", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct{ Name, Type string }
		json.NewDecoder(r.Body).Decode(&body)
		f.columns[body.Name] = true
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/tables/memories/count", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"count": len(f.rows)})
	})

	mux.HandleFunc("/tables/memories/rows/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		hash := r.URL.Path[len("/tables/memories/rows/"):]
		switch r.Method {
		case http.MethodPut:
			var row remoteRow
			json.NewDecoder(r.Body).Decode(&row)
			f.rows[row.ContentHash] = row
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			row, ok := f.rows[hash]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(row)
		case http.MethodDelete:
			delete(f.rows, hash)
			w.WriteHeader(http.StatusOK)
		}
	})

	return httptest.NewServer(mux)
}

func newTestBackend(t *testing.T, srv *httptest.Server) *Backend {
	t.Helper()
	cfg := DefaultConfig()
	cfg.VectorURL = srv.URL
	cfg.RelationalURL = srv.URL
	cfg.ObjectURL = srv.URL
	cfg.SchemaVerifyAttempts = 2
	return New(cfg)
}

func TestCloudStoreAndGetByHash(t *testing.T) {
	fc := newFakeCloud()
	srv := fc.server()
	defer srv.Close()
	b := newTestBackend(t, srv)
	ctx := context.Background()

	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	m := &models.Memory{Content: "remote observation", MemoryType: "observation", Tags: []string{"cloud"}}
	m.ContentHash = models.ContentHash(m.Content)
	out, err := b.Store(ctx, m)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !out.OK {
		t.Fatalf("expected ok store, got %+v", out)
	}

	fetched, err := b.GetByHash(ctx, m.ContentHash)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if fetched == nil || fetched.Content != m.Content {
		t.Fatalf("expected round-tripped memory, got %+v", fetched)
	}
}

func TestCloudDeleteSoftDeletes(t *testing.T) {
	fc := newFakeCloud()
	srv := fc.server()
	defer srv.Close()
	b := newTestBackend(t, srv)
	ctx := context.Background()

	m := &models.Memory{Content: "to be deleted"}
	m.ContentHash = models.ContentHash(m.Content)
	if _, err := b.Store(ctx, m); err != nil {
		t.Fatalf("Store: %v", err)
	}

	out, err := b.Delete(ctx, m.ContentHash)
	if err != nil || !out.OK {
		t.Fatalf("Delete: out=%+v err=%v", out, err)
	}

	deleted, err := b.IsDeleted(ctx, m.ContentHash)
	if err != nil {
		t.Fatalf("IsDeleted: %v", err)
	}
	if !deleted {
		t.Fatal("expected row to be marked deleted")
	}
}
