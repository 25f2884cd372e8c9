package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/engramhq/engram/internal/health"
	"github.com/engramhq/engram/internal/store"
	"github.com/engramhq/engram/pkg/config"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32((len(text) + i) % 7)
	}
	return v, nil
}

func newTestServerWithConfig(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "primary.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backend := store.NewPrimary(db, &fakeEmbedder{dim: 8})
	monitor := health.NewMonitor(db)
	cfg := config.DefaultConfig()
	cfg.RestAPI.APIKey = ""
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	return NewServer(backend, nil, monitor, cfg)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithConfig(t, nil)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthHistoryHandler(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/history", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthResolveUnknownID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/health/does-not-exist/resolve", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	s := newTestServerWithConfig(t, func(c *config.Config) {
		c.RestAPI.APIKey = "secret"
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/history", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStatsHandler(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSyncHandlersUnavailableWithoutHybrid(t *testing.T) {
	s := newTestServer(t)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/api/v1/sync/force", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/sync/initial-status", nil),
	} {
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d: %s", req.Method, req.URL.Path, w.Code, w.Body.String())
		}
	}
}
