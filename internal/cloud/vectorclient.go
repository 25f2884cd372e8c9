// Package cloud implements the cloud secondary backend (spec §4.4): an HTTP
// client against three logical services (vector, relational, object) behind
// the same storage.Backend contract the primary embedded backend satisfies.
//
// Grounded on internal/vector/qdrant.go's HTTP client shape (collection
// lifecycle, upsert/search/delete over a REST vector store), generalized
// from a fixed 768-dim nomic-embed-text collection to an arbitrary
// collection name and dimension, and extended with relational-row and
// object-store sub-clients §4.4 requires but the teacher's Qdrant client
// did not need.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// vectorClient mirrors vector.QdrantClient's collection lifecycle and
// upsert/search/delete shape, adapted to float32 and a configurable
// collection.
type vectorClient struct {
	baseURL        string
	collectionName string
	dimension      int
	httpClient     *http.Client
}

func newVectorClient(baseURL, collection string, dim int, client *http.Client) *vectorClient {
	return &vectorClient{baseURL: baseURL, collectionName: collection, dimension: dim, httpClient: client}
}

func (c *vectorClient) isAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *vectorClient) initCollection(ctx context.Context) error {
	exists, err := c.collectionExists(ctx)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	createReq := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimension,
			"distance": "Cosine",
		},
		"hnsw_config": map[string]any{
			"m":            16,
			"ef_construct": 100,
		},
	}
	return c.put(ctx, fmt.Sprintf("/collections/%s", c.collectionName), createReq, nil)
}

func (c *vectorClient) collectionExists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", c.baseURL, c.collectionName), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// vectorPoint is one upserted/retrieved point.
type vectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

func (c *vectorClient) upsert(ctx context.Context, points []vectorPoint) error {
	encoded := make([]map[string]any, len(points))
	for i, p := range points {
		encoded[i] = map[string]any{"id": p.ID, "vector": p.Vector, "payload": p.Payload}
	}
	return c.put(ctx, fmt.Sprintf("/collections/%s/points", c.collectionName), map[string]any{"points": encoded}, nil)
}

type vectorSearchResult struct {
	ID      string
	Score   float64
	Payload map[string]any
}

func (c *vectorClient) search(ctx context.Context, vector []float32, limit int) ([]vectorSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	body := map[string]any{"vector": vector, "limit": limit, "with_payload": true}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.post(ctx, fmt.Sprintf("/collections/%s/points/search", c.collectionName), body, &resp); err != nil {
		return nil, err
	}

	out := make([]vectorSearchResult, len(resp.Result))
	for i, r := range resp.Result {
		out[i] = vectorSearchResult{ID: fmt.Sprintf("%v", r.ID), Score: r.Score, Payload: r.Payload}
	}
	return out, nil
}

func (c *vectorClient) delete(ctx context.Context, ids []string) error {
	return c.post(ctx, fmt.Sprintf("/collections/%s/points/delete", c.collectionName), map[string]any{"points": ids}, nil)
}

func (c *vectorClient) count(ctx context.Context) (int64, error) {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := c.get(ctx, fmt.Sprintf("/collections/%s", c.collectionName), &resp); err != nil {
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

func (c *vectorClient) put(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *vectorClient) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *vectorClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *vectorClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &httpError{transient: true, err: fmt.Errorf("%s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return classifyHTTPStatus(resp.StatusCode, fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

var defaultVectorClientTimeout = 30 * time.Second
