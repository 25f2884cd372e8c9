// Package embed implements the pluggable embedding generator described in
// spec §4.2: a local model client and an OpenAI-shaped HTTP
// "/v1/embeddings" client behind one interface.
//
// Grounded on the teacher's internal/ai/ollama.go (local HTTP embedding
// client, retry/fallback shape) generalized to also speak the remote
// provider shape.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Generator produces dense embedding vectors for arbitrary text. Storage
// treats the result as an opaque array (spec §4.2).
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config selects and configures one of the two concrete modes.
type Config struct {
	Mode      string // "local" | "http"
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// New constructs the configured Generator.
func New(cfg Config) Generator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	switch cfg.Mode {
	case "http":
		return &openAIStyleClient{baseURL: cfg.BaseURL, model: cfg.Model, apiKey: cfg.APIKey, dim: cfg.Dimension, client: client}
	default:
		return &localClient{baseURL: cfg.BaseURL, model: cfg.Model, dim: cfg.Dimension, client: client}
	}
}

// localClient talks to a local CPU/GPU embedding server (e.g. an
// Ollama-style `/api/embeddings` endpoint), mirroring
// internal/ai/ollama.go's request shape.
type localClient struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

func (c *localClient) Dimension() int { return c.dim }

func (c *localClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]string{"model": c.model, "prompt": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local embedding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local embedding server returned %d", resp.StatusCode)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode local embedding response: %w", err)
	}
	return out.Embedding, nil
}

// openAIStyleClient speaks the `/v1/embeddings` shape spec §4.2 names.
type openAIStyleClient struct {
	baseURL string
	model   string
	apiKey  string
	dim     int
	client  *http.Client
}

func (c *openAIStyleClient) Dimension() int { return c.dim }

func (c *openAIStyleClient) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(map[string]any{"model": c.model, "input": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http embedding request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d", resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedding service returned no data")
	}
	return out.Data[0].Embedding, nil
}
