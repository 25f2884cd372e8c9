package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// objectClient stores oversized content by hash, keeping only a URI in the
// relational row (spec §4.4 "Oversize content").
type objectClient struct {
	baseURL    string
	bucket     string
	httpClient *http.Client
}

func newObjectClient(baseURL, bucket string, client *http.Client) *objectClient {
	return &objectClient{baseURL: baseURL, bucket: bucket, httpClient: client}
}

func (c *objectClient) uri(hash string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, hash)
}

func (c *objectClient) put(ctx context.Context, hash, content string) (string, error) {
	uri := c.uri(hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uri, bytes.NewReader([]byte(content)))
	if err != nil {
		return "", fmt.Errorf("build object put request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &httpError{transient: true, err: fmt.Errorf("put object %s: %w", hash, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyHTTPStatus(resp.StatusCode, fmt.Errorf("put object %s returned %d: %s", hash, resp.StatusCode, string(body)))
	}
	return uri, nil
}

func (c *objectClient) get(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("build object get request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &httpError{transient: true, err: fmt.Errorf("get object %s: %w", uri, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", classifyHTTPStatus(resp.StatusCode, fmt.Errorf("get object %s returned %d: %s", uri, resp.StatusCode, string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", uri, err)
	}
	return string(body), nil
}

func (c *objectClient) delete(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, uri, nil)
	if err != nil {
		return fmt.Errorf("build object delete request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &httpError{transient: true, err: fmt.Errorf("delete object %s: %w", uri, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return classifyHTTPStatus(resp.StatusCode, fmt.Errorf("delete object %s returned %d: %s", uri, resp.StatusCode, string(body)))
	}
	return nil
}
