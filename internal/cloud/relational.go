package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// relationalClient talks to the remote row store behind a minimal REST
// surface: PUT to upsert a row, GET to fetch by hash, GET .../rows with
// limit/before parameters to list a page, and a schema endpoint for the additive-migration dance
// spec §4.4 requires. The teacher's pack has no remote relational client to
// ground this on directly; the request/response shape follows the same
// plain-JSON-over-net/http idiom as internal/vector/qdrant.go.
type relationalClient struct {
	baseURL    string
	table      string
	httpClient *http.Client
}

func newRelationalClient(baseURL, table string, client *http.Client) *relationalClient {
	return &relationalClient{baseURL: baseURL, table: table, httpClient: client}
}

type remoteRow struct {
	ContentHash  string         `json:"content_hash"`
	Content      string         `json:"content"`
	ContentURI   string         `json:"content_uri,omitempty"`
	MemoryType   string         `json:"memory_type"`
	Tags         string         `json:"tags"`
	Metadata     string         `json:"metadata"`
	CreatedAt    float64        `json:"created_at"`
	CreatedAtISO string         `json:"created_at_iso"`
	UpdatedAt    float64        `json:"updated_at"`
	UpdatedAtISO string         `json:"updated_at_iso"`
	DeletedAt    *float64       `json:"deleted_at,omitempty"`
}

func (c *relationalClient) upsertRow(ctx context.Context, row remoteRow) error {
	return withRetry(3, func() error {
		return c.do(ctx, http.MethodPut, fmt.Sprintf("/tables/%s/rows/%s", c.table, row.ContentHash), row, nil)
	})
}

func (c *relationalClient) getRow(ctx context.Context, hash string) (*remoteRow, error) {
	var row remoteRow
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tables/%s/rows/%s", c.table, hash), nil, &row)
	if err != nil {
		if he, ok := asHTTPError(err); ok && he.status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (c *relationalClient) deleteRow(ctx context.Context, hash string) error {
	return withRetry(3, func() error {
		return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tables/%s/rows/%s", c.table, hash), nil, nil)
	})
}

// cursorPage is one page of the cursor-based enumeration spec §4.4 names,
// avoiding the remote store's deep-offset limitations.
type cursorPage struct {
	Rows       []remoteRow `json:"rows"`
	NextCursor float64     `json:"next_cursor"`
	HasMore    bool        `json:"has_more"`
}

func (c *relationalClient) listPage(ctx context.Context, limit int, cursor float64) (*cursorPage, error) {
	var page cursorPage
	path := fmt.Sprintf("/tables/%s/rows?limit=%d&before=%f", c.table, limit, cursor)
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *relationalClient) count(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tables/%s/count", c.table), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// columns returns the remote table's current column list, used by the
// additive-migration retry-and-verify loop.
func (c *relationalClient) columns(ctx context.Context) ([]string, error) {
	var resp struct {
		Columns []string `json:"columns"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tables/%s/schema", c.table), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Columns, nil
}

func (c *relationalClient) addColumn(ctx context.Context, column, sqlType string) error {
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/tables/%s/schema/columns", c.table), map[string]string{
		"name": column,
		"type": sqlType,
	}, nil)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
		// Idempotent success per spec §4.4 step 5.
		return nil
	}
	return err
}

// ensureColumns runs the additive-migration retry-and-verify loop: issue
// ADD COLUMN, re-read the schema, retry verification up to maxAttempts
// times before giving up with an actionable manual-fix message.
func (c *relationalClient) ensureColumns(ctx context.Context, columns map[string]string, maxAttempts int, retryDelay time.Duration) error {
	existing, err := c.columns(ctx)
	if err != nil {
		return fmt.Errorf("read remote schema: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, col := range existing {
		have[col] = true
	}

	for name, sqlType := range columns {
		if have[name] {
			continue
		}
		if err := c.addColumn(ctx, name, sqlType); err != nil {
			return fmt.Errorf("add column %q: %w", name, err)
		}

		verified := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			cols, err := c.columns(ctx)
			if err == nil {
				for _, col := range cols {
					if col == name {
						verified = true
						break
					}
				}
			}
			if verified {
				break
			}
			time.Sleep(retryDelay)
		}
		if !verified {
			return fmt.Errorf(
				"column %q did not become visible after %d attempts; apply manually: ALTER TABLE %s ADD COLUMN %s %s",
				name, maxAttempts, c.table, name, sqlType)
		}
	}
	return nil
}

func (c *relationalClient) do(ctx context.Context, method, path string, body any, out any) error {
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

func asHTTPError(err error) (*httpError, bool) {
	he, ok := err.(*httpError)
	return he, ok
}
