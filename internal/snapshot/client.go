// internal/snapshot/client.go
package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mapcrafter/playermarkers/pkg/core"
)

// Client polls the snapshot over HTTP.
type Client struct {
	baseURL    string
	path       string
	httpClient *http.Client
}

// NewClient creates a client for <baseURL>/<path>. An empty path uses DefaultPath.
func NewClient(baseURL, path string) *Client {
	if path == "" {
		path = DefaultPath
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       strings.TrimLeft(path, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// URL returns the snapshot URL.
func (c *Client) URL() string {
	if c.baseURL == "" {
		return c.path
	}
	return c.baseURL + "/" + c.path
}

// Fetch downloads and decodes the snapshot.
func (c *Client) Fetch(ctx context.Context) (core.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(), nil)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Snapshot{}, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}
