// Package manifest fetches the remote modpack manifest that maps each
// modality feed to its current version and archive location.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a manifest fetch. The launcher must stay playable
// when the update service is slow or down.
const DefaultTimeout = 5 * time.Second

// Entry describes the published modpack for one feed
type Entry struct {
	Version     string `json:"version"`
	DownloadURL string `json:"downloadUrl"`
}

// Manifest maps feed keys to their published modpack
type Manifest map[string]Entry

// Lookup returns the entry for a feed key. Entries missing a version or
// download URL are treated as absent.
func (m Manifest) Lookup(feed string) (Entry, bool) {
	e, ok := m[feed]
	if !ok || e.Version == "" || e.DownloadURL == "" {
		return Entry{}, false
	}
	return e, true
}

// Fetcher retrieves manifests over HTTP
type Fetcher interface {
	Fetch(ctx context.Context) (Manifest, error)
}

// Client fetches the manifest from a fixed URL
type Client struct {
	url  string
	http *resty.Client
}

// NewClient creates a manifest client for url. A zero timeout uses DefaultTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url: url,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "firecraft-launcher"),
	}
}

// Fetch downloads and parses the manifest
func (c *Client) Fetch(ctx context.Context) (Manifest, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-cache").
		Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch manifest: HTTP %d", resp.StatusCode())
	}

	var m Manifest
	if err := json.Unmarshal(resp.Body(), &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}
