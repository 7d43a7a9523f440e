// Package mojang reads Mojang's public game version manifest.
package mojang

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ManifestURL is the official version manifest
const ManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// Version is one game version
type Version struct {
	ID          string
	Type        string
	ReleaseTime time.Time
}

// Client fetches the manifest
type Client struct {
	url    string
	client *resty.Client
}

// NewClient creates a Client; an empty url uses ManifestURL
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = ManifestURL
	}
	return &Client{url: url, client: resty.New().SetTimeout(timeout)}
}

// Releases returns release versions, newest first as Mojang lists them,
// along with the latest release id.
func (c *Client) Releases(ctx context.Context) ([]Version, string, error) {
	resp, err := c.client.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch version manifest: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("failed to fetch version manifest: HTTP %d", resp.StatusCode())
	}
	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return nil, "", fmt.Errorf("failed to parse version manifest: invalid JSON")
	}

	doc := gjson.ParseBytes(body)
	var out []Version
	doc.Get("versions").ForEach(func(_, v gjson.Result) bool {
		if v.Get("type").String() != "release" {
			return true
		}
		released, _ := time.Parse(time.RFC3339, v.Get("releaseTime").String())
		out = append(out, Version{ID: v.Get("id").String(), Type: "release", ReleaseTime: released})
		return true
	})
	return out, doc.Get("latest.release").String(), nil
}
