// Package news fetches the launcher news feed and renders it as text.
package news

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Item is one news entry. Content may carry simple HTML.
type Item struct {
	Title   string `json:"title"`
	Date    string `json:"date"`
	Content string `json:"content"`
}

// Client reads the feed
type Client struct {
	url    string
	client *resty.Client
}

// NewClient creates a Client for the feed at url
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, client: resty.New().SetTimeout(timeout)}
}

// Fetch returns the feed entries in feed order
func (c *Client) Fetch(ctx context.Context) ([]Item, error) {
	var items []Item
	resp, err := c.client.R().SetContext(ctx).SetResult(&items).ForceContentType("application/json").Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch news: HTTP %d", resp.StatusCode())
	}
	return items, nil
}

var blank = regexp.MustCompile(`\n{3,}`)

// PlainText strips markup from feed content. Paragraphs, headings and
// list items end a line; list items are bulleted.
func PlainText(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for done := false; !done; {
		switch z.Next() {
		case html.ErrorToken:
			done = true
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Br:
				b.WriteString("\n")
			case atom.Li:
				b.WriteString("* ")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.P, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteString("\n")
			}
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(blank.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// Format renders entries for the terminal, newest first as the feed lists them
func Format(items []Item) string {
	if len(items) == 0 {
		return "No news to show.\n"
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString(strings.Repeat("-", 60))
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimSpace(item.Title))
		if item.Date != "" {
			fmt.Fprintf(&b, " (%s)", item.Date)
		}
		b.WriteString("\n\n")
		if body := PlainText(item.Content); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
