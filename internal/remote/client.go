// Package remote is the editor side of the mapping backend: it loads the
// document at start, exports it and fetches screenshots.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"touchmap/internal/embedded"
	"touchmap/internal/keymap"
)

// maxBody bounds responses read from the backend
const maxBody = 32 << 20

// Client talks to the mapping backend over HTTP
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the backend at baseURL (e.g. "http://127.0.0.1:61070")
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// Fetch loads the document stored by the backend
func (c *Client) Fetch(ctx context.Context) (keymap.Document, error) {
	data, err := c.do(ctx, "GET", "/configure/get", nil)
	if err != nil {
		return keymap.Document{}, err
	}
	return keymap.Decode(data)
}

// LoadOrDefault fetches the stored document and falls back to the embedded
// default when the backend is unreachable or returns an invalid document.
func (c *Client) LoadOrDefault(ctx context.Context) (keymap.Document, error) {
	doc, err := c.Fetch(ctx)
	if err == nil {
		log.Printf("Remote: Loaded mapping from %s (%d keys)", c.baseURL, doc.KeyMaps.Len())
		return doc, nil
	}
	log.Printf("Warning: Remote: Load from %s failed, using the default mapping: %v", c.baseURL, err)
	return embedded.Default()
}

// Push sends doc to the backend and returns the status text it replied with
func (c *Client) Push(ctx context.Context, doc keymap.Document) (string, error) {
	data, err := keymap.Encode(doc)
	if err != nil {
		return "", err
	}
	reply, err := c.do(ctx, "POST", "/configure/set", data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(reply)), nil
}

// FetchScreenshot downloads the current device screenshot
func (c *Client) FetchScreenshot(ctx context.Context) ([]byte, error) {
	return c.do(ctx, "GET", "/screen.png", nil)
}

// Health checks that the backend answers
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "GET", "/health", nil)
	return err
}
