// Package httpclient posts JSON to a single collaborator endpoint.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBody = 1 << 20

// ResponseInfo is a fully read response. Body is capped at 1 MiB.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r ResponseInfo) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request. Zero leaves requests bounded only by ctx.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithHTTPClient replaces the underlying client. Its Timeout is kept unless
// WithTimeout comes later.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			copied := *hc
			c.hc = &copied
		}
	}
}

// Client sends JSON requests to one endpoint.
type Client struct {
	url     string
	headers http.Header
	hc      *http.Client
}

// New creates a client for url.
func New(url string, opts ...Option) *Client {
	c := &Client{url: url, headers: http.Header{}, hc: &http.Client{}}
	c.headers.Set("Content-Type", "application/json")
	c.headers.Set("User-Agent", "codepad")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint.
func (c *Client) URL() string {
	return c.url
}

// PostJSON marshals payload and posts it. extra headers override the defaults.
func (c *Client) PostJSON(ctx context.Context, payload interface{}, extra map[string]string) (ResponseInfo, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ResponseInfo{}, fmt.Errorf("marshal payload: %w", err)
	}
	return c.Do(ctx, http.MethodPost, body, extra)
}

// Do sends body with method and reads the response.
func (c *Client) Do(ctx context.Context, method string, body []byte, extra map[string]string) (ResponseInfo, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url, reader)
	if err != nil {
		return ResponseInfo{}, fmt.Errorf("build %s %s: %w", method, c.url, err)
	}
	req.Header = c.headers.Clone()
	for k, v := range extra {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	info := ResponseInfo{Duration: time.Since(start)}
	if err != nil {
		return info, fmt.Errorf("%s %s: %w", method, c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode, info.Headers = resp.StatusCode, resp.Header
	if info.Body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBody)); err != nil {
		return info, fmt.Errorf("read %s response: %w", c.url, err)
	}
	return info, nil
}
