package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/sitesnap/internal/model"
)

// Client fetches pages and assets over HTTP(S).
//
// Design decision: We wrap *http.Client in a struct rather than passing
// it around directly because:
//  1. The User-Agent and per-site headers must be applied consistently
//  2. Body size capping belongs with the read, not with each caller
//  3. Tests can swap the underlying client or transport freely
type Client struct {
	// httpClient performs the actual requests. Redirects are followed
	// by net/http's default policy (up to 10 hops).
	httpClient *http.Client

	// userAgent is the User-Agent header to send.
	userAgent string

	// headers are extra headers applied to every request (per-site
	// overrides from the config file).
	headers map[string]string

	// cookie is an optional Cookie header value.
	cookie string

	// maxBodySize limits how many response bytes are read.
	maxBodySize int64
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxBodySize sets the maximum response body size to read.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithHeaders sets extra headers applied to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithCookie sets a Cookie header sent with every request.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithTransport replaces the underlying round tripper. Used to route
// requests through a SOCKS5 proxy for .onion targets.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
// Mainly for tests that need httptest.Server clients.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 25 * time.Second,
		},
		userAgent: "sitesnap",
		maxBodySize: model.MaxPageSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get fetches a URL and returns the response as a Page. Redirects are
// followed; the returned Page.URL is the FINAL URL so callers resolve
// relative references correctly. Non-2xx statuses are errors: per the
// error model a failed asset fetch degrades to "leave the reference
// unlocalized", which callers implement by discarding the error.
func (c *Client) Get(ctx context.Context, rawURL string) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request for %s: %w", rawURL, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read errors surface via io.ReadAll

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	page := &model.Page{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
		Body:        body,
	}
	page.ComputeHash()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return page, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	return page, nil
}

// GetText fetches a URL and decodes the body as text, using the
// charset from the Content-Type header or in-document hints.
func (c *Client) GetText(ctx context.Context, rawURL string) (*model.Page, error) {
	page, err := c.Get(ctx, rawURL)
	if err != nil {
		return page, err
	}

	page.Text = DecodeText(page.Body, page.GetHeader("Content-Type"))
	return page, nil
}

// mediaType strips parameters from a Content-Type value and lower-cases
// the result ("Text/HTML; charset=utf-8" -> "text/html").
func mediaType(contentType string) string {
	mt, _, found := strings.Cut(contentType, ";")
	if !found {
		mt = contentType
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
