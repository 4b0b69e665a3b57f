package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxPageSize is the maximum size of raw page content to keep in memory.
// Larger responses are truncated at read time by the fetch layer.
const MaxPageSize = 10 * 1024 * 1024 // 10 MB

// Page holds one fetched HTTP response.
//
// Design decision: We store both the raw bytes and the decoded text
// because:
//  1. Binary assets (images, fonts) only need the bytes
//  2. HTML and CSS need charset-decoded text for parsing and rewriting
//  3. The hash allows change detection between snapshot runs
type Page struct {
	// URL is the URL the content was served from. When the request was
	// redirected this is the FINAL URL, which all relative references
	// must be resolved against.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the response headers (canonicalized keys).
	Headers map[string][]string `json:"headers,omitempty"`

	// ContentType is the media type from the Content-Type header,
	// lower-cased and stripped of parameters.
	ContentType string `json:"content_type"`

	// Body is the raw response body, capped at MaxPageSize.
	Body []byte `json:"-"`

	// Text is the charset-decoded body. Empty for binary content.
	Text string `json:"-"`

	// Hash is the SHA-256 hex digest of Body.
	Hash string `json:"hash,omitempty"`
}

// ComputeHash fills Hash from Body. Empty or nil bodies produce an
// empty hash.
func (p *Page) ComputeHash() {
	if len(p.Body) == 0 {
		p.Hash = ""
		return
	}
	sum := sha256.Sum256(p.Body)
	p.Hash = hex.EncodeToString(sum[:])
}

// GetHeader returns the first value of the named header, or "".
func (p *Page) GetHeader(name string) string {
	values := p.Headers[name]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// IsHTML reports whether the response looks like an HTML document.
func (p *Page) IsHTML() bool {
	return strings.Contains(p.ContentType, "text/html") ||
		strings.Contains(p.ContentType, "application/xhtml")
}

// IsCSS reports whether the response looks like a stylesheet.
func (p *Page) IsCSS() bool {
	return strings.HasPrefix(p.ContentType, "text/css")
}
