package crawler

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/sitesnap/internal/snapshot"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Parser extracts crawl-relevant references from HTML content.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. Provides a proper DOM-like structure
//  3. More maintainable than complex regex patterns
//  4. Standard library extension, well-maintained
type Parser struct {
	// base is the canonical URL of the page being parsed, used for
	// resolving relative references.
	base urlnorm.Canonical
}

// ParseResult contains the references extracted from one HTML page.
//
// Design decision: We return a result struct from a single parsing pass
// rather than exposing multiple extraction methods because:
//  1. Each page is parsed exactly once
//  2. Related data can be collected together
//  3. Caller can choose what to use
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Links are the canonical anchor targets found on the page.
	// Only http and https URLs survive resolution.
	Links []urlnorm.Canonical

	// MediaURLs are the canonical media references found on the page:
	// image and iframe sources, srcset candidates, and video posters.
	MediaURLs []urlnorm.Canonical
}

// NewParser creates a parser that resolves references against base.
func NewParser(base urlnorm.Canonical) *Parser {
	return &Parser{base: base}
}

// Parse parses HTML content and extracts links and media references.
// The returned slices preserve document order with duplicates removed.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	return &ParseResult{
		Title:     pageTitle(doc),
		Links:     dedup(snapshot.ExtractLinks(doc, p.base)),
		MediaURLs: dedup(snapshot.ExtractMediaURLs(doc, p.base)),
	}, nil
}

// dedup removes repeated canonical URLs while preserving first-seen order.
func dedup(urls []urlnorm.Canonical) []urlnorm.Canonical {
	seen := make(map[urlnorm.Canonical]bool, len(urls))
	unique := make([]urlnorm.Canonical, 0, len(urls))
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique
}

// pageTitle returns the trimmed text of the first <title> element.
func pageTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
