package snapshot

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// srcsetSplitRe separates the comma-delimited entries of a srcset value.
var srcsetSplitRe = regexp.MustCompile(`\s*,\s*`)

// rewriteBody localizes media references throughout the document:
// img/iframe src and srcset, source src and srcset, video poster.
// References that fail to localize keep their original value, so a
// dead image URL degrades to exactly what the live page had. <base>
// elements are removed so the emitted relative paths resolve when the
// bundle is opened from the filesystem.
func (e *Engine) rewriteBody(ctx context.Context, doc *html.Node) {
	for _, el := range findAllElements(doc, "img", "iframe") {
		e.rewriteAttr(ctx, el, "src")
		e.rewriteSrcsetAttr(ctx, el)
	}

	for _, el := range findAllElements(doc, "source") {
		e.rewriteAttr(ctx, el, "src")
		e.rewriteSrcsetAttr(ctx, el)
	}

	for _, el := range findAllElements(doc, "video") {
		e.rewriteAttr(ctx, el, "poster")
	}

	for _, el := range findAllElements(doc, "base") {
		detach(el)
	}
}

// rewriteAttr localizes a single URL-valued attribute in place.
func (e *Engine) rewriteAttr(ctx context.Context, el *html.Node, attr string) {
	val := getAttr(el, attr)
	if val == "" {
		return
	}
	target, ok := urlnorm.Resolve(e.base, val)
	if !ok {
		return
	}
	if rel, ok := e.store.Localize(ctx, target); ok {
		setAttr(el, attr, rel)
	}
}

// rewriteSrcsetAttr rewrites a srcset attribute if present.
func (e *Engine) rewriteSrcsetAttr(ctx context.Context, el *html.Node) {
	if val := getAttr(el, "srcset"); val != "" {
		setAttr(el, "srcset", e.rewriteSrcset(ctx, val))
	}
}

// rewriteSrcset localizes each URL token of a srcset value
// independently, preserving the descriptor suffix ("2x", "640w") and
// rejoining with ", ". Entries that fail to localize stay verbatim, so
// partial success keeps the remaining candidates working.
func (e *Engine) rewriteSrcset(ctx context.Context, value string) string {
	parts := srcsetSplitRe.Split(strings.TrimSpace(value), -1)
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		if part == "" {
			continue
		}

		tokens := strings.Fields(part)
		urlToken := tokens[0]
		descriptor := strings.Join(tokens[1:], " ")

		target, ok := urlnorm.Resolve(e.base, urlToken)
		if !ok {
			out = append(out, part)
			continue
		}
		rel, ok := e.store.Localize(ctx, target)
		if !ok {
			out = append(out, part)
			continue
		}

		if descriptor != "" {
			rel += " " + descriptor
		}
		out = append(out, rel)
	}

	return strings.Join(out, ", ")
}

// ExtractMediaURLs returns the resolvable media references of a parsed
// document (src, poster, and srcset candidates) without mutating it.
// The crawl scheduler uses this to warm the asset store from pages
// other than the start page.
func ExtractMediaURLs(doc *html.Node, base urlnorm.Canonical) []urlnorm.Canonical {
	var urls []urlnorm.Canonical
	add := func(href string) {
		if href == "" {
			return
		}
		if target, ok := urlnorm.Resolve(base, href); ok {
			urls = append(urls, target)
		}
	}

	for _, el := range findAllElements(doc, "img", "iframe", "source") {
		add(getAttr(el, "src"))
		for _, part := range srcsetSplitRe.Split(strings.TrimSpace(getAttr(el, "srcset")), -1) {
			if tokens := strings.Fields(part); len(tokens) > 0 {
				add(tokens[0])
			}
		}
	}
	for _, el := range findAllElements(doc, "video") {
		add(getAttr(el, "poster"))
	}

	return urls
}

// ExtractLinks returns the resolvable anchor targets of a parsed
// document. Used by the crawl scheduler for link discovery.
func ExtractLinks(doc *html.Node, base urlnorm.Canonical) []urlnorm.Canonical {
	var links []urlnorm.Canonical
	for _, el := range findAllElements(doc, "a") {
		if target, ok := urlnorm.Resolve(base, getAttr(el, "href")); ok {
			links = append(links, target)
		}
	}
	return links
}
