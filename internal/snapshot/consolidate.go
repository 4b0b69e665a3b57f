package snapshot

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/sitesnap/internal/asset"
	"github.com/nao1215/sitesnap/internal/fetch"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// errNoDocument is returned when a phase runs before FetchStartPage.
var errNoDocument = errors.New("no document: start page has not been fetched")

// iconRels are the link rel tokens that mark an icon reference. Icon
// links stay in the tree with their href rewritten to the local copy.
var iconRels = []string{"icon", "shortcut", "apple-touch-icon", "mask-icon"}

// jsTypeAttrs are script type attribute values treated as JavaScript.
// An absent or empty type attribute means classic JavaScript.
var jsTypeAttrs = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"module":                 true,
	"text/ecmascript":        true,
	"application/ecmascript": true,
}

// consolidateHead walks the head's children once in document order,
// partitioning style/script constructs into FragmentGroups:
//
//   - <link rel=stylesheet>: localized, rewritten text inlined as an
//     external CSS fragment, element removed
//   - icon <link>s: href rewritten to the local copy, element kept
//   - <style>: inline CSS fragment, element removed
//   - <script src> serving JavaScript-like content: fetched text as an
//     external JS fragment, element removed
//   - <script src> serving anything else: localized under assets/js/other
//     and re-attached as a standalone reference after the consolidated
//     pair, because a binary payload cannot be merged into main.js
//   - inline <script>: inline JS fragment, element removed
//
// Afterwards exactly one <link rel=stylesheet> and one <script src>
// pointing at the consolidated files are appended, then the extra
// script references.
func (e *Engine) consolidateHead(ctx context.Context, doc *html.Node) (css, js *FragmentGroup, extraScripts []string) {
	css = &FragmentGroup{}
	js = &FragmentGroup{}

	head := findElement(doc, "head")
	if head == nil {
		// html.Parse always synthesizes a head; guard anyway so a
		// hand-built tree cannot panic us.
		head = newElement("head")
		if root := findElement(doc, "html"); root != nil {
			root.InsertBefore(head, root.FirstChild)
		} else {
			doc.AppendChild(head)
		}
	}

	for _, el := range childElements(head) {
		switch el.Data {
		case "link":
			if hasRelToken(el, "stylesheet") && getAttr(el, "href") != "" {
				e.consumeStylesheetLink(ctx, el, css)
				continue
			}
			if hasRelToken(el, iconRels...) && getAttr(el, "href") != "" {
				e.rewriteIconLink(ctx, el)
			}

		case "style":
			css.AddInline(innerText(el))
			detach(el)

		case "script":
			extraScripts = e.consumeScript(ctx, el, js, extraScripts)
		}
	}

	head.AppendChild(newElement("link", "rel", "stylesheet", "href", asset.StylesPath))
	head.AppendChild(newElement("script", "src", asset.ScriptPath))
	for _, src := range extraScripts {
		head.AppendChild(newElement("script", "src", src))
	}

	return css, js, extraScripts
}

// consumeStylesheetLink localizes an external stylesheet and inlines
// its already-rewritten text. The link element is removed either way;
// a stylesheet that cannot be fetched contributes nothing.
func (e *Engine) consumeStylesheetLink(ctx context.Context, el *html.Node, css *FragmentGroup) {
	defer detach(el)

	target, ok := urlnorm.Resolve(e.base, getAttr(el, "href"))
	if !ok {
		return
	}
	rel, ok := e.store.Localize(ctx, target)
	if !ok {
		return
	}

	// The store rewrote the file's internal references relative to its
	// own directory before returning; both that directory and the
	// consolidated stylesheet's sit two levels below the bundle root,
	// so the text inlines unchanged.
	text, err := e.store.ReadLocal(rel)
	if err != nil {
		e.logger.Warn("failed to read localized stylesheet", "path", rel, "error", err)
		text = ""
	}
	css.AddExternal(text)
}

// rewriteIconLink points an icon link's href at the localized copy.
// On failure the original href stays.
func (e *Engine) rewriteIconLink(ctx context.Context, el *html.Node) {
	target, ok := urlnorm.Resolve(e.base, getAttr(el, "href"))
	if !ok {
		return
	}
	if rel, ok := e.store.Localize(ctx, target); ok {
		setAttr(el, "href", rel)
	}
}

// consumeScript handles one head-level script element and returns the
// (possibly extended) extra script list.
func (e *Engine) consumeScript(ctx context.Context, el *html.Node, js *FragmentGroup, extraScripts []string) []string {
	src := getAttr(el, "src")
	if src == "" {
		js.AddInline(innerText(el))
		detach(el)
		return extraScripts
	}

	defer detach(el)

	target, ok := urlnorm.Resolve(e.base, src)
	if !ok {
		return extraScripts
	}

	page, err := e.fetcher.Get(ctx, target.String())
	if err != nil {
		e.logger.Debug("script fetch failed", "url", target.String(), "error", err)
		return extraScripts
	}

	typeAttr := strings.ToLower(getAttr(el, "type"))
	if isJavaScript(page.ContentType, typeAttr) {
		js.AddExternal(fetch.DecodeText(page.Body, page.GetHeader("Content-Type")))
		return extraScripts
	}

	// Binary payload (WASM and friends): keep as a separate reference.
	js.MarkExternal()
	if rel, ok := e.store.LocalizeScript(ctx, target); ok {
		extraScripts = append(extraScripts, rel)
	}
	return extraScripts
}

// isJavaScript reports whether a fetched script can be merged into the
// consolidated JS file. The observed MIME type decides when the server
// sent one; the element's type attribute (absent/empty means classic
// JavaScript) only breaks the tie for typeless responses.
func isJavaScript(contentType, typeAttr string) bool {
	if contentType != "" {
		return strings.Contains(contentType, "javascript") ||
			strings.HasPrefix(contentType, "text/")
	}
	return jsTypeAttrs[typeAttr]
}
