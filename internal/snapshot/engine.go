package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/sitesnap/internal/asset"
	"github.com/nao1215/sitesnap/internal/fetch"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Engine drives one bundle build: fetch the start page, consolidate its
// head, rewrite its body, and write the bundle files. It carries the
// parse tree between phases, so an Engine is used for exactly one build.
type Engine struct {
	layout  *asset.Layout
	store   *asset.Store
	fetcher asset.Fetcher
	logger  *slog.Logger

	// Build state, filled as phases run.
	doc          *html.Node
	base         urlnorm.Canonical
	cssText      string
	jsText       string
	extraScripts []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine for one build. The store must write into
// the same layout.
func NewEngine(layout *asset.Layout, store *asset.Store, fetcher asset.Fetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		layout:  layout,
		store:   store,
		fetcher: fetcher,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Base returns the resolution base (the start page's final URL after
// redirects). Valid after FetchStartPage.
func (e *Engine) Base() urlnorm.Canonical {
	return e.base
}

// StartLinks returns the resolvable anchor targets of the start page.
// Crawl mode uses them as the first frontier. Valid after FetchStartPage.
func (e *Engine) StartLinks() []urlnorm.Canonical {
	if e.doc == nil {
		return nil
	}
	return ExtractLinks(e.doc, e.base)
}

// FetchStartPage fetches the start URL and parses it into the element
// tree. This is the only fatal fetch of a build: without the start page
// there is nothing to bundle.
func (e *Engine) FetchStartPage(ctx context.Context, snap *model.Snapshot) error {
	page, err := e.fetcher.Get(ctx, snap.StartURL)
	if err != nil {
		return fmt.Errorf("failed to fetch start page: %w", err)
	}

	base, err := urlnorm.Canonicalize(page.URL)
	if err != nil {
		return fmt.Errorf("start page resolved to an invalid URL %q: %w", page.URL, err)
	}

	page.Text = fetch.DecodeText(page.Body, page.GetHeader("Content-Type"))
	doc, err := html.Parse(strings.NewReader(page.Text))
	if err != nil {
		return fmt.Errorf("failed to parse start page: %w", err)
	}

	e.doc = doc
	e.base = base
	snap.Page = page
	snap.FinalURL = page.URL
	snap.PagesCrawled = 1

	e.logger.Debug("start page fetched", "url", page.URL, "bytes", len(page.Body))
	return nil
}

// ConsolidateHead partitions and strips the head's style/script
// constructs (see consolidate.go) and stores the consolidated texts for
// WriteBundle.
func (e *Engine) ConsolidateHead(ctx context.Context, snap *model.Snapshot) error {
	if e.doc == nil {
		return errNoDocument
	}

	css, js, extra := e.consolidateHead(ctx, e.doc)
	e.cssText = css.Join()
	e.jsText = js.Join()
	e.extraScripts = extra
	snap.CSSBytes = len(e.cssText)
	snap.JSBytes = len(e.jsText)
	return nil
}

// RewriteBody rewrites body media references (see body.go).
func (e *Engine) RewriteBody(ctx context.Context, _ *model.Snapshot) error {
	if e.doc == nil {
		return errNoDocument
	}

	e.rewriteBody(ctx, e.doc)
	return nil
}

// WriteBundle serializes the mutated tree and writes index.html,
// styles.css, and main.js. Asset records and failures accumulated in
// the store are copied into the manifest here, after every reference
// has been processed.
func (e *Engine) WriteBundle(_ context.Context, snap *model.Snapshot) error {
	if e.doc == nil {
		return errNoDocument
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, e.doc); err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}

	out := buf.String()
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "<!doctype html>") {
		out = "<!DOCTYPE html>\n" + out
	}

	if err := os.WriteFile(e.layout.Abs(asset.IndexFile), []byte(out), 0600); err != nil {
		return fmt.Errorf("failed to write index.html: %w", err)
	}
	if err := os.WriteFile(e.layout.Abs(asset.StylesPath), []byte(e.cssText), 0600); err != nil {
		return fmt.Errorf("failed to write consolidated stylesheet: %w", err)
	}
	if err := os.WriteFile(e.layout.Abs(asset.ScriptPath), []byte(e.jsText), 0600); err != nil {
		return fmt.Errorf("failed to write consolidated script: %w", err)
	}

	// Append rather than assign: crawl mode may already have recorded
	// page-level failures in the manifest.
	snap.Assets = e.store.Records()
	snap.FailedURLs = append(snap.FailedURLs, e.store.Failures()...)

	e.logger.Debug("bundle written",
		"out", e.layout.Root,
		"assets", len(snap.Assets),
		"css_bytes", snap.CSSBytes,
		"js_bytes", snap.JSBytes,
	)
	return nil
}
