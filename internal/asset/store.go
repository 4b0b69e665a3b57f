package asset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/nao1215/sitesnap/internal/fetch"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/urlnorm"
	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves a URL. Satisfied by *fetch.Client; tests substitute
// stubs that serve canned bytes.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*model.Page, error)
}

// Store is the fetch-or-reuse cache mapping canonical URLs to local
// paths inside one bundle. Records are write-once: the first successful
// localization of a URL decides its path for the lifetime of the build,
// and a failed fetch is never retried.
//
// Concurrency: the record map is mutex-guarded and at most one fetch is
// in flight per canonical URL; concurrent requesters for the same URL
// wait on the in-flight result instead of double-fetching. Filename
// collision suffixes are assigned under the same lock, so two fetches
// can never claim the same disambiguated name.
type Store struct {
	layout  *Layout
	fetcher Fetcher
	logger  *slog.Logger

	// inspectImages enables EXIF scanning of localized images.
	inspectImages bool

	mu       sync.Mutex
	records  map[urlnorm.Canonical]*model.AssetRecord
	order    []urlnorm.Canonical
	failed   map[urlnorm.Canonical]bool
	failures []string
	claimed  map[string]bool
	inflight map[urlnorm.Canonical]*inflightFetch
}

// inflightFetch lets concurrent requesters of one URL share a single
// fetch. rel/ok are written before done is closed.
type inflightFetch struct {
	done chan struct{}
	rel  string
	ok   bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithImageInspection enables EXIF scanning of localized images.
func WithImageInspection(enabled bool) StoreOption {
	return func(s *Store) {
		s.inspectImages = enabled
	}
}

// NewStore creates a Store writing into the given layout.
func NewStore(layout *Layout, fetcher Fetcher, opts ...StoreOption) *Store {
	s := &Store{
		layout:   layout,
		fetcher:  fetcher,
		logger:   slog.Default(),
		records:  make(map[urlnorm.Canonical]*model.AssetRecord),
		failed:   make(map[urlnorm.Canonical]bool),
		claimed:  make(map[string]bool),
		inflight: make(map[urlnorm.Canonical]*inflightFetch),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Localize returns the bundle-relative path for a URL, fetching and
// persisting it on first sight. ok is false when the resource could not
// be fetched; callers must then leave the original reference untouched.
func (s *Store) Localize(ctx context.Context, u urlnorm.Canonical) (string, bool) {
	return s.localize(ctx, u, "")
}

// LocalizeScript localizes a non-text script payload into the
// assets/js/other tree, overriding content-based classification.
func (s *Store) LocalizeScript(ctx context.Context, u urlnorm.Canonical) (string, bool) {
	return s.localize(ctx, u, model.CategoryScript)
}

// localize implements the fetch-or-reuse contract. forced, when
// non-empty, overrides Classify's folder decision.
//
// The record check comes BEFORE the in-flight check: a stylesheet's own
// rewrite pass runs while its fetch is still marked in flight, and a
// cyclic @import back to that stylesheet must hit the already-published
// record instead of waiting on itself. This cache-hit path is what
// terminates import cycles.
func (s *Store) localize(ctx context.Context, u urlnorm.Canonical, forced model.Category) (string, bool) {
	s.mu.Lock()
	if rec, ok := s.records[u]; ok {
		s.mu.Unlock()
		return rec.LocalPath, true
	}
	if s.failed[u] {
		s.mu.Unlock()
		return "", false
	}
	if call, ok := s.inflight[u]; ok {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.rel, call.ok
		case <-ctx.Done():
			return "", false
		}
	}
	call := &inflightFetch{done: make(chan struct{})}
	s.inflight[u] = call
	s.mu.Unlock()

	rel, ok := s.fetchAndPersist(ctx, u, forced)

	s.mu.Lock()
	delete(s.inflight, u)
	s.mu.Unlock()

	call.rel, call.ok = rel, ok
	close(call.done)
	return rel, ok
}

// fetchAndPersist performs the single fetch attempt for a URL and, on
// success, writes the bytes and publishes the record.
func (s *Store) fetchAndPersist(ctx context.Context, u urlnorm.Canonical, forced model.Category) (string, bool) {
	page, err := s.fetcher.Get(ctx, u.String())
	if err != nil {
		s.logger.Debug("asset fetch failed", "url", u.String(), "error", err)
		s.mu.Lock()
		s.failed[u] = true
		s.failures = append(s.failures, u.String())
		s.mu.Unlock()
		return "", false
	}

	category := forced
	if category == "" {
		category = Classify(u, page.ContentType)
	}

	rel, err := s.claimPath(u, page.ContentType, category)
	if err != nil {
		s.logger.Warn("asset path claim failed", "url", u.String(), "error", err)
		s.mu.Lock()
		s.failed[u] = true
		s.failures = append(s.failures, u.String())
		s.mu.Unlock()
		return "", false
	}

	if err := os.WriteFile(s.layout.Abs(rel), page.Body, 0600); err != nil {
		s.logger.Warn("asset write failed", "url", u.String(), "path", rel, "error", err)
		s.mu.Lock()
		s.failed[u] = true
		s.failures = append(s.failures, u.String())
		s.mu.Unlock()
		return "", false
	}

	rec := &model.AssetRecord{
		SourceURL:   u.String(),
		LocalPath:   rel,
		ContentType: page.ContentType,
		Category:    category,
		Size:        int64(len(page.Body)),
	}

	// Publish before any CSS self-rewrite so cyclic imports resolve to
	// this record instead of re-fetching.
	s.mu.Lock()
	s.records[u] = rec
	s.order = append(s.order, u)
	s.mu.Unlock()

	if isCSS(page.ContentType, rel) {
		text := fetch.DecodeText(page.Body, page.GetHeader("Content-Type"))
		rewritten := s.RewriteCSS(ctx, text, u, path.Dir(rel))
		if err := os.WriteFile(s.layout.Abs(rel), []byte(rewritten), 0600); err != nil {
			s.logger.Warn("stylesheet rewrite write failed", "path", rel, "error", err)
		}
	}

	if s.inspectImages && category == model.CategoryImage {
		if warnings := InspectImage(page.Body); len(warnings) > 0 {
			s.mu.Lock()
			rec.ExifWarnings = warnings
			s.mu.Unlock()
			s.logger.Warn("image carries identifying EXIF metadata",
				"url", u.String(), "path", rel, "tags", strings.Join(warnings, ", "))
		}
	}

	s.logger.Debug("asset localized", "url", u.String(), "path", rel, "category", string(category))
	return rel, true
}

// claimPath derives the destination filename and reserves it, resolving
// collisions with _1, _2, ... suffixes before the extension.
// First-writer-wins: a name, once claimed, is never reassigned.
func (s *Store) claimPath(u urlnorm.Canonical, contentType string, category model.Category) (string, error) {
	dir := DirFor(category)
	name := deriveFilename(u, contentType)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := path.Join(dir, name)
	for i := 1; s.taken(candidate); i++ {
		candidate = path.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	s.claimed[candidate] = true
	return candidate, nil
}

// taken reports whether a bundle-relative path is already claimed in
// this build or exists on disk from an earlier partial run.
func (s *Store) taken(rel string) bool {
	if s.claimed[rel] {
		return true
	}
	_, err := os.Stat(s.layout.Abs(rel))
	return err == nil
}

// isCSS reports whether a localized asset is a stylesheet needing a
// self-rewrite pass.
func isCSS(contentType, rel string) bool {
	return strings.HasPrefix(contentType, "text/css") ||
		strings.HasSuffix(strings.ToLower(rel), ".css")
}

// ReadLocal returns the current content of a localized file. The head
// consolidator uses this to inline the rewritten text of external
// stylesheets.
func (s *Store) ReadLocal(rel string) (string, error) {
	data, err := os.ReadFile(s.layout.Abs(rel))
	if err != nil {
		return "", fmt.Errorf("read localized file %s: %w", rel, err)
	}
	return string(data), nil
}

// Record returns the asset record for a canonical URL, if present.
func (s *Store) Record(u urlnorm.Canonical) (*model.AssetRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[u]
	return rec, ok
}

// Records returns copies of all asset records in localization order.
func (s *Store) Records() []model.AssetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.AssetRecord, 0, len(s.order))
	for _, u := range s.order {
		out = append(out, *s.records[u])
	}
	return out
}

// Failures returns the URLs whose single fetch attempt failed, in
// first-failure order.
func (s *Store) Failures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.failures))
	copy(out, s.failures)
	return out
}

// LocalizeAll localizes a batch of independent URLs on a bounded worker
// pool. Failures are absorbed per asset; the only error returned is
// context cancellation. Used by the crawl scheduler, where media from
// many pages can fetch in parallel without affecting the start page's
// consolidated artifacts.
func (s *Store) LocalizeAll(ctx context.Context, urls []urlnorm.Canonical, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, u := range urls {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			s.Localize(ctx, u)
			return nil
		})
	}

	return g.Wait()
}
