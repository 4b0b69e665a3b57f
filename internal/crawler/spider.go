package crawler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/sitesnap/internal/asset"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// Spider walks same-origin pages breadth-first and feeds every media
// reference it discovers into the shared asset store.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
type Spider struct {
	// fetcher retrieves pages. The same client the asset store uses,
	// so headers and body limits stay consistent across the build.
	fetcher asset.Fetcher

	// store is the shared asset store warmed during the crawl.
	store *asset.Store

	// logger reports skipped URLs and fetch failures.
	logger *slog.Logger

	// maxPages limits the total number of pages this spider fetches.
	// This prevents runaway crawling on large sites.
	maxPages int

	// userAgent selects the robots.txt rule group.
	userAgent string

	// followSubdomains widens the origin gate to subdomains of the
	// starting host.
	followSubdomains bool

	// pathPrefix, when set, restricts the crawl to URLs whose path
	// starts with this prefix.
	pathPrefix string

	// respectRobots enables the robots.txt gate.
	respectRobots bool

	// ignorePatterns are URL path patterns to skip during crawling.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	// If set, only URLs matching these patterns are crawled.
	// Empty means all URLs are allowed (subject to ignorePatterns).
	followPatterns []string

	// concurrency bounds the asset prefetch pool per page.
	concurrency int

	// mutex protects visited, queue, and the counters.
	mutex sync.Mutex

	// visited tracks canonical URLs already fetched or queued-and-taken,
	// so no page is fetched twice.
	visited map[urlnorm.Canonical]bool

	// queue is the FIFO of canonical URLs waiting to be fetched.
	queue []urlnorm.Canonical

	// pageCount tracks pages fetched by this spider.
	pageCount int

	// skipped counts URLs rejected by a gate.
	skipped int

	// failed records URLs whose fetch returned an error.
	failed []string
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the maximum number of pages to crawl.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithSpiderUserAgent sets the user agent used for robots.txt
// group selection.
func WithSpiderUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithFollowSubdomains widens the origin gate to subdomains of the
// starting host.
func WithFollowSubdomains(follow bool) SpiderOption {
	return func(s *Spider) {
		s.followSubdomains = follow
	}
}

// WithPathPrefix restricts the crawl to URLs under the given path prefix.
func WithPathPrefix(prefix string) SpiderOption {
	return func(s *Spider) {
		s.pathPrefix = prefix
	}
}

// WithRespectRobots toggles the robots.txt gate.
func WithRespectRobots(respect bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = respect
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
// URLs matching any of these patterns will not be crawled.
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// Patterns use glob syntax (e.g., "/api/*", "/public/*").
// If set, only URLs matching at least one pattern are crawled.
// Empty slice means all URLs are allowed (default behavior).
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithConcurrency bounds the per-page asset prefetch pool.
func WithConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		s.concurrency = n
	}
}

// WithSpiderLogger sets the structured logger.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider over the given fetcher and asset store.
//
// Design decision: We require an external fetcher and store because:
//  1. Proxy and header configuration is handled by the fetch package
//  2. The store must be the same one the bundle builder uses, or the
//     prefetch warms nothing
//  3. Allows for different configurations in tests
func NewSpider(fetcher asset.Fetcher, store *asset.Store, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:       fetcher,
		store:         store,
		logger:        slog.Default(),
		maxPages:      200,
		userAgent:     "sitesnap",
		respectRobots: true,
		concurrency:   8,
		visited:       make(map[urlnorm.Canonical]bool),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Stats contains crawl statistics.
type Stats struct {
	// PagesCrawled is the number of pages this spider fetched.
	PagesCrawled int

	// QueuedRemaining is the number of URLs still queued when the
	// page budget stopped the crawl.
	QueuedRemaining int

	// Skipped is the number of URLs rejected by a gate.
	Skipped int

	// Failed lists URLs whose fetch returned an error.
	Failed []string
}

// Seed marks start as already visited and queues its outbound links.
// Callers that fetched and parsed the starting page themselves use this
// to hand the spider its first frontier without a duplicate fetch.
func (s *Spider) Seed(start urlnorm.Canonical, links []urlnorm.Canonical) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.visited[start] = true
	for _, link := range links {
		s.queue = append(s.queue, link)
	}
}

// Crawl drains the queue breadth-first, fetching each admitted page,
// warming the asset store with its media references, and queuing its
// same-origin links. An unseeded spider starts from start itself.
//
// Design decision: Fetch failures do not abort the crawl because:
//  1. Real sites always have a few dead links
//  2. Every successfully crawled page still adds value to the bundle
//  3. Failures are reported in Stats for the manifest
func (s *Spider) Crawl(ctx context.Context, start urlnorm.Canonical) (*Stats, error) {
	gate := &robotsGate{}
	if s.respectRobots {
		gate = newRobotsGate(ctx, s.fetcher, start, s.userAgent, s.logger)
	}

	s.mutex.Lock()
	if len(s.queue) == 0 && !s.visited[start] {
		s.queue = append(s.queue, start)
	}
	s.mutex.Unlock()

	for {
		select {
		case <-ctx.Done():
			return s.stats(), ctx.Err()
		default:
		}

		target, ok := s.next(start, gate)
		if !ok {
			break
		}

		s.crawlPage(ctx, start, target)
	}

	return s.stats(), nil
}

// next pops queued URLs until one passes every gate. It returns
// ok=false when the queue is empty or the page budget is spent.
// The admitted URL is marked visited before release, so concurrent
// callers can never take the same page.
func (s *Spider) next(start urlnorm.Canonical, gate *robotsGate) (urlnorm.Canonical, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for len(s.queue) > 0 {
		if s.pageCount >= s.maxPages {
			return "", false
		}

		target := s.queue[0]
		s.queue = s.queue[1:]

		if s.visited[target] {
			continue
		}
		if !s.admits(start, target, gate) {
			s.skipped++
			continue
		}

		s.visited[target] = true
		return target, true
	}

	return "", false
}

// admits applies the origin, path-prefix, pattern, and robots gates
// in order. The visited gate and the page budget live in next.
func (s *Spider) admits(start, target urlnorm.Canonical, gate *robotsGate) bool {
	if !urlnorm.SameOrigin(start, target, s.followSubdomains) {
		return false
	}

	path := target.Path()
	if path == "" {
		path = "/"
	}
	if s.pathPrefix != "" && !strings.HasPrefix(path, s.pathPrefix) {
		return false
	}
	if !s.matchesPatterns(path) {
		return false
	}
	return gate.Allowed(path)
}

// crawlPage fetches one admitted page, prefetches its media, and
// queues its outbound links.
func (s *Spider) crawlPage(ctx context.Context, start, target urlnorm.Canonical) {
	page, err := s.fetcher.Get(ctx, target.String())
	if err != nil {
		s.mutex.Lock()
		s.failed = append(s.failed, target.String())
		s.mutex.Unlock()
		s.logger.DebugContext(ctx, "page fetch failed", "url", target.String(), "error", err)
		return
	}

	s.mutex.Lock()
	s.pageCount++
	s.mutex.Unlock()

	if !page.IsHTML() {
		return
	}

	// Resolve against the post-redirect URL so relative references on
	// redirected pages land where the server actually put them.
	base := target
	if final, err := urlnorm.Canonicalize(page.URL); err == nil {
		base = final
	}

	result, err := NewParser(base).Parse(pageReader(page.Body))
	if err != nil {
		s.logger.DebugContext(ctx, "page unparsable", "url", target.String(), "error", err)
		return
	}

	if len(result.MediaURLs) > 0 {
		if err := s.store.LocalizeAll(ctx, result.MediaURLs, s.concurrency); err != nil {
			s.logger.DebugContext(ctx, "asset prefetch interrupted", "url", target.String(), "error", err)
		}
	}

	s.mutex.Lock()
	for _, link := range result.Links {
		if !s.visited[link] {
			s.queue = append(s.queue, link)
		}
	}
	s.mutex.Unlock()
}

// matchesPatterns checks a path against the ignore/follow pattern lists.
//
// Logic:
//  1. If the path matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and the path matches none, skip it
//  3. Otherwise, crawl it (return true)
func (s *Spider) matchesPatterns(path string) bool {
	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// Reset clears the spider's state, allowing it to be reused.
func (s *Spider) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.visited = make(map[urlnorm.Canonical]bool)
	s.queue = nil
	s.pageCount = 0
	s.skipped = 0
	s.failed = nil
}

// stats snapshots the current crawl statistics.
func (s *Spider) stats() *Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	failed := make([]string, len(s.failed))
	copy(failed, s.failed)

	return &Stats{
		PagesCrawled:    s.pageCount,
		QueuedRemaining: len(s.queue),
		Skipped:         s.skipped,
		Failed:          failed,
	}
}

// pageReader wraps raw page bytes for the parser.
func pageReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ** is treated as * (single segment match for simplicity)
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	// Handle common patterns more efficiently
	// For patterns like "/admin/*", we want to match "/admin/anything"
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	// Handle extension patterns like "*.pdf"
	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	// Use filepath.Match for standard glob matching
	// Note: filepath.Match doesn't support ** for recursive matching,
	// but it handles * and ? well for single-segment patterns
	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Also try matching just the filename for patterns like "*.pdf"
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		filename := filepath.Base(path)
		matched, err := filepath.Match(pattern, filename)
		if err == nil && matched {
			return true
		}
	}

	return false
}
