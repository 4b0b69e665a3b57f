package pipeline

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/nao1215/sitesnap/internal/crawler"
	"github.com/nao1215/sitesnap/internal/database"
	"github.com/nao1215/sitesnap/internal/model"
	"github.com/nao1215/sitesnap/internal/snapshot"
)

// FetchPageStep fetches and parses the start page.
// This is the only step whose failure aborts the build: without the
// start page there is nothing to bundle.
type FetchPageStep struct {
	// engine is the shared build engine carrying the parse tree.
	engine *snapshot.Engine
}

// NewFetchPageStep creates the start page fetch step.
func NewFetchPageStep(engine *snapshot.Engine) *FetchPageStep {
	return &FetchPageStep{engine: engine}
}

// Name returns the step name.
func (s *FetchPageStep) Name() string {
	return "fetch_page"
}

// Do executes the start page fetch.
func (s *FetchPageStep) Do(ctx context.Context, snap *model.Snapshot) error {
	return s.engine.FetchStartPage(ctx, snap)
}

// ConsolidateHeadStep merges the page's styles and scripts into the
// two consolidated bundle artifacts.
type ConsolidateHeadStep struct {
	engine *snapshot.Engine
}

// NewConsolidateHeadStep creates the head consolidation step.
func NewConsolidateHeadStep(engine *snapshot.Engine) *ConsolidateHeadStep {
	return &ConsolidateHeadStep{engine: engine}
}

// Name returns the step name.
func (s *ConsolidateHeadStep) Name() string {
	return "consolidate_head"
}

// Do executes head consolidation.
func (s *ConsolidateHeadStep) Do(ctx context.Context, snap *model.Snapshot) error {
	return s.engine.ConsolidateHead(ctx, snap)
}

// RewriteBodyStep localizes and rewrites body media references.
type RewriteBodyStep struct {
	engine *snapshot.Engine
}

// NewRewriteBodyStep creates the body rewrite step.
func NewRewriteBodyStep(engine *snapshot.Engine) *RewriteBodyStep {
	return &RewriteBodyStep{engine: engine}
}

// Name returns the step name.
func (s *RewriteBodyStep) Name() string {
	return "rewrite_body"
}

// Do executes the body rewrite.
func (s *RewriteBodyStep) Do(ctx context.Context, snap *model.Snapshot) error {
	return s.engine.RewriteBody(ctx, snap)
}

// CrawlStep walks same-origin pages from the start page and warms the
// shared asset store, so the bundle's media tree covers the whole site
// rather than just the start page.
//
// Design decision: The crawl runs after the body rewrite but before the
// bundle write because:
// 1. The start page is already fetched; seeding the spider from its
//    links avoids a duplicate fetch
// 2. Assets discovered during the crawl must land in the manifest,
//    which the bundle write step assembles
type CrawlStep struct {
	// engine provides the crawl's origin and first frontier.
	engine *snapshot.Engine

	// spider is the breadth-first walker, sharing the engine's store.
	spider *crawler.Spider

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step over a prepared spider.
func NewCrawlStep(engine *snapshot.Engine, spider *crawler.Spider, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		engine: engine,
		spider: spider,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl. Crawl errors other than cancellation are
// non-fatal: partial results still improve the bundle.
func (s *CrawlStep) Do(ctx context.Context, snap *model.Snapshot) error {
	start := s.engine.Base()
	if start == "" {
		s.logger.Debug("skipping crawl, start page not fetched")
		return nil
	}

	s.spider.Seed(start, s.engine.StartLinks())

	stats, err := s.spider.Crawl(ctx, start)
	if err != nil {
		// Cancellation aborts the pipeline; the bundle write never ran.
		return err
	}

	snap.PagesCrawled += stats.PagesCrawled
	snap.QueuedRemaining = stats.QueuedRemaining
	snap.FailedURLs = append(snap.FailedURLs, stats.Failed...)

	s.logger.Info("crawl completed",
		"pages_crawled", stats.PagesCrawled,
		"queued_remaining", stats.QueuedRemaining,
		"skipped", stats.Skipped,
	)
	return nil
}

// WriteBundleStep serializes the rewritten document and writes the
// bundle files, completing the manifest.
type WriteBundleStep struct {
	engine *snapshot.Engine
}

// NewWriteBundleStep creates the bundle write step.
func NewWriteBundleStep(engine *snapshot.Engine) *WriteBundleStep {
	return &WriteBundleStep{engine: engine}
}

// Name returns the step name.
func (s *WriteBundleStep) Name() string {
	return "write_bundle"
}

// Do writes the bundle files.
func (s *WriteBundleStep) Do(ctx context.Context, snap *model.Snapshot) error {
	return s.engine.WriteBundle(ctx, snap)
}

// SaveHistoryStep stores the finished manifest in the history database.
//
// Design decision: History persistence is a separate, last step because:
// 1. A database problem must never cost the user the bundle on disk
// 2. It operates on the completed manifest only
// 3. It is optional (--no-history)
type SaveHistoryStep struct {
	// db is the history database. The step does not own it; the caller
	// closes it after the batch finishes.
	db *database.SnapshotDB

	// logger for structured logging.
	logger *slog.Logger
}

// SaveHistoryStepOption configures a SaveHistoryStep.
type SaveHistoryStepOption func(*SaveHistoryStep)

// WithHistoryLogger sets a custom logger for the history step.
func WithHistoryLogger(logger *slog.Logger) SaveHistoryStepOption {
	return func(s *SaveHistoryStep) {
		s.logger = logger
	}
}

// NewSaveHistoryStep creates the history persistence step.
func NewSaveHistoryStep(db *database.SnapshotDB, opts ...SaveHistoryStepOption) *SaveHistoryStep {
	s := &SaveHistoryStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *SaveHistoryStep) Name() string {
	return "save_history"
}

// Do stores the manifest. Failures are logged but never fatal: the
// bundle already exists on disk.
func (s *SaveHistoryStep) Do(ctx context.Context, snap *model.Snapshot) error {
	host := snapshotHost(snap)

	id, err := s.db.SaveSnapshot(ctx, host, snap)
	if err != nil {
		s.logger.Warn("failed to save build history", "host", host, "error", err)
		return nil
	}

	s.logger.Debug("build history saved", "host", host, "id", id)
	return nil
}

// snapshotHost extracts the authority the build belongs to, preferring
// the post-redirect URL.
func snapshotHost(snap *model.Snapshot) string {
	raw := snap.FinalURL
	if raw == "" {
		raw = snap.StartURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}

// BuildPipeline assembles the standard bundle build pipeline.
// The crawl step is included only when spider is non-nil, and the
// history step only when db is non-nil.
//
// Design decision: We provide a standard assembly because:
// 1. The step order is the product's contract, not a caller choice
// 2. Reduces boilerplate in the CLI
// 3. Optional steps stay optional without order mistakes
func BuildPipeline(engine *snapshot.Engine, spider *crawler.Spider, db *database.SnapshotDB, opts ...Option) *Pipeline {
	p := New(opts...)

	p.AddSteps(
		NewFetchPageStep(engine),
		NewConsolidateHeadStep(engine),
		NewRewriteBodyStep(engine),
	)
	if spider != nil {
		p.AddStep(NewCrawlStep(engine, spider, WithCrawlLogger(p.logger)))
	}
	p.AddStep(NewWriteBundleStep(engine))
	if db != nil {
		p.AddStep(NewSaveHistoryStep(db, WithHistoryLogger(p.logger)))
	}

	return p
}
