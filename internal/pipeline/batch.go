package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/sitesnap/internal/model"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor handles concurrent bundling of multiple start URLs.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-build execution
// 2. It allows different batch strategies (e.g., rate limiting, retries)
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline and manifest for one
	// start URL. Each target gets its own engine and output directory,
	// so per-build state never leaks between targets. A factory error
	// marks the manifest failed without aborting the batch.
	pipelineFactory func(startURL string) (*Pipeline, *model.Snapshot, error)

	// concurrency is the maximum number of concurrent builds.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed build manifests.
	// Access is synchronized via mutex.
	results []*model.Snapshot
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithBatchConcurrency sets the maximum number of concurrent builds.
// Default is 4 if not specified.
func WithBatchConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each start URL to create a
// fresh pipeline and manifest. This ensures that engine state doesn't
// leak between builds and allows per-target customization if needed.
func NewBatchProcessor(pipelineFactory func(startURL string) (*Pipeline, *model.Snapshot, error), opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     4,
		results:         make([]*model.Snapshot, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch bundles multiple start URLs concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each target gets its own goroutine, but only 'concurrency' goroutines
// run simultaneously.
//
// Returns all manifests collected, even for targets that failed.
// The error return indicates if the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, startURLs []string) ([]*model.Snapshot, error) {
	bp.logger.Info("starting batch processing",
		"total_targets", len(startURLs),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*model.Snapshot, len(startURLs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("building bundle",
				"url", startURL,
				"index", i+1,
				"total", len(startURLs),
			)

			snap, err := bp.runOne(ctx, startURL)

			// Store result regardless of error
			// The manifest contains error information if the build failed
			bp.mu.Lock()
			bp.results[i] = snap
			bp.mu.Unlock()

			if err != nil {
				bp.logger.Warn("build failed",
					"url", startURL,
					"error", err,
				)
				// Don't return error to errgroup - we want to continue
				// other builds. The error is recorded in the manifest.
				return nil
			}

			bp.logger.Info("build completed",
				"url", startURL,
			)

			return nil
		})
	}

	// Wait for all builds to complete
	err := g.Wait()

	elapsed := time.Since(startTime)
	bp.logger.Info("batch processing complete",
		"total_targets", len(startURLs),
		"elapsed", elapsed,
	)

	return bp.results, err
}

// ProcessBatchWithCallback bundles multiple start URLs and calls a
// callback for each completed build. This is useful for streaming
// results.
//
// The callback receives the manifest and the index of the target in the
// original slice. The callback is called from the goroutine that
// completed the build, so it should be thread-safe if it accesses
// shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	startURLs []string,
	callback func(snap *model.Snapshot, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_targets", len(startURLs),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			snap, _ := bp.runOne(ctx, startURL) //nolint:errcheck // Error is stored in the manifest

			// Call the callback with the result
			callback(snap, i)

			return nil
		})
	}

	return g.Wait()
}

// runOne builds a single target via a fresh factory-made pipeline.
func (bp *BatchProcessor) runOne(ctx context.Context, startURL string) (*model.Snapshot, error) {
	pipeline, snap, err := bp.pipelineFactory(startURL)
	if err != nil {
		snap = model.NewSnapshot(startURL, "")
		snap.Error = err
		snap.ErrorMessage = err.Error()
		return snap, err
	}

	if err := pipeline.Execute(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}
