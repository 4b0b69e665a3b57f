// Package pipeline provides a framework for executing build steps in sequence.
//
// The pipeline pattern is used to turn a start URL into an offline bundle
// through multiple stages: start page fetch, head consolidation, body
// rewriting, optional crawling, bundle writing, and history persistence.
// Each stage is implemented as a Step that receives the build manifest and
// can modify it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running builds
// 4. It keeps optional stages (crawl, history) out of the core build path
//
// The pipeline supports both individual builds and batch processing with
// concurrency control using errgroup.
package pipeline
