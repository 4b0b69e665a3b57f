// Package crawler walks a site breadth-first from a starting page and
// warms the shared asset store with every media reference it finds.
//
// # Architecture
//
// The crawler package is designed around the Spider type, which coordinates
// the crawl. It keeps a FIFO work queue of canonical URLs and fetches them
// in discovery order, so a crawl of the same site is reproducible.
//
// Design decision: We implement our own breadth-first walker rather than
// using a third-party crawling framework because:
//  1. The gate order (visited, origin, path prefix, robots, budget) is
//     the product's contract and must be explicit in the code
//  2. The crawler feeds an asset store shared with the bundle builder,
//     which no general-purpose framework models
//  3. Reduces external dependencies and potential security issues
//
// # Components
//
//   - Spider: the breadth-first walker that coordinates the crawl
//   - Parser: HTML parser that extracts page links and media references
//   - robotsGate: per-host robots.txt oracle
//
// # Politeness
//
// The crawler is designed to be polite:
//   - Respects robots.txt (on by default, configurable)
//   - Never leaves the starting origin
//   - Caps the total page count
//   - Memory limits prevent runaway reads from large pages
//
// # Usage
//
//	spider := crawler.NewSpider(client, store, crawler.WithMaxPages(50))
//	stats, err := spider.Crawl(ctx, start)
package crawler
