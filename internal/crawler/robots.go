package crawler

import (
	"context"
	"log/slog"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/sitesnap/internal/asset"
	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// robotsGate answers whether the crawl may fetch a given path.
//
// Design decision: A missing or unreachable robots.txt allows everything
// because:
//  1. Most sites publish no robots.txt and still expect to be archived
//  2. A transient fetch failure must not silently empty the crawl
//  3. Explicit Disallow rules are the only signal we honor
type robotsGate struct {
	group *robotstxt.Group
}

// newRobotsGate fetches robots.txt from the start URL's origin once and
// builds the rule group for the given user agent. It never fails: any
// fetch error, non-2xx status, or unparsable body yields an
// allow-everything gate.
func newRobotsGate(ctx context.Context, fetcher asset.Fetcher, start urlnorm.Canonical, userAgent string, logger *slog.Logger) *robotsGate {
	robotsURL, ok := urlnorm.Resolve(start, "/robots.txt")
	if !ok {
		return &robotsGate{}
	}

	page, err := fetcher.Get(ctx, robotsURL.String())
	if err != nil {
		logger.DebugContext(ctx, "robots.txt unavailable, allowing all paths", "url", robotsURL.String())
		return &robotsGate{}
	}

	data, err := robotstxt.FromBytes(page.Body)
	if err != nil {
		logger.DebugContext(ctx, "robots.txt unparsable, allowing all paths", "url", robotsURL.String())
		return &robotsGate{}
	}

	return &robotsGate{group: data.FindGroup(userAgent)}
}

// Allowed reports whether the crawl may fetch path.
func (g *robotsGate) Allowed(path string) bool {
	if g == nil || g.group == nil {
		return true
	}
	return g.group.Test(path)
}
