package asset

import (
	"context"
	"regexp"
	"strings"

	"github.com/nao1215/sitesnap/internal/urlnorm"
)

// CSS reference patterns. RE2 has no backreferences, so the optional
// quote around the href is matched permissively and trimmed afterwards.
var (
	// cssURLRe matches url(...) functional values: url(a.png),
	// url('a.png'), url("a.png").
	cssURLRe = regexp.MustCompile(`(?i)url\(\s*['"]?([^)'"\s]+)['"]?\s*\)`)

	// atImportRe matches @import rules in both forms:
	// @import url(...) ...; and @import "..." ...;
	atImportRe = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*['"]?([^)'"\s]+)['"]?\s*\)|"([^"]*)"|'([^']*)')[^;]*;?`)
)

// RewriteCSS rewrites every @import and url() reference in cssText to
// the localized copy of its target. baseURL is the URL the stylesheet
// was fetched from; fromDir is the bundle-relative directory of the
// file the rewritten text will live in, which determines the ../ chain
// back to the bundle root.
//
// Each referenced resource is localized through the store, so imported
// stylesheets receive their own rewrite pass when they are fetched —
// one scan per stylesheet is enough, and @import chains (including
// cycles) resolve through the store's cache. A reference that cannot
// be resolved or localized keeps its original text.
func (s *Store) RewriteCSS(ctx context.Context, cssText string, baseURL urlnorm.Canonical, fromDir string) string {
	prefix := RelPrefix(fromDir)

	// @import first: the url() pattern would otherwise half-match the
	// url(...) form of an import and drop the rule's own syntax.
	cssText = atImportRe.ReplaceAllStringFunc(cssText, func(match string) string {
		groups := atImportRe.FindStringSubmatch(match)
		href := firstNonEmpty(groups[1:]...)
		rel, ok := s.resolveAndLocalize(ctx, baseURL, href)
		if !ok {
			return match
		}
		return "@import url('" + prefix + rel + "');"
	})

	return cssURLRe.ReplaceAllStringFunc(cssText, func(match string) string {
		groups := cssURLRe.FindStringSubmatch(match)
		href := groups[1]
		if strings.HasPrefix(href, "data:") {
			return match
		}
		rel, ok := s.resolveAndLocalize(ctx, baseURL, href)
		if !ok {
			return match
		}
		return "url('" + prefix + rel + "')"
	})
}

// resolveAndLocalize resolves href against base and localizes the
// result. ok is false for unresolvable or unfetchable references.
func (s *Store) resolveAndLocalize(ctx context.Context, base urlnorm.Canonical, href string) (string, bool) {
	if href == "" {
		return "", false
	}
	target, ok := urlnorm.Resolve(base, href)
	if !ok {
		return "", false
	}
	return s.Localize(ctx, target)
}

// firstNonEmpty returns the first non-empty string, or "".
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
