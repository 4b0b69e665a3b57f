// Package urlnorm canonicalizes and resolves URLs for asset deduplication.
package urlnorm

import (
	"net/url"
	"path"
	"strings"
)

// Canonical is a normalized absolute URL used as the deduplication key
// for assets and the visited set during crawling. Two URLs refer to the
// same resource iff their Canonical forms compare equal as strings.
type Canonical string

// String returns the canonical URL as a plain string.
func (c Canonical) String() string {
	return string(c)
}

// Host returns the lower-cased authority of the canonical URL,
// or the empty string if the URL cannot be parsed.
func (c Canonical) Host() string {
	u, err := url.Parse(string(c))
	if err != nil {
		return ""
	}
	return u.Host
}

// Path returns the path component of the canonical URL,
// or the empty string if the URL cannot be parsed.
func (c Canonical) Path() string {
	u, err := url.Parse(string(c))
	if err != nil {
		return ""
	}
	return u.Path
}

// Canonicalize normalizes a raw URL into its canonical form:
//   - the fragment is dropped
//   - the authority is lower-cased
//   - "." and ".." path segments are collapsed
//   - a meaningful trailing slash is preserved even when the collapse
//     would otherwise drop it (path.Clean removes trailing slashes)
//
// The query string is kept verbatim because it distinguishes resources
// on most servers.
func Canonicalize(raw string) (Canonical, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Path != "" {
		hadSlash := strings.HasSuffix(u.Path, "/")
		cleaned := path.Clean(u.Path)
		if cleaned == "." {
			cleaned = "/"
		}
		if hadSlash && !strings.HasSuffix(cleaned, "/") {
			cleaned += "/"
		}
		u.Path = cleaned
	}

	return Canonical(u.String()), nil
}

// nonFetchableSchemes are href prefixes that never resolve to a
// fetchable resource. Pure fragment references are handled separately.
var nonFetchableSchemes = []string{"data:", "javascript:", "about:", "mailto:", "tel:"}

// Resolve expands href against base and canonicalizes the result.
// It returns ok=false for empty hrefs, pure fragment references, and
// non-fetchable schemes. Protocol-relative references ("//host/path")
// are expanded with the base URL's scheme; absolute http(s) references
// pass through untouched apart from canonicalization.
func Resolve(base Canonical, href string) (Canonical, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, scheme := range nonFetchableSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	b, err := url.Parse(string(base))
	if err != nil {
		return "", false
	}

	if strings.HasPrefix(href, "//") {
		c, err := Canonicalize(b.Scheme + ":" + href)
		if err != nil {
			return "", false
		}
		return c, true
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := b.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}

	c, err := Canonicalize(resolved.String())
	if err != nil {
		return "", false
	}
	return c, true
}

// SameOrigin reports whether candidate belongs to the same origin as
// base: the schemes must match and the hosts must be equal, or, when
// followSubdomains is true, the candidate host may be a subdomain of
// the base host.
func SameOrigin(base, candidate Canonical, followSubdomains bool) bool {
	b, err := url.Parse(string(base))
	if err != nil {
		return false
	}
	c, err := url.Parse(string(candidate))
	if err != nil {
		return false
	}

	if b.Scheme != c.Scheme {
		return false
	}
	if b.Host == c.Host {
		return true
	}
	return followSubdomains && strings.HasSuffix(c.Host, "."+b.Host)
}
