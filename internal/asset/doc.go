// Package asset implements the localization engine at the heart of
// sitesnap: the write-once store mapping canonical URLs to files inside
// the bundle, the destination classifier, collision-safe filename
// derivation, and the recursive CSS reference rewriter.
//
// The store is the single source of truth for "has this URL already
// been localized, and to where". Stylesheets are rewritten in place at
// localization time, so any path handed out by the store already points
// at fully localized content. Cycles between stylesheets terminate
// through the cache-hit path: each canonical URL is fetched at most
// once per build, so a re-imported stylesheet resolves to its existing
// record instead of recursing.
package asset
