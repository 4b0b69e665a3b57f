// Package snapshot turns one fetched server-rendered page into the
// offline bundle: it consolidates head-level styles and scripts into
// single files, rewrites body media references through the asset store,
// and serializes the mutated tree as index.html.
package snapshot
