// Package fetch provides the HTTP transport used for page and asset
// retrieval: redirect-following GETs with a browser-like header set,
// capped body reads, and charset-aware text decoding.
package fetch
