// Package tor provides optional Tor connectivity for snapshotting
// .onion sites: an HTTP client routed through a SOCKS5 proxy, and an
// embedded Tor daemon for users without a local Tor installation.
package tor
