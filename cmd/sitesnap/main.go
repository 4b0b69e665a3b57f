// Package main provides the entry point for the sitesnap CLI.
//
// sitesnap converts a live web page into a self-contained offline bundle:
// one HTML file, one consolidated stylesheet, one consolidated script,
// and a localized media tree.
//
// Usage:
//
//	sitesnap snapshot <url>
//	sitesnap crawl <url>
//	sitesnap snapshot --list <file>
//
// See --help for all available options.
package main

// main is the entry point for sitesnap.
func main() {
	Execute()
}
