// Package config provides configuration structures and utilities for
// sitesnap. It defines the options for single-page snapshots, crawl-mode
// prefetching, transport settings, and report generation preferences.
package config
