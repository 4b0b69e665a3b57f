// Package model defines the core data structures shared across sitesnap:
// localized assets, fetched pages, and the snapshot manifest.
//
// These types are deliberately free of behavior beyond small helpers so
// they can flow between the fetch, asset, snapshot, and report layers
// without creating import cycles.
package model
