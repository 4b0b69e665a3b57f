package model

import "time"

// Snapshot is the manifest of one bundle build. It accumulates state as
// pipeline steps run and is what the report writers and the history
// database consume.
//
// Design decision: A single mutable report object flows through the
// pipeline rather than each step returning partial results because:
//  1. Steps are strictly ordered and later steps need earlier results
//  2. It mirrors how errors degrade (recorded, not propagated)
//  3. The finished object is directly serializable for reports
type Snapshot struct {
	// StartURL is the URL the user asked to snapshot.
	StartURL string `json:"start_url"`

	// FinalURL is the post-redirect URL actually bundled. All relative
	// references in the document were resolved against this.
	FinalURL string `json:"final_url"`

	// OutDir is the bundle root directory on disk.
	OutDir string `json:"out_dir"`

	// StartedAt and FinishedAt bound the build.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Page is the fetched start page. Nil until the fetch step ran.
	Page *Page `json:"-"`

	// Assets lists every localized asset in localization order.
	Assets []AssetRecord `json:"assets,omitempty"`

	// FailedURLs lists asset URLs whose fetch failed; their references
	// were left untouched in the output.
	FailedURLs []string `json:"failed_urls,omitempty"`

	// PagesCrawled is the number of pages fetched in crawl mode
	// (including the start page).
	PagesCrawled int `json:"pages_crawled"`

	// QueuedRemaining is the number of discovered-but-unvisited URLs
	// left when the crawl budget was exhausted.
	QueuedRemaining int `json:"queued_remaining,omitempty"`

	// CSSBytes and JSBytes are the sizes of the consolidated artifacts.
	CSSBytes int `json:"css_bytes"`
	JSBytes  int `json:"js_bytes"`

	// Error holds the fatal error, if the build aborted. Only the start
	// page fetch is fatal; asset failures land in FailedURLs instead.
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// NewSnapshot creates a manifest for one build.
func NewSnapshot(startURL, outDir string) *Snapshot {
	return &Snapshot{
		StartURL:  startURL,
		OutDir:    outDir,
		StartedAt: time.Now(),
	}
}

// AssetsByCategory returns the number of localized assets per category.
func (s *Snapshot) AssetsByCategory() map[Category]int {
	counts := make(map[Category]int)
	for _, a := range s.Assets {
		counts[a.Category]++
	}
	return counts
}

// TotalAssetBytes returns the sum of all localized asset sizes.
func (s *Snapshot) TotalAssetBytes() int64 {
	var total int64
	for _, a := range s.Assets {
		total += a.Size
	}
	return total
}

// ExifFlagged returns the assets that carry EXIF privacy warnings.
func (s *Snapshot) ExifFlagged() []AssetRecord {
	flagged := make([]AssetRecord, 0)
	for _, a := range s.Assets {
		if len(a.ExifWarnings) > 0 {
			flagged = append(flagged, a)
		}
	}
	return flagged
}
