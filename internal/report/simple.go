package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitesnap/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables the per-asset listing in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with the full asset listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the manifest in human-readable format.
func (w *SimpleWriter) Write(snap *model.Snapshot) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, snap)
	w.writeSummary(&sb, snap)
	w.writeFailures(&sb, snap)
	w.writeExifWarnings(&sb, snap)
	if w.verbose {
		w.writeAssets(&sb, snap)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with build information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, snap *model.Snapshot) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SITESNAP BUNDLE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Start URL:      %s\n", snap.StartURL))
	if snap.FinalURL != "" && snap.FinalURL != snap.StartURL {
		sb.WriteString(fmt.Sprintf("Final URL:      %s\n", snap.FinalURL))
	}
	sb.WriteString(fmt.Sprintf("Output:         %s\n", snap.OutDir))
	sb.WriteString(fmt.Sprintf("Build Date:     %s\n", snap.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Pages Crawled:  %d\n", snap.PagesCrawled))
	if snap.QueuedRemaining > 0 {
		sb.WriteString(fmt.Sprintf("Left Queued:    %d (page budget exhausted)\n", snap.QueuedRemaining))
	}

	if snap.ErrorMessage != "" {
		sb.WriteString(fmt.Sprintf("Status:         ERROR - %s\n", snap.ErrorMessage))
	} else {
		sb.WriteString("Status:         Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the bundle content summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, snap *model.Snapshot) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("BUNDLE SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	counts := snap.AssetsByCategory()
	sb.WriteString(fmt.Sprintf("  CSS:      %d bytes (consolidated)\n", snap.CSSBytes))
	sb.WriteString(fmt.Sprintf("  JS:       %d bytes (consolidated)\n", snap.JSBytes))
	sb.WriteString(fmt.Sprintf("  Favicons: %d\n", counts[model.CategoryFavicon]))
	sb.WriteString(fmt.Sprintf("  Images:   %d\n", counts[model.CategoryImage]))
	sb.WriteString(fmt.Sprintf("  Media:    %d\n", counts[model.CategoryMedia]))
	sb.WriteString(fmt.Sprintf("  Scripts:  %d (standalone)\n", counts[model.CategoryScript]))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  TOTAL:    %d assets, %d bytes\n", len(snap.Assets), snap.TotalAssetBytes()))
	sb.WriteString("\n")
}

// writeFailures lists asset URLs whose fetch failed.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, snap *model.Snapshot) {
	if len(snap.FailedURLs) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILED ASSETS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(snap.FailedURLs) == 0 {
		sb.WriteString("  No failures\n")
	} else {
		for _, u := range snap.FailedURLs {
			sb.WriteString(fmt.Sprintf("  [!] %s\n", u))
		}
	}
	sb.WriteString("\n")
}

// writeExifWarnings lists images that carry privacy-relevant EXIF tags.
func (w *SimpleWriter) writeExifWarnings(sb *strings.Builder, snap *model.Snapshot) {
	flagged := snap.ExifFlagged()
	if len(flagged) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("EXIF WARNINGS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(flagged) == 0 {
		sb.WriteString("  No EXIF warnings\n")
	} else {
		for _, a := range flagged {
			sb.WriteString(fmt.Sprintf("  * %s\n", a.LocalPath))
			for _, warning := range a.ExifWarnings {
				sb.WriteString(fmt.Sprintf("    - %s\n", warning))
			}
		}
	}
	sb.WriteString("\n")
}

// writeAssets lists every localized asset with its source URL.
func (w *SimpleWriter) writeAssets(sb *strings.Builder, snap *model.Snapshot) {
	if len(snap.Assets) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("ASSETS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, a := range snap.Assets {
		sb.WriteString(fmt.Sprintf("  %s (%d bytes)\n", a.LocalPath, a.Size))
		sb.WriteString(fmt.Sprintf("    from %s\n", a.SourceURL))
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitesnap\n")
	sb.WriteString("https://github.com/nao1215/sitesnap\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
