package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitesnap/internal/model"
)

// MarkdownWriter outputs manifests in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the manifest in Markdown format.
func (w *MarkdownWriter) Write(snap *model.Snapshot) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, snap)
	w.writeSummary(md, snap)
	w.writeFailures(md, snap)
	w.writeExifWarnings(md, snap)
	w.writeAssets(md, snap)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with build information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, snap *model.Snapshot) {
	md.H1("Site Snapshot Report")
	md.PlainText("")

	rows := [][]string{{"Start URL", "`" + snap.StartURL + "`"}}
	if snap.FinalURL != "" && snap.FinalURL != snap.StartURL {
		rows = append(rows, []string{"Final URL", "`" + snap.FinalURL + "`"})
	}
	rows = append(rows,
		[]string{"Output", "`" + snap.OutDir + "`"},
		[]string{"Build Date", snap.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Pages Crawled", strconv.Itoa(snap.PagesCrawled)},
		[]string{"Status", w.getStatusText(snap)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on manifest state.
func (w *MarkdownWriter) getStatusText(snap *model.Snapshot) string {
	if snap.ErrorMessage != "" {
		return "❌ Error - " + snap.ErrorMessage
	}
	if snap.QueuedRemaining > 0 {
		return "⚠️ Complete (page budget exhausted, " + strconv.Itoa(snap.QueuedRemaining) + " URLs left queued)"
	}
	return "✅ Complete"
}

// writeSummary writes the bundle content summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, snap *model.Snapshot) {
	md.H2("Bundle Summary")
	md.PlainText("")

	counts := snap.AssetsByCategory()
	md.Table(markdown.TableSet{
		Header: []string{"Content", "Amount"},
		Rows: [][]string{
			{"Consolidated CSS", strconv.Itoa(snap.CSSBytes) + " bytes"},
			{"Consolidated JS", strconv.Itoa(snap.JSBytes) + " bytes"},
			{"Favicons", strconv.Itoa(counts[model.CategoryFavicon])},
			{"Images", strconv.Itoa(counts[model.CategoryImage])},
			{"Other media", strconv.Itoa(counts[model.CategoryMedia])},
			{"Standalone scripts", strconv.Itoa(counts[model.CategoryScript])},
			{"**Total assets**", "**" + strconv.Itoa(len(snap.Assets)) + " (" +
				strconv.FormatInt(snap.TotalAssetBytes(), 10) + " bytes)**"},
		},
	})
	md.PlainText("")

	if len(snap.Assets) > 0 {
		w.writePieChart(md, counts)
	}

	w.writeAlert(md, snap)
}

// writePieChart writes a mermaid pie chart for asset category distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.Category]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Asset Category Distribution"),
		piechart.WithShowData(true),
	)

	if counts[model.CategoryFavicon] > 0 {
		chart.LabelAndIntValue("Favicons", uint64(counts[model.CategoryFavicon]))
	}
	if counts[model.CategoryImage] > 0 {
		chart.LabelAndIntValue("Images", uint64(counts[model.CategoryImage]))
	}
	if counts[model.CategoryMedia] > 0 {
		chart.LabelAndIntValue("Media", uint64(counts[model.CategoryMedia]))
	}
	if counts[model.CategoryScript] > 0 {
		chart.LabelAndIntValue("Scripts", uint64(counts[model.CategoryScript]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on manifest state.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, snap *model.Snapshot) {
	flagged := snap.ExifFlagged()
	switch {
	case snap.ErrorMessage != "":
		md.Cautionf("The build aborted: %s", snap.ErrorMessage)
	case len(flagged) > 0:
		md.Importantf(
			"%d image(s) carry privacy-relevant EXIF metadata (GPS, serial numbers, or author fields).",
			len(flagged),
		)
	case len(snap.FailedURLs) > 0:
		md.Warningf(
			"%d asset(s) could not be fetched; their references were left pointing at the network.",
			len(snap.FailedURLs),
		)
	default:
		md.Tip("The bundle is fully self-contained.")
	}
	md.PlainText("")
}

// writeFailures writes the failed asset section.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, snap *model.Snapshot) {
	if len(snap.FailedURLs) == 0 {
		return
	}

	md.H2("Failed Assets")
	md.PlainText("")
	md.BulletList(snap.FailedURLs...)
	md.PlainText("")
}

// writeExifWarnings writes the EXIF privacy warning section.
func (w *MarkdownWriter) writeExifWarnings(md *markdown.Markdown, snap *model.Snapshot) {
	flagged := snap.ExifFlagged()
	if len(flagged) == 0 {
		return
	}

	md.H2("EXIF Warnings")
	md.PlainText("")

	rows := make([][]string, len(flagged))
	for i, a := range flagged {
		warnings := ""
		for j, warning := range a.ExifWarnings {
			if j > 0 {
				warnings += ", "
			}
			warnings += warning
		}
		rows[i] = []string{"`" + a.LocalPath + "`", warnings}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Asset", "Tags"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeAssets writes the localized asset table.
func (w *MarkdownWriter) writeAssets(md *markdown.Markdown, snap *model.Snapshot) {
	md.H2("Assets")
	md.PlainText("")

	if len(snap.Assets) == 0 {
		md.PlainText("No assets were localized.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(snap.Assets))
	for i, a := range snap.Assets {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "-"
		}
		rows[i] = []string{
			"`" + a.LocalPath + "`",
			truncateString(a.SourceURL, 60),
			contentType,
			strconv.FormatInt(a.Size, 10),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Local Path", "Source", "Type", "Bytes"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitesnap](https://github.com/nao1215/sitesnap)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
