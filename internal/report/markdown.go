package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/topicgrab/topicgrab/internal/model"
)

// MarkdownWriter outputs a run summary as a Markdown document, suited
// to keeping alongside the downloaded files or sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeTotals(md, summary)
	w.writePages(md, summary)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.RunSummary) {
	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + summary.StartURL + "`"},
			{"Mode", summary.Mode},
			{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", summary.Duration().Round(1e9).String()},
			{"Ended By", w.endText(summary)},
		},
	})
	md.PlainText("")
}

// endText describes how the run finished.
func (w *MarkdownWriter) endText(summary *model.RunSummary) string {
	if summary.Stopped {
		return "⚠️ Stop request (partial results)"
	}
	return "✅ Queue exhausted"
}

// writeTotals writes the page and image count tables.
func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Totals")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Pages", "Count"},
		Rows: [][]string{
			{"🟢 Success", strconv.Itoa(summary.CountByStatus(model.StatusSuccess))},
			{"🟡 Warning", strconv.Itoa(summary.CountByStatus(model.StatusWarning))},
			{"🔴 Error", strconv.Itoa(summary.CountByStatus(model.StatusError))},
			{"**Total**", "**" + strconv.Itoa(len(summary.Pages)) + "**"},
		},
	})
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Images", "Count"},
		Rows: [][]string{
			{"Saved", strconv.Itoa(summary.ImagesSaved)},
			{"Skipped", strconv.Itoa(summary.ImagesSkipped)},
			{"Failed", strconv.Itoa(summary.ImagesFailed)},
			{"Bandwidth", formatBytes(summary.TotalBytes)},
		},
	})
	md.PlainText("")
}

// writePages writes the per-page outcome table in visit order.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Pages")
	md.PlainText("")

	if len(summary.Pages) == 0 {
		md.PlainText("No pages were crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(summary.Pages))
	for _, page := range summary.Pages {
		rows = append(rows, []string{
			page.Title,
			page.DateString,
			page.Status.String(),
			fmt.Sprintf("%d/%d", page.ImagesSaved, page.ImagesTotal),
			"`" + page.URL + "`",
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Title", "Date", "Status", "Saved", "URL"},
		Rows:   rows,
	})
	md.PlainText("")
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
