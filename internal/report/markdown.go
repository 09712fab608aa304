package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/clinicscan/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
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

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeClinics(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScanReport) {
	md.H1("Clinicscan Report")
	md.PlainText("")

	rows := [][]string{
		{"Scope", "`" + report.ScopePrefix + "`"},
	}
	for _, start := range report.StartURLs {
		rows = append(rows, []string{"Start", "`" + start + "`"})
	}
	rows = append(rows,
		[]string{"Scan Date", report.DateScanned.Format("2006-01-02 15:04:05 MST")},
		[]string{"Pages Visited", strconv.Itoa(report.VisitedPages())},
		[]string{"Status", statusText(report)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes the completeness summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ScanReport) {
	v := report.Validation
	md.H2("Validation Summary")
	md.PlainText("")

	rows := [][]string{
		{"Clinics", strconv.Itoa(v.TotalClinics)},
		{"Complete", strconv.Itoa(v.CompleteClinics())},
		{"Incomplete", strconv.Itoa(v.IncompleteClinics)},
	}
	for _, f := range model.Fields() {
		rows = append(rows, []string{"Missing " + strings.ToLower(f.Column()), strconv.Itoa(v.MissingCount(f))})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if v.TotalClinics > 0 {
		w.writePieChart(md, v)
	}
	w.writeAlert(md, v)
}

// writePieChart writes a mermaid pie chart of missing fields.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, v model.ValidationReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Missing Fields"),
		piechart.WithShowData(true),
	)

	missing := false
	for _, f := range model.Fields() {
		if n := v.MissingCount(f); n > 0 {
			chart.LabelAndIntValue(f.Column(), uint64(n)) //nolint:gosec // n is positive
			missing = true
		}
	}
	if !missing {
		return
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert based on completeness.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, v model.ValidationReport) {
	switch {
	case v.TotalClinics == 0:
		md.Cautionf("No clinic records were extracted.")
	case v.IncompleteClinics > 0:
		md.Warningf(
			"%d of %d clinic(s) lack a name, an address or a phone number.",
			v.IncompleteClinics, v.TotalClinics,
		)
	default:
		md.Tip("Every clinic has a name, an address and a phone number.")
	}
	md.PlainText("")
}

// writeClinics writes the consolidated records.
func (w *MarkdownWriter) writeClinics(md *markdown.Markdown, report *model.ScanReport) {
	md.H2("Clinics")
	md.PlainText("")

	if len(report.Records) == 0 {
		md.PlainText("No clinics found.")
		md.PlainText("")
		return
	}

	header := make([]string, 0, len(model.Fields()))
	for _, f := range model.Fields() {
		header = append(header, f.Column())
	}

	rows := make([][]string, len(report.Records))
	for i, rec := range report.Records {
		rows[i] = []string{
			orDash(rec.Name),
			truncateString(orDash(rec.Address), 60),
			orDash(rec.Email),
			orDash(rec.Phone),
			truncateString(orDash(strings.Join(rec.Services, model.ServiceSeparator)), 80),
		}
	}

	md.Table(markdown.TableSet{
		Header: header,
		Rows:   rows,
	})
	md.PlainText("")

	for _, rec := range report.Records {
		if len(rec.Services) > 0 {
			md.Details(orDash(rec.Name), strings.Join(rec.Services, "\n"))
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by clinicscan*")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
