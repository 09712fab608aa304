package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nao1215/clinicscan/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
//
// Table columns are padded by display width (go-runewidth), so clinic
// names with wide characters stay aligned.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no content are shown.
	showEmpty bool

	// verbose adds the per-record missing fields and crawl statistics.
	verbose bool

	// maxColumnWidth truncates long cells in the clinics table.
	maxColumnWidth int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMaxColumnWidth sets the display width at which table cells are cut.
func WithMaxColumnWidth(width int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.maxColumnWidth = width
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter:     newBaseWriter(output),
		maxColumnWidth: 40,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	if w.verbose {
		w.writeCrawls(&sb, report)
	}
	w.writeClinics(&sb, report)
	w.writeIncomplete(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n")
}

func (w *SimpleWriter) section(sb *strings.Builder, title string) {
	rule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	rule(sb, "-")
	sb.WriteString("\n")
}

// writeHeader writes the report header with scan information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.ScanReport) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                        CLINICSCAN REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Scope:          %s\n", report.ScopePrefix)
	for _, start := range report.StartURLs {
		fmt.Fprintf(sb, "Start:          %s\n", start)
	}
	fmt.Fprintf(sb, "Scan Date:      %s\n", report.DateScanned.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(sb, "Pages Visited:  %d\n", report.VisitedPages())
	fmt.Fprintf(sb, "Status:         %s\n", statusText(report))
	if report.RunID != 0 {
		fmt.Fprintf(sb, "Run ID:         %d\n", report.RunID)
	}
	sb.WriteString("\n")
}

// writeSummary writes the completeness summary section.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.ScanReport) {
	v := report.Validation
	w.section(sb, "VALIDATION SUMMARY")

	fmt.Fprintf(sb, "  Clinics:     %d\n", v.TotalClinics)
	fmt.Fprintf(sb, "  Complete:    %d\n", v.CompleteClinics())
	fmt.Fprintf(sb, "  Incomplete:  %d\n", v.IncompleteClinics)
	sb.WriteString("\n")
	for _, f := range model.Fields() {
		fmt.Fprintf(sb, "  Missing %-9s %d\n", f.String()+":", v.MissingCount(f))
	}
	sb.WriteString("\n")
}

// writeCrawls writes per-start statistics.
func (w *SimpleWriter) writeCrawls(sb *strings.Builder, report *model.ScanReport) {
	if len(report.Crawls) == 0 && !w.showEmpty {
		return
	}
	w.section(sb, "CRAWLS")

	for _, c := range report.Crawls {
		fmt.Fprintf(sb, "  [+] %s\n", c.StartURL)
		fmt.Fprintf(sb, "      visited=%d discovered=%d candidates=%d records=%d skipped=%d failures=%d budget_reached=%t\n",
			c.VisitedPages, len(c.DiscoveredOriginals), len(c.EntityCandidates),
			len(c.Records), c.Skipped, c.FetchFailures, c.BudgetReached)
	}
	sb.WriteString("\n")
}

// writeClinics writes the consolidated records as an aligned table.
func (w *SimpleWriter) writeClinics(sb *strings.Builder, report *model.ScanReport) {
	if len(report.Records) == 0 && !w.showEmpty {
		return
	}
	w.section(sb, "CLINICS")

	if len(report.Records) == 0 {
		sb.WriteString("  No clinics found\n\n")
		return
	}

	rows := [][]string{{"Name", "Phone", "Email", "Services"}}
	for _, rec := range report.Records {
		rows = append(rows, []string{
			orDash(rec.Name),
			orDash(rec.Phone),
			orDash(rec.Email),
			strconv.Itoa(len(rec.Services)),
		})
	}
	for _, line := range w.alignRows(rows) {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// alignRows pads every cell to the widest cell of its column.
func (w *SimpleWriter) alignRows(rows [][]string) []string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i := range row {
			if w.maxColumnWidth > 0 {
				row[i] = runewidth.Truncate(row[i], w.maxColumnWidth, "...")
			}
			if width := runewidth.StringWidth(row[i]); width > widths[i] {
				widths[i] = width
			}
		}
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				cells[i] = cell
				continue
			}
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		lines = append(lines, strings.Join(cells, "  "))
	}
	return lines
}

// writeIncomplete lists records missing critical fields.
func (w *SimpleWriter) writeIncomplete(sb *strings.Builder, report *model.ScanReport) {
	incomplete := Incomplete(report.Records)
	if len(incomplete) == 0 && !w.showEmpty {
		return
	}
	w.section(sb, "INCOMPLETE CLINICS")

	if len(incomplete) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, rec := range incomplete {
		fmt.Fprintf(sb, "  * %s\n", orDash(rec.Name))
		missing := make([]string, 0)
		for _, f := range rec.Missing() {
			missing = append(missing, f.String())
		}
		fmt.Fprintf(sb, "    Missing: %s\n", strings.Join(missing, ", "))
		if w.verbose {
			fmt.Fprintf(sb, "    Source:  %s\n", rec.SourceAddress)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by clinicscan\n")
	rule(sb, "=")
}
