// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter / FullJSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown output for sharing
//   - CSVWriter: One row per clinic, for spreadsheets
//
// Validate computes the completeness summary stored on a ScanReport, and
// WriteIncompleteCSV exports only the clinics missing a critical field.
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) to follow the single responsibility
// principle. This allows adding new output formats without modifying
// the core data structures.
package report
