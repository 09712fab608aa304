package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/clinicscan/internal/model"
)

// CSVWriter outputs the consolidated records as CSV, one row per clinic.
// Columns follow model.Fields; services are joined with model.ServiceSeparator.
type CSVWriter struct {
	baseWriter

	// count is the number of records written by the last call.
	count int
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the records of the report.
// The returned int is the number of records written, not bytes.
func (w *CSVWriter) Write(report *model.ScanReport) (int, error) {
	return w.WriteRecords(report.Records)
}

// WriteRecords outputs a header row followed by one row per record.
func (w *CSVWriter) WriteRecords(records []*model.Record) (int, error) {
	cw := csv.NewWriter(w.output)

	header := make([]string, 0, len(model.Fields()))
	for _, f := range model.Fields() {
		header = append(header, f.Column())
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}

	w.count = 0
	for _, rec := range records {
		if err := cw.Write(csvRow(rec)); err != nil {
			return w.count, fmt.Errorf("failed to write CSV row: %w", err)
		}
		w.count++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return w.count, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return w.count, nil
}

func csvRow(rec *model.Record) []string {
	return []string{
		rec.Name,
		rec.Address,
		rec.Email,
		rec.Phone,
		strings.Join(rec.Services, model.ServiceSeparator),
	}
}

// WriteCSVFile writes records to path, creating parent directories.
// It returns the number of records written.
func WriteCSVFile(path string, records []*model.Record) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path) //nolint:gosec // path comes from the user
	if err != nil {
		return 0, fmt.Errorf("failed to create CSV file: %w", err)
	}

	n, err := NewCSVWriter(f).WriteRecords(records)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close CSV file: %w", closeErr)
	}
	return n, err
}

// WriteIncompleteCSV writes only the records missing a name, an address or
// a phone. When no record is incomplete the file is not created and 0 is
// returned.
func WriteIncompleteCSV(path string, records []*model.Record) (int, error) {
	incomplete := Incomplete(records)
	if len(incomplete) == 0 {
		return 0, nil
	}
	return WriteCSVFile(path, incomplete)
}
