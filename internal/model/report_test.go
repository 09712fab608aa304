package model

import (
	"errors"
	"testing"
)

// TestScanReportAggregates tests the cross-crawl aggregates.
func TestScanReportAggregates(t *testing.T) {
	t.Parallel()

	report := NewScanReport([]string{"a", "b"}, "https://site.example/our-clinics/")
	report.Crawls = append(report.Crawls,
		&CrawlResult{
			VisitedPages:        3,
			DiscoveredOriginals: []string{"https://site.example/our-clinics", "https://site.example/our-clinics/r/x"},
			EntityCandidates:    []string{"https://site.example/our-clinics/r/x"},
		},
		&CrawlResult{
			VisitedPages:        2,
			DiscoveredOriginals: []string{"https://site.example/our-clinics/r/y", "https://site.example/our-clinics/r/x"},
			EntityCandidates:    []string{"https://site.example/our-clinics/r/y", "https://site.example/our-clinics/r/x"},
		},
	)

	if report.VisitedPages() != 5 {
		t.Errorf("expected 5 visited pages, got %d", report.VisitedPages())
	}

	discovered := report.DiscoveredOriginals()
	if len(discovered) != 3 {
		t.Fatalf("expected 3 discovered originals, got %v", discovered)
	}
	if discovered[0] != "https://site.example/our-clinics" {
		t.Errorf("expected sorted output, got %v", discovered)
	}

	if got := report.EntityCandidates(); len(got) != 2 {
		t.Errorf("expected 2 candidates, got %v", got)
	}
}

// TestScanReportSetError tests error recording.
func TestScanReportSetError(t *testing.T) {
	t.Parallel()

	report := NewScanReport(nil, "")
	report.SetError(errors.New("boom"))
	if report.ErrorMessage != "boom" {
		t.Errorf("unexpected error message %q", report.ErrorMessage)
	}

	report.SetError(nil)
	if report.ErrorMessage != "" || report.Error != nil {
		t.Error("expected error to be cleared")
	}
}

// TestValidationReportComplete tests derived counts.
func TestValidationReportComplete(t *testing.T) {
	t.Parallel()

	v := ValidationReport{TotalClinics: 5, IncompleteClinics: 2, MissingPhone: 1, MissingServices: 3}
	if v.CompleteClinics() != 3 {
		t.Errorf("expected 3 complete clinics, got %d", v.CompleteClinics())
	}
	if v.MissingCount(FieldPhone) != 1 || v.MissingCount(FieldServices) != 3 || v.MissingCount(Field(42)) != 0 {
		t.Error("unexpected missing counts")
	}
}
