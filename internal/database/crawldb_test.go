package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nao1215/clinicscan/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *CrawlDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// newTestReport builds a report with one crawl, two pages and two records.
func newTestReport() *model.ScanReport {
	report := model.NewScanReport(
		[]string{"https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/"},
		"https://www.myfootdr.com.au/our-clinics/",
	)
	report.Duration = 1500 * time.Millisecond

	noosa := model.NewRecord(
		"https://www.myfootdr.com.au/our-clinics/regional-qld/noosa",
		"Noosa Foot Clinic", "1 Sunshine Beach Rd, Noosa QLD 4567", "noosa@myfootdr.com.au", "07 5555 1234",
		[]string{"Podiatry", "Orthotics"}, 20250708180027,
	)
	cairns := model.NewRecord(
		"https://www.myfootdr.com.au/our-clinics/regional-qld/cairns",
		"Cairns Foot Clinic", "", "", "07 4444 0000",
		nil, 20240101000000,
	)

	report.Crawls = append(report.Crawls, &model.CrawlResult{
		StartURL:     report.StartURLs[0],
		VisitedPages: 2,
		Records:      []*model.Record{cairns, noosa},
		Pages: []*model.Page{
			{
				CaptureURL:  "https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/",
				OriginalURL: "https://www.myfootdr.com.au/our-clinics",
				Timestamp:   20250708180027,
				Title:       "Our Clinics",
				Hash:        "aaa",
				Size:        100,
				FetchedAt:   time.Now(),
			},
			{
				CaptureURL:  "https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/regional-qld/noosa/",
				OriginalURL: "https://www.myfootdr.com.au/our-clinics/regional-qld/noosa",
				Timestamp:   20250708180027,
				Title:       "Noosa Foot Clinic",
				Hash:        "bbb",
				Size:        200,
				Candidate:   true,
				Entity:      true,
				FetchedAt:   time.Now(),
			},
		},
	})
	report.Records = []*model.Record{cairns, noosa}
	report.Validation = model.ValidationReport{TotalClinics: 2, IncompleteClinics: 1, MissingAddress: 1, MissingEmail: 1, MissingServices: 1}
	return report
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}

		db, err = Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()
	})
}

func TestOpenLocked(t *testing.T) {
	t.Parallel()

	dbDir := t.TempDir()
	first, err := Open(dbDir, DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := Open(dbDir, DefaultOptions()); !errors.Is(err, ErrLocked) {
		t.Errorf("second Open error = %v, want ErrLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	second, err := Open(dbDir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open after Close failed: %v", err)
	}
	_ = second.Close()
}

func TestSaveRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	report := newTestReport()

	id, err := db.SaveRun(ctx, report)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id == 0 || report.RunID != id {
		t.Fatalf("run ID = %d, report.RunID = %d", id, report.RunID)
	}

	t.Run("GetRun restores the report", func(t *testing.T) {
		t.Parallel()

		got, err := db.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.RunID != id {
			t.Errorf("RunID = %d, want %d", got.RunID, id)
		}
		if got.ScopePrefix != report.ScopePrefix {
			t.Errorf("ScopePrefix = %q", got.ScopePrefix)
		}
		if len(got.Records) != 2 {
			t.Fatalf("len(Records) = %d, want 2", len(got.Records))
		}
		if got.Validation.IncompleteClinics != 1 {
			t.Errorf("IncompleteClinics = %d, want 1", got.Validation.IncompleteClinics)
		}
		if got.Duration != report.Duration {
			t.Errorf("Duration = %v, want %v", got.Duration, report.Duration)
		}
	})

	t.Run("GetRunRecords returns records in key order", func(t *testing.T) {
		t.Parallel()

		records, err := db.GetRunRecords(ctx, id)
		if err != nil {
			t.Fatalf("GetRunRecords failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("len(records) = %d, want 2", len(records))
		}
		if records[0].Name != "Cairns Foot Clinic" || records[1].Name != "Noosa Foot Clinic" {
			t.Errorf("unexpected order: %q, %q", records[0].Name, records[1].Name)
		}
		if !slices.Equal(records[1].Services, []string{"Podiatry", "Orthotics"}) {
			t.Errorf("Services = %v", records[1].Services)
		}
		if records[0].Services == nil {
			t.Error("Services should be empty, not nil")
		}
		if records[1].CaptureTimestamp != 20250708180027 {
			t.Errorf("CaptureTimestamp = %d", records[1].CaptureTimestamp)
		}
	})

	t.Run("GetRunPages returns pages", func(t *testing.T) {
		t.Parallel()

		pages, err := db.GetRunPages(ctx, id)
		if err != nil {
			t.Fatalf("GetRunPages failed: %v", err)
		}
		if len(pages) != 2 {
			t.Fatalf("len(pages) = %d, want 2", len(pages))
		}
		noosa := pages[1]
		if !noosa.Entity || !noosa.Candidate {
			t.Errorf("noosa flags: entity=%v candidate=%v", noosa.Entity, noosa.Candidate)
		}
		if noosa.Hash != "bbb" || noosa.Size != 200 {
			t.Errorf("noosa hash/size = %q/%d", noosa.Hash, noosa.Size)
		}
		if noosa.FetchedAt.IsZero() {
			t.Error("FetchedAt should be set")
		}
	})
}

func TestRunNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetRun(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.GetRunRecords(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunRecords error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.GetRunPages(ctx, 42); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRunPages error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	latest, err := db.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun on empty database failed: %v", err)
	}
	if latest != nil {
		t.Fatalf("LatestRun = %+v, want nil", latest)
	}

	ids := make([]int64, 0, 3)
	for range 3 {
		id, err := db.SaveRun(ctx, newTestReport())
		if err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		ids = append(ids, id)
	}

	failed := newTestReport()
	failed.SetError(context.Canceled)
	failedID, err := db.SaveRun(ctx, failed)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("len(runs) = %d, want 4", len(runs))
	}
	if runs[0].ID != failedID || runs[3].ID != ids[0] {
		t.Errorf("runs not newest first: %d ... %d", runs[0].ID, runs[3].ID)
	}
	if runs[0].Error != context.Canceled.Error() {
		t.Errorf("Error = %q", runs[0].Error)
	}
	if runs[1].Error != "" {
		t.Errorf("Error = %q, want empty", runs[1].Error)
	}

	summary := runs[1]
	if summary.VisitedPages != 2 || summary.Records != 2 || summary.Incomplete != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", summary.Duration)
	}
	if len(summary.StartURLs) != 1 {
		t.Errorf("StartURLs = %v", summary.StartURLs)
	}
	if summary.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}

	limited, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}

	latest, err = db.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest == nil || latest.ID != failedID {
		t.Errorf("LatestRun = %+v, want ID %d", latest, failedID)
	}
}

func TestPreviousPageHash(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.SaveRun(ctx, newTestReport())
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	second := newTestReport()
	second.Crawls[0].Pages[1].Hash = "ccc"
	secondID, err := db.SaveRun(ctx, second)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	addr := second.Crawls[0].Pages[1].CaptureURL
	hash, err := db.PreviousPageHash(ctx, addr, secondID)
	if err != nil {
		t.Fatalf("PreviousPageHash failed: %v", err)
	}
	if hash != "bbb" {
		t.Errorf("hash = %q, want bbb", hash)
	}

	hash, err = db.PreviousPageHash(ctx, addr, first)
	if err != nil {
		t.Fatalf("PreviousPageHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("hash = %q, want empty", hash)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		zero  bool
	}{
		{name: "RFC3339Nano", input: "2025-07-08T18:00:27.123456789Z"},
		{name: "RFC3339", input: "2025-07-08T18:00:27Z"},
		{name: "SQLite format", input: "2025-07-08 18:00:27"},
		{name: "invalid", input: "not a time", zero: true},
		{name: "empty", input: "", zero: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := parseTimestamp(tt.input)
			if got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v, zero want %v", tt.input, got, tt.zero)
			}
		})
	}
}
