package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/clinicscan/internal/capture"
	"github.com/nao1215/clinicscan/internal/crawler"
	"github.com/nao1215/clinicscan/internal/database"
	"github.com/nao1215/clinicscan/internal/model"
)

const (
	archiveHost = "https://archive.example"
	scopePrefix = "https://site.example/our-clinics/"
	northStart  = archiveHost + "/web/20250708180027/https://site.example/our-clinics/north/"
	southStart  = archiveHost + "/web/20250708180027/https://site.example/our-clinics/south/"
	noosaOld    = "/web/20240101000000/https://site.example/our-clinics/north/noosa/"
	noosaNew    = "/web/20250708180027/https://site.example/our-clinics/north/noosa/"
	byronPath   = "/web/20250708180027/https://site.example/our-clinics/south/byron/"
)

func clinicDoc(name, phone, email string) string {
	mail := ""
	if email != "" {
		mail = `<a href="mailto:` + email + `">Email</a>`
	}
	return `<html><head><title>` + name + ` | Site</title></head><body><main>
  <h1>Welcome to ` + name + `</h1>
  <p><a href="https://maps.example/">17 Beach Rd Noosa QLD 4567</a></p>
  <p>` + mail + ` <a href="tel:0712345678">` + phone + `</a></p>
  <p>Our services include</p>
  <ul><li>Heel pain</li></ul>
</main></body></html>`
}

// testArchive serves capture documents by path.
func testArchive() map[string]string {
	return map[string]string{
		strings.TrimPrefix(northStart, archiveHost): `<html><body><main><h1>North</h1>
			<a href="` + noosaOld + `">Noosa</a></main></body></html>`,
		strings.TrimPrefix(southStart, archiveHost): `<html><body><main><h1>South</h1>
			<a href="` + noosaNew + `">Noosa</a>
			<a href="` + byronPath + `">Byron</a></main></body></html>`,
		noosaOld: clinicDoc("Noosa Clinic", "07 1234 5678", ""),
		noosaNew: clinicDoc("Noosa Clinic", "07 1234 5678", "noosa@example.com"),
		// Byron lacks an email and is still complete; the address is shared.
		byronPath: clinicDoc("Byron Clinic", "02 6685 0000", ""),
	}
}

func newTestSpider(archive map[string]string) *crawler.Spider {
	fetcher := crawler.FetcherFunc(func(_ context.Context, addr string) ([]byte, error) {
		doc, ok := archive[strings.TrimPrefix(addr, archiveHost)]
		if !ok {
			return nil, fmt.Errorf("not archived: %s", addr)
		}
		return []byte(doc), nil
	})
	return crawler.NewSpider(fetcher, capture.NewScope(scopePrefix), crawler.WithLogger(quietLogger()))
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("merges records across crawls", func(t *testing.T) {
		t.Parallel()

		batch := NewBatchProcessor(newTestSpider(testArchive()), WithBatchLogger(quietLogger()))
		step := NewCrawlStep(batch, WithCrawlLogger(quietLogger()))
		report := model.NewScanReport([]string{northStart, southStart}, scopePrefix)

		if err := step.Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Crawls) != 2 {
			t.Fatalf("len(Crawls) = %d, want 2", len(report.Crawls))
		}
		if len(report.Records) != 2 {
			t.Fatalf("len(Records) = %d, want 2", len(report.Records))
		}

		byName := make(map[string]*model.Record)
		for _, rec := range report.Records {
			byName[rec.Name] = rec
		}
		noosa := byName["Noosa Clinic"]
		if noosa == nil {
			t.Fatal("expected Noosa Clinic record")
		}
		if noosa.Email != "noosa@example.com" || noosa.CaptureTimestamp != 20250708180027 {
			t.Errorf("expected the more complete capture to win, got %+v", noosa)
		}
		if report.VisitedPages() != 5 {
			t.Errorf("VisitedPages() = %d, want 5", report.VisitedPages())
		}
	})

	t.Run("keeps results of good starts when one fails", func(t *testing.T) {
		t.Parallel()

		batch := NewBatchProcessor(newTestSpider(testArchive()), WithBatchLogger(quietLogger()))
		step := NewCrawlStep(batch, WithCrawlLogger(quietLogger()))
		report := model.NewScanReport([]string{"ftp://bad", southStart}, scopePrefix)

		err := step.Do(context.Background(), report)
		if !errors.Is(err, crawler.ErrInvalidStart) {
			t.Fatalf("expected ErrInvalidStart, got %v", err)
		}
		if len(report.Crawls) != 1 || len(report.Records) != 2 {
			t.Errorf("crawls=%d records=%d, want 1 and 2", len(report.Crawls), len(report.Records))
		}
	})
}

func TestValidateStep(t *testing.T) {
	t.Parallel()

	report := newTestReport()
	report.Records = []*model.Record{
		model.NewRecord("a", "A", "1 Main St", "", "07 1111 2222", nil, 0),
		model.NewRecord("b", "B", "", "", "", nil, 0),
	}

	if err := NewValidateStep(quietLogger()).Do(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Validation.TotalClinics != 2 || report.Validation.IncompleteClinics != 1 {
		t.Errorf("Validation = %+v", report.Validation)
	}
}

func TestExportStep(t *testing.T) {
	t.Parallel()

	t.Run("writes both files", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		csvPath := filepath.Join(dir, "clinics.csv")
		incompletePath := filepath.Join(dir, "incomplete.csv")

		report := newTestReport()
		report.Records = []*model.Record{
			model.NewRecord("a", "A", "1 Main St", "", "07 1111 2222", []string{"x", "y"}, 0),
			model.NewRecord("b", "B", "", "", "", nil, 0),
		}

		if err := NewExportStep(csvPath, incompletePath, quietLogger()).Do(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(csvPath)
		if err != nil {
			t.Fatalf("failed to read CSV: %v", err)
		}
		if !strings.Contains(string(data), "x; y") {
			t.Errorf("unexpected CSV:\n%s", data)
		}

		data, err = os.ReadFile(incompletePath)
		if err != nil {
			t.Fatalf("failed to read incomplete CSV: %v", err)
		}
		if strings.Count(string(data), "\n") != 2 {
			t.Errorf("expected header and one row:\n%s", data)
		}
	})

	t.Run("skips disabled outputs", func(t *testing.T) {
		t.Parallel()

		if err := NewExportStep("", "", quietLogger()).Do(context.Background(), newTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestPersistStep(t *testing.T) {
	t.Parallel()

	db, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	batch := NewBatchProcessor(newTestSpider(testArchive()), WithBatchLogger(quietLogger()))
	p := New(WithLogger(quietLogger()))
	p.AddSteps(
		NewCrawlStep(batch, WithCrawlLogger(quietLogger())),
		NewValidateStep(quietLogger()),
		NewPersistStep(db, quietLogger()),
	)

	report := model.NewScanReport([]string{northStart, southStart}, scopePrefix)
	if err := p.Execute(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RunID == 0 {
		t.Fatal("expected RunID to be set")
	}

	records, err := db.GetRunRecords(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("GetRunRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("stored %d records, want 2", len(records))
	}

	latest, err := db.LatestRun(context.Background())
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest == nil || latest.ID != report.RunID || latest.VisitedPages != 5 {
		t.Errorf("LatestRun = %+v", latest)
	}
}
