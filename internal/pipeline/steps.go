package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/clinicscan/internal/database"
	"github.com/nao1215/clinicscan/internal/merge"
	"github.com/nao1215/clinicscan/internal/model"
	"github.com/nao1215/clinicscan/internal/report"
)

// CrawlStep crawls every start capture of the report and merges the
// records of all crawls into report.Records.
//
// Design decision: Crawls are merged with the same rule used inside one
// crawl, so two start captures reaching the same clinic yield one record.
type CrawlStep struct {
	batch  *BatchProcessor
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step running its crawls through batch.
func NewCrawlStep(batch *BatchProcessor, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		batch:  batch,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. Partial results of failed crawls are kept.
func (s *CrawlStep) Do(ctx context.Context, rep *model.ScanReport) error {
	start := time.Now()
	results, err := s.batch.ProcessBatch(ctx, rep.StartURLs)

	sets := make([][]*model.Record, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		rep.Crawls = append(rep.Crawls, result)
		sets = append(sets, result.Records)
	}
	rep.Records = merge.Merge(sets...)
	rep.Duration = time.Since(start)

	s.logger.Info("crawl step finished",
		"crawls", len(rep.Crawls),
		"visited_pages", rep.VisitedPages(),
		"records", len(rep.Records),
	)
	return err
}

// ValidateStep computes the completeness summary of the records.
type ValidateStep struct {
	logger *slog.Logger
}

// NewValidateStep creates a validation step.
func NewValidateStep(logger *slog.Logger) *ValidateStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStep{logger: logger}
}

// Name returns the step name.
func (s *ValidateStep) Name() string {
	return "validate"
}

// Do executes the validation step.
func (s *ValidateStep) Do(_ context.Context, rep *model.ScanReport) error {
	rep.Validation = report.Validate(rep.Records)

	v := rep.Validation
	s.logger.Info("validation summary",
		"total", v.TotalClinics,
		"complete", v.CompleteClinics(),
		"incomplete", v.IncompleteClinics,
		"missing_name", v.MissingName,
		"missing_address", v.MissingAddress,
		"missing_email", v.MissingEmail,
		"missing_phone", v.MissingPhone,
		"missing_services", v.MissingServices,
	)
	return nil
}

// ExportStep writes the records to CSV files.
// An empty path disables the corresponding file.
type ExportStep struct {
	csvPath        string
	incompletePath string
	logger         *slog.Logger
}

// NewExportStep creates an export step.
func NewExportStep(csvPath, incompletePath string, logger *slog.Logger) *ExportStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportStep{
		csvPath:        csvPath,
		incompletePath: incompletePath,
		logger:         logger,
	}
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do executes the export step.
func (s *ExportStep) Do(_ context.Context, rep *model.ScanReport) error {
	if s.csvPath != "" {
		n, err := report.WriteCSVFile(s.csvPath, rep.Records)
		if err != nil {
			return fmt.Errorf("failed to export clinics: %w", err)
		}
		s.logger.Info("wrote clinics CSV", "path", s.csvPath, "records", n)
	}

	if s.incompletePath != "" {
		n, err := report.WriteIncompleteCSV(s.incompletePath, rep.Records)
		if err != nil {
			return fmt.Errorf("failed to export incomplete clinics: %w", err)
		}
		if n == 0 {
			s.logger.Info("no incomplete clinics, skipped CSV", "path", s.incompletePath)
		} else {
			s.logger.Info("wrote incomplete clinics CSV", "path", s.incompletePath, "records", n)
		}
	}
	return nil
}

// PersistStep saves the report to the crawl database.
type PersistStep struct {
	db     *database.CrawlDB
	logger *slog.Logger
}

// NewPersistStep creates a persist step writing to db.
func NewPersistStep(db *database.CrawlDB, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the persist step and logs entity pages whose content changed
// since the previous run.
func (s *PersistStep) Do(ctx context.Context, rep *model.ScanReport) error {
	runID, err := s.db.SaveRun(ctx, rep)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	changed := 0
	for _, crawl := range rep.Crawls {
		for _, page := range crawl.Pages {
			if !page.Entity {
				continue
			}
			prev, err := s.db.PreviousPageHash(ctx, page.CaptureURL, runID)
			if err != nil {
				return err
			}
			if prev != "" && prev != page.Hash {
				changed++
				s.logger.Debug("clinic page changed since previous run", "url", page.CaptureURL)
			}
		}
	}

	s.logger.Info("saved run", "run_id", runID, "db", s.db.Path(), "changed_pages", changed)
	return nil
}
