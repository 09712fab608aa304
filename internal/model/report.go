package model

import (
	"slices"
	"time"
)

// CrawlResult is the outcome of one traversal from a start capture.
//
// Design decision: Statistics travel in this value rather than in
// package-level counters, so concurrent crawls never share state and a
// result can be merged or persisted as plain data.
type CrawlResult struct {
	// StartURL is the capture the traversal started from.
	StartURL string `json:"start_url"`

	// VisitedPages is the number of in-scope captures that were fetched
	// (or attempted). This is the number the page budget is checked against.
	VisitedPages int `json:"visited_pages"`

	// VisitedURLs holds the canonical capture addresses marked visited,
	// in scope or not, sorted.
	VisitedURLs []string `json:"visited_urls"`

	// DiscoveredOriginals holds the canonical original addresses of all
	// in-scope captures reached, sorted.
	DiscoveredOriginals []string `json:"discovered_originals"`

	// EntityCandidates holds the discovered originals that passed the
	// path-depth heuristic, sorted.
	EntityCandidates []string `json:"entity_candidates"`

	// Skipped counts captures dropped by the scope filter.
	Skipped int `json:"skipped"`

	// FetchFailures counts in-scope captures whose fetch failed.
	FetchFailures int `json:"fetch_failures"`

	// BudgetReached is true when the traversal stopped at the page budget.
	BudgetReached bool `json:"budget_reached"`

	// Records holds the consolidated records, ordered by dedup key.
	Records []*Record `json:"records"`

	// Pages holds the fetched pages in fetch order. Raw content is not kept.
	Pages []*Page `json:"-"`
}

// ValidationReport summarizes the completeness of a set of records.
type ValidationReport struct {
	TotalClinics      int `json:"total_clinics"`
	IncompleteClinics int `json:"incomplete_clinics"`
	MissingName       int `json:"missing_name"`
	MissingAddress    int `json:"missing_address"`
	MissingEmail      int `json:"missing_email"`
	MissingPhone      int `json:"missing_phone"`
	MissingServices   int `json:"missing_services"`
}

// CompleteClinics returns the number of clinics with all critical fields present.
func (v ValidationReport) CompleteClinics() int {
	return v.TotalClinics - v.IncompleteClinics
}

// MissingCount returns the number of records missing the given field.
func (v ValidationReport) MissingCount(f Field) int {
	switch f {
	case FieldName:
		return v.MissingName
	case FieldAddress:
		return v.MissingAddress
	case FieldEmail:
		return v.MissingEmail
	case FieldPhone:
		return v.MissingPhone
	case FieldServices:
		return v.MissingServices
	default:
		return 0
	}
}

// ScanReport is the result of a scan: one or more crawls merged together.
type ScanReport struct {
	// RunID is the database identifier of the run, 0 when not persisted.
	RunID int64 `json:"run_id,omitempty"`

	// StartURLs are the start captures of the scan.
	StartURLs []string `json:"start_urls"`

	// ScopePrefix is the original-site prefix that bounded the crawl.
	ScopePrefix string `json:"scope_prefix"`

	// DateScanned is when the scan started.
	DateScanned time.Time `json:"date_scanned"`

	// Duration is how long the scan took.
	Duration time.Duration `json:"duration"`

	// Crawls holds the per-start-capture results.
	Crawls []*CrawlResult `json:"crawls"`

	// Records holds the records consolidated across all crawls.
	Records []*Record `json:"records"`

	// Validation summarizes the completeness of Records.
	Validation ValidationReport `json:"validation"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error holds a crawl error that cut the scan short, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewScanReport creates an empty report for the given start captures.
func NewScanReport(startURLs []string, scopePrefix string) *ScanReport {
	return &ScanReport{
		StartURLs:   slices.Clone(startURLs),
		ScopePrefix: scopePrefix,
		DateScanned: time.Now(),
		Crawls:      make([]*CrawlResult, 0, len(startURLs)),
		Records:     make([]*Record, 0),
	}
}

// SetError records an error on the report.
func (r *ScanReport) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	} else {
		r.ErrorMessage = ""
	}
}

// VisitedPages returns the total number of pages visited across crawls.
func (r *ScanReport) VisitedPages() int {
	total := 0
	for _, c := range r.Crawls {
		total += c.VisitedPages
	}
	return total
}

// DiscoveredOriginals returns the union of discovered originals, sorted.
func (r *ScanReport) DiscoveredOriginals() []string {
	return r.union(func(c *CrawlResult) []string { return c.DiscoveredOriginals })
}

// EntityCandidates returns the union of entity candidates, sorted.
func (r *ScanReport) EntityCandidates() []string {
	return r.union(func(c *CrawlResult) []string { return c.EntityCandidates })
}

func (r *ScanReport) union(get func(*CrawlResult) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, c := range r.Crawls {
		for _, s := range get(c) {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}
