package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/clinicscan/internal/capture"
	"github.com/nao1215/clinicscan/internal/extract"
	"github.com/nao1215/clinicscan/internal/merge"
	"github.com/nao1215/clinicscan/internal/model"
)

// Fetcher retrieves the document of a capture address.
// Any error means "skip this capture"; retry policy belongs to the Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, addr string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, addr string) ([]byte, error)

// Fetch calls f(ctx, addr).
func (f FetcherFunc) Fetch(ctx context.Context, addr string) ([]byte, error) {
	return f(ctx, addr)
}

// Spider walks archive captures under a scope prefix, most recent capture
// first, and extracts clinic records from the pages it fetches.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
//
// A Spider holds configuration only. Each Crawl call owns its own frontier,
// visited set and result mapping, so one Spider can run several crawls at once.
type Spider struct {
	// fetcher retrieves capture documents.
	fetcher Fetcher

	// scope gates which captures are traversed.
	scope *capture.Scope

	// extractor turns documents into records.
	extractor *extract.Extractor

	// maxPages limits the number of in-scope captures fetched.
	// 0 means no limit.
	maxPages int

	// delay is the time each worker waits after a fetch.
	delay time.Duration

	// concurrency is the number of captures fetched in parallel.
	concurrency int

	// pageHook is called for every fetched page.
	pageHook func(*model.Page)

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the page budget. 0 means unlimited.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithDelay sets the delay between requests of one worker.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithRules sets the extraction rules.
func WithRules(rules extract.Rules) SpiderOption {
	return func(s *Spider) {
		s.extractor = extract.NewExtractor(rules)
	}
}

// WithConcurrency sets the number of parallel fetches.
// Values below 1 are treated as 1.
func WithConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		s.concurrency = n
	}
}

// WithPageHook sets a function called after each page is processed.
// It may be called from several goroutines.
func WithPageHook(hook func(*model.Page)) SpiderOption {
	return func(s *Spider) {
		s.pageHook = hook
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider fetching through fetcher and limited to scope.
//
// Design decision: We require an external fetcher because:
//  1. Retries, headers and proxies are handled by the fetch package
//  2. Tests can serve captures from memory or httptest
func NewSpider(fetcher Fetcher, scope *capture.Scope, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:     fetcher,
		scope:       scope,
		extractor:   extract.NewExtractor(extract.DefaultRules()),
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	return s
}

// Scope returns the spider's scope.
func (s *Spider) Scope() *capture.Scope {
	return s.scope
}

// Crawl traverses captures starting at start and returns what it found.
//
// The traversal ends when the frontier is empty or the page budget is
// reached. Fetch failures skip the capture and never abort the crawl.
// When ctx is cancelled the partial result is returned with ctx.Err().
func (s *Spider) Crawl(ctx context.Context, start string) (*model.CrawlResult, error) {
	start = strings.TrimSpace(start)
	u, err := url.Parse(start)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStart, start)
	}

	cr := newCrawl(s)
	cr.frontier.add(start, s.scope.Parse(start).Priority())
	cr.queued[capture.Canonicalize(start)] = true

	stop := context.AfterFunc(ctx, func() {
		cr.mu.Lock()
		defer cr.mu.Unlock()
		cr.cond.Broadcast()
	})
	defer stop()

	s.logger.Info("starting crawl", "start", start, "scope", s.scope.Prefix, "max_pages", s.maxPages, "concurrency", s.concurrency)

	var g errgroup.Group
	for range s.concurrency {
		g.Go(func() error {
			cr.work(ctx)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	result := cr.result(start)
	s.logger.Info("crawl finished",
		"start", start,
		"visited_pages", result.VisitedPages,
		"discovered", len(result.DiscoveredOriginals),
		"candidates", len(result.EntityCandidates),
		"records", len(result.Records),
		"skipped", result.Skipped,
		"fetch_failures", result.FetchFailures,
		"budget_reached", result.BudgetReached,
	)
	return result, ctx.Err()
}

// crawl is the state of one traversal.
type crawl struct {
	s *Spider

	mu   sync.Mutex
	cond *sync.Cond

	frontier frontier

	// visited and queued hold canonical capture addresses.
	visited map[string]bool
	queued  map[string]bool

	// discovered and candidates hold canonical original addresses.
	discovered map[string]bool
	candidates map[string]bool

	visitedPages  int
	skipped       int
	failures      int
	budgetReached bool
	inFlight      int

	pages   []*model.Page
	records *merge.Consolidator
}

func newCrawl(s *Spider) *crawl {
	cr := &crawl{
		s:          s,
		visited:    make(map[string]bool),
		queued:     make(map[string]bool),
		discovered: make(map[string]bool),
		candidates: make(map[string]bool),
		records:    merge.NewConsolidator(),
	}
	cr.cond = sync.NewCond(&cr.mu)
	return cr
}

// task is a capture claimed for fetching.
type task struct {
	addr      string
	capture   capture.Capture
	original  string
	candidate bool
}

// work claims and processes captures until the traversal ends.
func (cr *crawl) work(ctx context.Context) {
	for {
		t, ok := cr.claim(ctx)
		if !ok {
			return
		}
		cr.process(ctx, t)
		cr.release()

		if cr.s.delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cr.s.delay):
			}
		}
	}
}

// claim pops frontier entries until one must be fetched.
// Visited check and mark happen under one lock, so a canonical capture is
// claimed at most once. It returns false when the traversal is over.
func (cr *crawl) claim(ctx context.Context) (task, bool) {
	s := cr.s

	cr.mu.Lock()
	defer cr.mu.Unlock()

	for {
		if cr.budgetReached || ctx.Err() != nil {
			return task{}, false
		}

		e, ok := cr.frontier.next()
		if !ok {
			if cr.inFlight == 0 {
				return task{}, false
			}
			// Captures being fetched may still queue links.
			cr.cond.Wait()
			continue
		}

		key := capture.Canonicalize(e.addr)
		delete(cr.queued, key)
		if cr.visited[key] {
			continue
		}
		cr.visited[key] = true

		c := s.scope.Parse(e.addr)
		if !c.HasOriginal || !s.scope.InScope(e.addr) {
			s.logger.Debug("skipping out-of-scope capture", "url", e.addr)
			cr.skipped++
			continue
		}

		original := capture.CanonicalOriginal(c.Original)
		cr.discovered[original] = true
		candidate := s.scope.IsEntityCandidate(original)
		if candidate {
			cr.candidates[original] = true
		}

		if s.maxPages > 0 && cr.visitedPages >= s.maxPages {
			s.logger.Info("page budget reached", "max_pages", s.maxPages)
			cr.budgetReached = true
			cr.cond.Broadcast()
			return task{}, false
		}

		cr.visitedPages++
		cr.inFlight++
		return task{addr: e.addr, capture: c, original: original, candidate: candidate}, true
	}
}

// release marks a claimed capture as done.
func (cr *crawl) release() {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.inFlight--
	cr.cond.Broadcast()
}

// process fetches a claimed capture, extracts its record and queues its links.
func (cr *crawl) process(ctx context.Context, t task) {
	s := cr.s

	body, err := s.fetcher.Fetch(ctx, t.addr)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("failed to fetch capture", "url", t.addr, "error", err)
		cr.mu.Lock()
		cr.failures++
		cr.mu.Unlock()
		return
	}

	page := &model.Page{
		CaptureURL:  t.addr,
		OriginalURL: t.original,
		Timestamp:   t.capture.Timestamp,
		Candidate:   t.candidate,
		FetchedAt:   time.Now(),
		Raw:         body,
	}
	page.ComputeHash()
	page.Raw = nil

	doc, err := extract.Parse(bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to parse capture", "url", t.addr, "error", err)
		cr.mu.Lock()
		cr.failures++
		cr.mu.Unlock()
		return
	}
	page.Title = doc.Title()

	if rec, ok := s.extractor.ExtractRecord(doc, t.original, t.capture.Timestamp); ok {
		page.Entity = true
		if cr.records.Offer(rec) {
			s.logger.Debug("clinic record kept", "name", rec.Name, "source", rec.SourceAddress, "score", rec.Score())
		}
	}

	links := make([]string, 0)
	for _, href := range doc.Links() {
		abs, ok := capture.Resolve(t.addr, href)
		if !ok || !s.scope.InScope(abs) {
			continue
		}
		links = append(links, abs)
	}

	cr.mu.Lock()
	cr.pages = append(cr.pages, page)
	for _, link := range links {
		key := capture.Canonicalize(link)
		if cr.visited[key] || cr.queued[key] {
			continue
		}
		cr.queued[key] = true
		cr.frontier.add(link, s.scope.Parse(link).Priority())
	}
	cr.cond.Broadcast()
	cr.mu.Unlock()

	if s.pageHook != nil {
		s.pageHook(page)
	}
}

// result snapshots the traversal state.
func (cr *crawl) result(start string) *model.CrawlResult {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	return &model.CrawlResult{
		StartURL:            start,
		VisitedPages:        cr.visitedPages,
		VisitedURLs:         sortedKeys(cr.visited),
		DiscoveredOriginals: sortedKeys(cr.discovered),
		EntityCandidates:    sortedKeys(cr.candidates),
		Skipped:             cr.skipped,
		FetchFailures:       cr.failures,
		BudgetReached:       cr.budgetReached,
		Records:             cr.records.Records(),
		Pages:               slices.Clone(cr.pages),
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
