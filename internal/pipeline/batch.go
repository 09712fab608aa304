package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/clinicscan/internal/model"
)

// Crawler traverses captures from one start address.
// *crawler.Spider implements it.
type Crawler interface {
	Crawl(ctx context.Context, start string) (*model.CrawlResult, error)
}

// BatchProcessor crawls several start captures concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on a sequence of steps
// 2. It provides cleaner separation of concerns
//
// Every crawl owns its traversal state, so one Crawler is shared by all
// goroutines.
type BatchProcessor struct {
	// crawler runs one traversal per start capture.
	crawler Crawler

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Non-positive values keep the default of 2.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(crawler Crawler, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		crawler:     crawler,
		concurrency: 2,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every start capture and returns the results in input
// order. A failed crawl leaves a nil entry unless it produced a partial
// result; its error is joined into the returned error and the other crawls
// continue.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, starts []string) ([]*model.CrawlResult, error) {
	bp.logger.Info("starting batch crawl",
		"total_starts", len(starts),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	results := make([]*model.CrawlResult, len(starts))
	errs := make([]error, len(starts))

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, start := range starts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}

			bp.logger.Info("crawling start capture",
				"start", start,
				"index", i+1,
				"total", len(starts),
			)

			result, err := bp.crawler.Crawl(ctx, start)
			results[i] = result
			if err != nil {
				bp.logger.Warn("crawl failed", "start", start, "error", err)
				errs[i] = fmt.Errorf("%s: %w", start, err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines record errors in errs

	bp.logger.Info("batch crawl complete",
		"total_starts", len(starts),
		"elapsed", time.Since(startTime),
	)

	return results, errors.Join(errs...)
}

// ProcessBatchWithCallback crawls every start capture and calls callback
// for each finished crawl, including failed ones. The callback is called
// from the goroutine that ran the crawl, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	starts []string,
	callback func(result *model.CrawlResult, err error, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, start := range starts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result, err := bp.crawler.Crawl(ctx, start)
			callback(result, err, i)
			return nil
		})
	}

	return g.Wait()
}
