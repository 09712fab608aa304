package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/clinicscan/internal/capture"
	"github.com/nao1215/clinicscan/internal/config"
	"github.com/nao1215/clinicscan/internal/crawler"
	"github.com/nao1215/clinicscan/internal/database"
	"github.com/nao1215/clinicscan/internal/extract"
	"github.com/nao1215/clinicscan/internal/fetch"
	"github.com/nao1215/clinicscan/internal/model"
	"github.com/nao1215/clinicscan/internal/pipeline"
	"github.com/nao1215/clinicscan/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [capture-url...]",
		Short: "Crawl archived clinic pages and extract clinic records",
		Long: `Scan crawls Wayback Machine captures starting from one or more capture
URLs and extracts one record per clinic.

Captures are visited newest first. Only captures whose original address
falls under the scope prefix are fetched. Records of the same clinic
(same name and address) are merged, keeping the most complete one and
then the most recent one.

Examples:
  # Scan the default clinics landing page
  clinicscan scan

  # Scan a specific capture, at most 200 pages
  clinicscan scan --max-pages 200 \
    https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/

  # Write the CSV exports and a Markdown report
  clinicscan scan --csv clinics.csv --incomplete-csv incomplete.csv -m -o report.md

  # Use a custom configuration file
  clinicscan scan -c myconfig.yaml

Configuration file (.clinicscan) example:
  scope:
    prefix: "https://www.myfootdr.com.au/our-clinics/"
    collection: "web"
  rules:
    excludedTitles: ["our clinics", "clinics", "find a clinic"]
  hosts:
    web.archive.org:
      userAgent: "my-research-bot/1.0"`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringP("scope", "s", config.DefaultScopePrefix,
		"Original-site prefix captures must fall under")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to visit per start capture (0 = unlimited)")
	cmd.Flags().IntP("concurrency", "C", config.DefaultConcurrency,
		"Number of captures fetched in parallel within one crawl")
	cmd.Flags().Duration("delay", 0,
		"Pause after each fetch (e.g. 500ms)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of start captures crawled concurrently")

	// HTTP flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP attempt")
	cmd.Flags().IntP("max-retries", "r", config.DefaultMaxRetries,
		"Number of attempts per capture")
	cmd.Flags().Float64("rate", config.DefaultRequestsPerSecond,
		"Maximum requests per second to the archive (0 = unlimited)")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g. 127.0.0.1:1080)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with requests")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .clinicscan in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().String("csv", "",
		"Write all clinic records to a CSV file")
	cmd.Flags().String("incomplete-csv", "",
		"Write records missing a name, address or phone to a CSV file")

	// Storage flags
	cmd.Flags().String("db-dir", "",
		"Directory of the run database (default: XDG data directory)")
	cmd.Flags().Bool("no-save", false,
		"Do not store the run in the database")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals. Partial results are still reported.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runScan(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// buildConfig creates a Config from cobra command flags and the
// configuration file. Flags given on the command line win over the file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.ScopePrefix, err = flags.GetString("scope"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.CSVFile, err = flags.GetString("csv"); err != nil {
		return nil, err
	}
	if cfg.IncompleteCSVFile, err = flags.GetString("incomplete-csv"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")

	if cfg.File, err = loadConfigFile(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	if cfg.File.Scope.Prefix != "" && !flags.Changed("scope") {
		cfg.ScopePrefix = cfg.File.Scope.Prefix
	}

	cfg.StartURLs = args
	if len(cfg.StartURLs) == 0 {
		cfg.StartURLs = []string{config.DefaultStartURL}
	}

	return cfg, nil
}

// runScan executes the scan and writes the report.
// Progress messages go to status; the report goes to stdout unless a
// report file is configured.
func runScan(ctx context.Context, cfg *config.Config, stdout, status io.Writer, logger *slog.Logger) error {
	logger.Info("starting scan",
		"starts", cfg.StartURLs,
		"scope", cfg.ScopePrefix,
		"maxPages", cfg.MaxPages,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	client, err := newFetchClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	spider := crawler.NewSpider(client, newScope(cfg),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithConcurrency(cfg.Concurrency),
		crawler.WithDelay(cfg.Delay),
		crawler.WithRules(rulesFromConfig(cfg.File)),
		crawler.WithLogger(logger),
	)

	p := createPipeline(cfg, spider, db, logger)
	scanReport := model.NewScanReport(cfg.StartURLs, cfg.ScopePrefix)

	fmt.Fprintf(status, "Scanning %d start capture(s) under %s...\n", len(cfg.StartURLs), cfg.ScopePrefix)
	startTime := time.Now()

	if err := p.Execute(ctx, scanReport); err != nil {
		logger.Error("scan failed", "error", err)
	}

	fmt.Fprintf(status, "Scan completed in %s: %d pages visited, %d clinics found\n\n",
		time.Since(startTime).Round(time.Millisecond), scanReport.VisitedPages(), len(scanReport.Records))

	if err := outputReport(cfg, scanReport, stdout); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// Partial results were reported; only a scan that produced nothing fails.
	if scanReport.Error != nil && len(scanReport.Crawls) == 0 {
		return scanReport.Error
	}
	return nil
}

// createPipeline assembles the scan steps. The persist step is added only
// when db is non-nil.
func createPipeline(cfg *config.Config, spider *crawler.Spider, db *database.CrawlDB, logger *slog.Logger) *pipeline.Pipeline {
	batch := pipeline.NewBatchProcessor(spider,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	p.AddSteps(
		pipeline.NewCrawlStep(batch, pipeline.WithCrawlLogger(logger)),
		pipeline.NewValidateStep(logger),
		pipeline.NewExportStep(cfg.CSVFile, cfg.IncompleteCSVFile, logger),
	)
	if db != nil {
		p.AddStep(pipeline.NewPersistStep(db, logger))
	}
	return p
}

// loadConfigFile loads the configuration file.
// If user explicitly specified a config file path, error if not found.
// If no path specified, silently use empty config if no file found.
func loadConfigFile(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		return file, nil
	case explicitPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
	default:
		return &config.File{Hosts: make(map[string]config.HostConfig)}, nil
	}
}

// newFetchClient creates the HTTP client for the archive host of the first
// start capture, applying the host settings of the configuration file.
func newFetchClient(cfg *config.Config, logger *slog.Logger) (*fetch.Client, error) {
	var hostConfig config.HostConfig
	if cfg.File != nil && len(cfg.StartURLs) > 0 {
		hostConfig = cfg.File.GetHostConfig(archiveHost(cfg.StartURLs[0]))
	}

	userAgent := cfg.UserAgent
	if hostConfig.UserAgent != "" && userAgent == config.DefaultUserAgent {
		userAgent = hostConfig.UserAgent
	}

	opts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxRetries(cfg.MaxRetries),
		fetch.WithUserAgent(userAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLogger(logger),
	}
	if len(hostConfig.Headers) > 0 {
		opts = append(opts, fetch.WithHeaders(hostConfig.Headers))
	}
	if hostConfig.Cookie != "" {
		opts = append(opts, fetch.WithCookie(hostConfig.Cookie))
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, fetch.WithLimiter(fetch.NewHostLimiter(cfg.RequestsPerSecond, 1)))
	}
	if cfg.ProxyAddress != "" {
		opts = append(opts, fetch.WithProxy(cfg.ProxyAddress))
	}
	return fetch.NewClient(opts...)
}

// archiveHost returns the hostname of a capture address, or "" when it
// cannot be parsed.
func archiveHost(captureURL string) string {
	u, err := url.Parse(captureURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// newScope builds the crawl scope from the configuration.
func newScope(cfg *config.Config) *capture.Scope {
	var opts []capture.ScopeOption
	if cfg.File != nil && cfg.File.Scope.Collection != "" {
		opts = append(opts, capture.WithResolver(capture.NewResolver(cfg.File.Scope.Collection)))
	}
	return capture.NewScope(cfg.ScopePrefix, opts...)
}

// rulesFromConfig returns the built-in extraction rules overridden by the
// non-empty lists of the configuration file.
func rulesFromConfig(file *config.File) extract.Rules {
	rules := extract.DefaultRules()
	if file == nil {
		return rules
	}
	rc := file.Rules
	return rules.Override(extract.Rules{
		Containers:          rc.Containers,
		HeadingSelectors:    rc.HeadingSelectors,
		GreetingPrefixes:    rc.GreetingPrefixes,
		ExcludedTitles:      rc.ExcludedTitles,
		BreadcrumbSelectors: rc.BreadcrumbSelectors,
		TitleSeparators:     rc.TitleSeparators,
		StreetWords:         rc.StreetWords,
		RegionAbbreviations: rc.RegionAbbreviations,
		ServiceMarkers:      rc.ServiceMarkers,
		GenericPhones:       rc.GenericPhones,
		MaxServiceLength:    rc.MaxServiceLength,
	})
}

// outputReport outputs the scan report in the requested format, to the
// report file when one is configured and to stdout otherwise.
func outputReport(cfg *config.Config, scanReport *model.ScanReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg, output).Write(scanReport)
	return err
}

// newReportWriter selects the report writer for the configured format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// createReportFile creates or truncates path, creating parent directories.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
