package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values follow the behaviour of the archive service: captures are slow
// to serve and the service throttles aggressive clients.
const (
	// DefaultStartURL is the Wayback capture of the clinics landing page that
	// a scan starts from when no start URL is given.
	DefaultStartURL = "https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/"

	// DefaultScopePrefix is the original-site path prefix a capture must fall
	// under to be crawled.
	DefaultScopePrefix = "https://www.myfootdr.com.au/our-clinics/"

	// DefaultTimeout is the timeout of a single HTTP attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of attempts made for one capture before
	// the fetch is reported as failed.
	DefaultMaxRetries = 3

	// DefaultMaxPages is the page-visit budget. 0 means no budget: the crawl
	// ends when the frontier is exhausted.
	DefaultMaxPages = 0

	// DefaultConcurrency is the number of captures fetched in parallel within
	// one crawl. 1 keeps the traversal strictly sequential.
	DefaultConcurrency = 1

	// DefaultBatchSize is the number of start captures crawled concurrently.
	DefaultBatchSize = 2

	// DefaultRequestsPerSecond limits the request rate against the archive host.
	// The Wayback Machine starts answering 429 well above this rate.
	DefaultRequestsPerSecond = 2.0

	// AppName is the application name used for XDG directory paths.
	AppName = "clinicscan"

	// DefaultUserAgent identifies clinicscan in HTTP requests.
	DefaultUserAgent = "myfootdr-archive-scraper/0.1 (https://www.myfootdr.com.au/)"

	// DefaultMaxBodySize limits the response body read for one capture.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB
)

// Config holds all configuration options for clinicscan.
// It is populated from CLI flags and the optional configuration file and
// passed through the application rather than kept in global state.
//
// Design decision: We keep a single flat struct, as the number of options is
// small. Extraction rules live in the configuration file (File.Rules) because
// they are lists, which do not map well to flags.
type Config struct {
	// StartURLs are the capture addresses a scan starts from.
	StartURLs []string

	// ScopePrefix is the original-site prefix that bounds the crawl.
	ScopePrefix string

	// Timeout is the timeout of one HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of attempts per capture.
	MaxRetries int

	// MaxPages is the page-visit budget per start capture (0 = unlimited).
	MaxPages int

	// Concurrency is the number of in-flight fetches within one crawl.
	Concurrency int

	// Delay is the pause each crawl worker takes after a fetch.
	Delay time.Duration

	// BatchSize is the number of start captures crawled concurrently.
	BatchSize int

	// RequestsPerSecond limits the request rate per archive host.
	// 0 disables rate limiting.
	RequestsPerSecond float64

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// Verbose enables debug log output.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches the current directory, the home directory
	// and the XDG config directory for .clinicscan.
	ConfigFilePath string

	// File holds the settings loaded from the configuration file.
	File *File

	// JSONReport selects JSON output for the scan report.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output for the scan report.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report. Empty means stdout.
	ReportFile string

	// CSVFile is the output path of the clinic CSV export. Empty disables it.
	CSVFile string

	// IncompleteCSVFile is the output path of the CSV holding only records
	// missing a name, address or phone. Empty disables it.
	IncompleteCSVFile string

	// DBDir is the directory of the SQLite database that stores scan runs.
	DBDir string

	// SaveToDB indicates whether scan runs are persisted.
	SaveToDB bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ScopePrefix:       DefaultScopePrefix,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		MaxPages:          DefaultMaxPages,
		Concurrency:       DefaultConcurrency,
		BatchSize:         DefaultBatchSize,
		RequestsPerSecond: DefaultRequestsPerSecond,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for clinicscan.
// On Linux: ~/.local/share/clinicscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for clinicscan.
// On Linux: ~/.config/clinicscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if len(c.StartURLs) == 0 {
		return ErrNoStartURL
	}

	if c.ScopePrefix == "" {
		return ErrNoScopePrefix
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}
