package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/clinicscan/internal/config"
	"github.com/nao1215/clinicscan/internal/database"
	"github.com/nao1215/clinicscan/internal/extract"
	"github.com/nao1215/clinicscan/internal/model"
	"github.com/nao1215/clinicscan/internal/report"
)

const (
	testScope   = "https://site.example/our-clinics/"
	landingPath = "/web/20250708180027/https://site.example/our-clinics/"
	noosaNew    = "/web/20250708180027/https://site.example/our-clinics/region/noosa/"
	noosaOld    = "/web/20240101000000/https://site.example/our-clinics/region/noosa/"
	blogPath    = "/web/20250708180027/https://site.example/blog/"
	findPath    = "/web/20250708180027/https://site.example/our-clinics/region/find/"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clinicPage(email string) string {
	mail := ""
	if email != "" {
		mail = `<a href="mailto:` + email + `">Email us</a>`
	}
	return `<html><head><title>Noosa Clinic | My Site</title></head><body><main>
  <h1>Welcome to Noosa Clinic</h1>
  <p><a href="https://maps.example/">17 Beach Rd Noosa QLD 4567</a></p>
  <p>` + mail + ` <a href="tel:0712345678">07 1234 5678</a></p>
  <p>Our services include</p>
  <ul><li>Heel pain</li><li>Orthotics</li></ul>
</main></body></html>`
}

// newArchiveServer serves a small capture tree: a landing page linking to
// two captures of one clinic page and to an out-of-scope page.
func newArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		landingPath: `<html><head><title>Our Clinics</title></head><body><main><h1>Our Clinics</h1>
			<a href="` + noosaNew + `">Noosa</a>
			<a href="` + noosaOld + `">Noosa (older)</a>
			<a href="` + blogPath + `">Blog</a></main></body></html>`,
		noosaNew: clinicPage("noosa@example.com"),
		noosaOld: clinicPage(""),
		blogPath: `<html><body><h1>Blog</h1></body></html>`,
		findPath: `<html><head><title>Noosa | My Site</title></head><body><main>
  <h1>Find a Clinic</h1>
  <p><a href="https://maps.example/">17 Beach Rd Noosa QLD 4567</a></p>
  <p><a href="tel:0712345678">07 1234 5678</a></p>
</main></body></html>`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page)) //nolint:errcheck
	}))
	t.Cleanup(server.Close)
	return server
}

// newTestConfig returns a config crawling server without rate limiting.
func newTestConfig(t *testing.T, server *httptest.Server) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.StartURLs = []string{server.URL + landingPath}
	cfg.ScopePrefix = testScope
	cfg.RequestsPerSecond = 0
	cfg.MaxRetries = 1
	cfg.Timeout = 5 * time.Second
	cfg.File = &config.File{Hosts: make(map[string]config.HostConfig)}
	cfg.DBDir = t.TempDir()
	cfg.SaveToDB = true
	return cfg
}

// TestNewScanCmd tests the scan command creation.
func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "scan [capture-url...]" {
			t.Errorf("expected use 'scan [capture-url...]', got %q", cmd.Use)
		}
	})

	t.Run("has descriptions", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" || cmd.Long == "" {
			t.Error("expected non-empty descriptions")
		}
	})

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"scope", "s", config.DefaultScopePrefix},
		{"max-pages", "p", "0"},
		{"concurrency", "C", "1"},
		{"delay", "", "0s"},
		{"batch", "b", "2"},
		{"timeout", "t", "10s"},
		{"max-retries", "r", "3"},
		{"rate", "", "2"},
		{"proxy", "", ""},
		{"config", "c", ""},
		{"json", "j", "false"},
		{"markdown", "m", "false"},
		{"output", "o", ""},
		{"csv", "", ""},
		{"incomplete-csv", "", ""},
		{"db-dir", "", ""},
		{"no-save", "", "false"},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestBuildConfig tests building the config from flags and config files.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}
		return path
	}

	t.Run("applies flags", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "{}\n")
		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{
			"-c", path,
			"--max-pages", "50",
			"--concurrency", "4",
			"--delay", "250ms",
			"--batch", "3",
			"--rate", "0.5",
			"--no-save",
			"--csv", "out.csv",
			"-j",
		}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}

		cfg, err := buildConfig(cmd, []string{"https://archive.example/web/1/https://site.example/our-clinics/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxPages != 50 || cfg.Concurrency != 4 || cfg.BatchSize != 3 {
			t.Errorf("unexpected crawl settings: %+v", cfg)
		}
		if cfg.Delay != 250*time.Millisecond {
			t.Errorf("Delay = %v, want 250ms", cfg.Delay)
		}
		if cfg.RequestsPerSecond != 0.5 {
			t.Errorf("RequestsPerSecond = %v, want 0.5", cfg.RequestsPerSecond)
		}
		if cfg.SaveToDB {
			t.Error("expected SaveToDB to be false")
		}
		if cfg.CSVFile != "out.csv" || !cfg.JSONReport {
			t.Errorf("unexpected output settings: csv=%q json=%v", cfg.CSVFile, cfg.JSONReport)
		}
		if len(cfg.StartURLs) != 1 {
			t.Errorf("expected 1 start URL, got %v", cfg.StartURLs)
		}
		if cfg.DBDir == "" {
			t.Error("expected default DBDir")
		}
	})

	t.Run("uses default start URL without arguments", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", writeConfig(t, "{}\n")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(cfg.StartURLs, []string{config.DefaultStartURL}) {
			t.Errorf("StartURLs = %v", cfg.StartURLs)
		}
	})

	t.Run("config file scope applies unless flag given", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, "scope:\n  prefix: \"https://other.example/clinics/\"\n")

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", path}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ScopePrefix != "https://other.example/clinics/" {
			t.Errorf("ScopePrefix = %q, want file value", cfg.ScopePrefix)
		}

		cmd = NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", path, "--scope", testScope}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		cfg, err = buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ScopePrefix != testScope {
			t.Errorf("ScopePrefix = %q, want flag value", cfg.ScopePrefix)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		if err := cmd.ParseFlags([]string{"-c", missing}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		_, err := buildConfig(cmd, nil)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid config file", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", writeConfig(t, "scope: [unclosed\n")}); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		if _, err := buildConfig(cmd, nil); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

// TestRulesFromConfig tests that configured lists replace built-in rules.
func TestRulesFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("nil file keeps defaults", func(t *testing.T) {
		t.Parallel()
		rules := rulesFromConfig(nil)
		if !slices.Equal(rules.ExcludedTitles, []string{"our clinics", "clinics"}) {
			t.Errorf("ExcludedTitles = %v", rules.ExcludedTitles)
		}
	})

	t.Run("overrides non-empty lists", func(t *testing.T) {
		t.Parallel()
		file := &config.File{Rules: config.RulesConfig{
			ExcludedTitles:   []string{"find a clinic"},
			MaxServiceLength: 60,
		}}
		rules := rulesFromConfig(file)
		if !slices.Equal(rules.ExcludedTitles, []string{"find a clinic"}) {
			t.Errorf("ExcludedTitles = %v", rules.ExcludedTitles)
		}
		if rules.MaxServiceLength != 60 {
			t.Errorf("MaxServiceLength = %d, want 60", rules.MaxServiceLength)
		}
		if len(rules.GreetingPrefixes) == 0 {
			t.Error("expected default greeting prefixes to be kept")
		}
	})

	t.Run("overrides content selectors", func(t *testing.T) {
		t.Parallel()
		file := &config.File{Rules: config.RulesConfig{
			Containers:       []string{".clinic"},
			HeadingSelectors: []string{".clinic h2"},
		}}
		rules := rulesFromConfig(file)
		if !slices.Equal(rules.Containers, []string{".clinic"}) {
			t.Errorf("Containers = %v", rules.Containers)
		}
		if !slices.Equal(rules.HeadingSelectors, []string{".clinic h2"}) {
			t.Errorf("HeadingSelectors = %v", rules.HeadingSelectors)
		}

		doc, err := extract.ParseString(`<div class="clinic"><h2>Byron Clinic</h2>
			<ul><li>Heel pain</li></ul></div>`)
		if err != nil {
			t.Fatalf("failed to parse: %v", err)
		}
		ex := extract.NewExtractor(rules)
		if name, _ := ex.Name(doc); name != "Byron Clinic" {
			t.Errorf("Name() = %q, want Byron Clinic", name)
		}
		if got := ex.Services(doc); !slices.Equal(got, []string{"Heel pain"}) {
			t.Errorf("Services() = %v", got)
		}
	})
}

// TestNewScope tests scope construction from the configuration.
func TestNewScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		collection string
		capture    string
		want       bool
	}{
		{"default collection", "", "https://a.example/web/20250101000000/https://site.example/our-clinics/x/", true},
		{"custom collection", "archive", "https://a.example/archive/20250101000000/https://site.example/our-clinics/x/", true},
		{"custom collection rejects default layout", "archive", "https://a.example/web/20250101000000/https://site.example/our-clinics/x/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.NewConfig()
			cfg.ScopePrefix = testScope
			cfg.File = &config.File{Scope: config.ScopeConfig{Collection: tt.collection}}

			if got := newScope(cfg).InScope(tt.capture); got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.capture, got, tt.want)
			}
		})
	}
}

// TestArchiveHost tests host extraction from capture addresses.
func TestArchiveHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"https://web.archive.org/web/2025/https://site.example/", "web.archive.org"},
		{"http://127.0.0.1:8080/web/2025/x", "127.0.0.1"},
		{"://bad", ""},
	}
	for _, tt := range tests {
		if got := archiveHost(tt.input); got != tt.want {
			t.Errorf("archiveHost(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// TestNewFetchClient tests HTTP client construction.
func TestNewFetchClient(t *testing.T) {
	t.Parallel()

	t.Run("uses configured proxy", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.StartURLs = []string{config.DefaultStartURL}
		cfg.ProxyAddress = "127.0.0.1:1080"

		client, err := newFetchClient(cfg, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.ProxyAddress() != "127.0.0.1:1080" {
			t.Errorf("ProxyAddress() = %q", client.ProxyAddress())
		}
	})

	t.Run("rejects invalid proxy", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.ProxyAddress = "not a proxy"

		if _, err := newFetchClient(cfg, quietLogger()); err == nil {
			t.Error("expected error for invalid proxy")
		}
	})

	t.Run("sends host headers", func(t *testing.T) {
		t.Parallel()

		var got http.Header
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<p>ok</p>")) //nolint:errcheck
		}))
		defer server.Close()

		cfg := newTestConfig(t, server)
		cfg.File.Hosts["127.0.0.1"] = config.HostConfig{
			UserAgent: "research-bot/1.0",
			Headers:   map[string]string{"X-Research": "yes"},
		}

		client, err := newFetchClient(cfg, quietLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := client.Fetch(context.Background(), server.URL); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Get("User-Agent") != "research-bot/1.0" {
			t.Errorf("User-Agent = %q", got.Get("User-Agent"))
		}
		if got.Get("X-Research") != "yes" {
			t.Errorf("X-Research = %q", got.Get("X-Research"))
		}
	})
}

// TestRunScan tests a full scan against a local archive.
func TestRunScan(t *testing.T) {
	t.Parallel()

	t.Run("extracts and merges clinic records", func(t *testing.T) {
		t.Parallel()

		server := newArchiveServer(t)
		cfg := newTestConfig(t, server)
		cfg.JSONReport = true
		cfg.CSVFile = filepath.Join(t.TempDir(), "clinics.csv")

		var stdout, status bytes.Buffer
		if err := runScan(context.Background(), cfg, &stdout, &status, quietLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got report.JSONReport
		if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
			t.Fatalf("failed to decode report: %v\n%s", err, stdout.String())
		}
		if got.Report.VisitedPages() != 3 {
			t.Errorf("VisitedPages() = %d, want 3", got.Report.VisitedPages())
		}
		if len(got.Report.Records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(got.Report.Records))
		}
		rec := got.Report.Records[0]
		if rec.Name != "Noosa Clinic" || rec.Email != "noosa@example.com" {
			t.Errorf("unexpected record: %+v", rec)
		}
		if rec.Address != "17 Beach Rd Noosa QLD 4567" || rec.Phone != "07 1234 5678" {
			t.Errorf("unexpected record: %+v", rec)
		}
		if !slices.Equal(rec.Services, []string{"Heel pain", "Orthotics"}) {
			t.Errorf("Services = %v", rec.Services)
		}
		if !slices.Contains(got.Candidates, "https://site.example/our-clinics/region/noosa") {
			t.Errorf("expected noosa entity candidate, got %v", got.Candidates)
		}
		if slices.Contains(got.Discovered, "https://site.example/blog") {
			t.Error("out-of-scope page should not be discovered")
		}

		if !strings.Contains(status.String(), "1 clinics found") {
			t.Errorf("unexpected status output: %q", status.String())
		}

		data, err := os.ReadFile(cfg.CSVFile)
		if err != nil {
			t.Fatalf("failed to read CSV: %v", err)
		}
		if !strings.Contains(string(data), "Heel pain; Orthotics") {
			t.Errorf("unexpected CSV:\n%s", data)
		}
	})

	t.Run("stores the run", func(t *testing.T) {
		t.Parallel()

		server := newArchiveServer(t)
		cfg := newTestConfig(t, server)

		if err := runScan(context.Background(), cfg, io.Discard, io.Discard, quietLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		latest, err := db.LatestRun(context.Background())
		if err != nil {
			t.Fatalf("LatestRun failed: %v", err)
		}
		if latest == nil || latest.Records != 1 || latest.VisitedPages != 3 {
			t.Errorf("LatestRun = %+v", latest)
		}
	})

	t.Run("page budget stops the crawl", func(t *testing.T) {
		t.Parallel()

		server := newArchiveServer(t)
		cfg := newTestConfig(t, server)
		cfg.SaveToDB = false
		cfg.MaxPages = 1

		var stdout bytes.Buffer
		if err := runScan(context.Background(), cfg, &stdout, io.Discard, quietLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout.String(), "Page budget reached") {
			t.Errorf("expected budget status in report:\n%s", stdout.String())
		}
	})

	t.Run("fails when no crawl produced results", func(t *testing.T) {
		t.Parallel()

		server := newArchiveServer(t)
		cfg := newTestConfig(t, server)
		cfg.SaveToDB = false
		cfg.StartURLs = []string{"ftp://not-a-capture"}

		if err := runScan(context.Background(), cfg, io.Discard, io.Discard, quietLogger()); err == nil {
			t.Error("expected error for invalid start capture")
		}
	})
}

// TestOutputReport tests report output in each format.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	newReport := func() *model.ScanReport {
		r := model.NewScanReport([]string{"https://archive.example" + landingPath}, testScope)
		r.Records = []*model.Record{
			model.NewRecord("https://site.example/our-clinics/region/noosa", "Noosa Clinic",
				"17 Beach Rd Noosa QLD 4567", "", "07 1234 5678", []string{"Heel pain"}, 20250708180027),
		}
		return r
	}

	tests := []struct {
		name     string
		json     bool
		markdown bool
		want     string
	}{
		{"text", false, false, "CLINICSCAN REPORT"},
		{"json", true, false, `"version"`},
		{"markdown", false, true, "# Clinicscan Report"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" to stdout", func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.JSONReport = tt.json
			cfg.MarkdownReport = tt.markdown

			var buf bytes.Buffer
			if err := outputReport(cfg, newReport(), &buf); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output:\n%s", tt.want, buf.String())
			}
		})
	}

	t.Run("to file in new directory", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "run.md")

		var buf bytes.Buffer
		if err := outputReport(cfg, newReport(), &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.Len() != 0 {
			t.Error("expected nothing on stdout")
		}

		info, err := os.Stat(cfg.ReportFile)
		if err != nil {
			t.Fatalf("expected report file: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected permissions 0600, got %o", info.Mode().Perm())
		}
	})
}
