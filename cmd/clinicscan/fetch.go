package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/clinicscan/internal/capture"
	"github.com/nao1215/clinicscan/internal/config"
	"github.com/nao1215/clinicscan/internal/extract"
	"github.com/nao1215/clinicscan/internal/fetch"
	"github.com/nao1215/clinicscan/internal/model"
)

// noTitle is printed when a document has neither a title nor an h1.
const noTitle = "(no title found)"

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <capture-url>",
		Short: "Fetch a single capture and show what would be extracted",
		Long: `Fetch downloads one archived page and prints its capture details,
its title and, when the page looks like a clinic page, the extracted record.

This is useful to check the extraction rules against one page before
running a full scan.

Examples:
  # Show the title and record of one capture
  clinicscan fetch https://web.archive.org/web/20250708180027/https://www.myfootdr.com.au/our-clinics/

  # Also save the raw HTML
  clinicscan fetch --out page.html <capture-url>

The extraction rules, the scope collection and the archive host settings
are read from the same configuration file as scan.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetchCmd,
	}

	cmd.Flags().StringP("out", "O", "",
		"Save the raw HTML to the given file")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP attempt")
	cmd.Flags().IntP("max-retries", "r", config.DefaultMaxRetries,
		"Number of attempts")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with the request")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g. 127.0.0.1:1080)")
	cmd.Flags().StringP("config", "c", "",
		"Path to config file (default: .clinicscan in current or home directory)")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	outPath, err := flags.GetString("out")
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	cfg.StartURLs = args
	cfg.RequestsPerSecond = 0
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return err
	}
	if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return err
	}
	if cfg.File, err = loadConfigFile(cfg.ConfigFilePath); err != nil {
		return err
	}

	client, err := newFetchClient(cfg, setupLogger(cmd))
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return fetchPage(cmd.Context(), cfg, client, args[0], outPath, cmd.OutOrStdout())
}

// fetchPage fetches addr and prints its details to out, extracting with
// the rules and scope collection of cfg.
func fetchPage(ctx context.Context, cfg *config.Config, client *fetch.Client, addr, outPath string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	resp, err := client.Get(ctx, addr)
	if err != nil {
		return err
	}

	if outPath != "" {
		f, err := createReportFile(outPath)
		if err != nil {
			return err
		}
		_, werr := f.Write(resp.Body)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return fmt.Errorf("failed to save HTML: %w", werr)
		}
	}

	c := newScope(cfg).Parse(addr)
	source := addr
	if c.HasOriginal {
		source = capture.CanonicalOriginal(c.Original)
	}
	fmt.Fprintf(out, "URL:          %s\n", resp.URL)
	fmt.Fprintf(out, "Status:       %d\n", resp.StatusCode)
	fmt.Fprintf(out, "Content-Type: %s\n", orNone(resp.ContentType))
	if c.HasTimestamp {
		fmt.Fprintf(out, "Captured:     %d\n", c.Timestamp)
	}
	if c.HasOriginal {
		fmt.Fprintf(out, "Original:     %s\n", source)
	}
	fmt.Fprintf(out, "Size:         %d bytes\n", len(resp.Body))
	if outPath != "" {
		fmt.Fprintf(out, "Saved:        %s\n", outPath)
	}

	if !model.IsHTML(resp.ContentType) {
		fmt.Fprintln(out, "Title:        "+noTitle)
		return nil
	}

	doc, err := extract.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	title := doc.Title()
	if title == "" {
		title = noTitle
	}
	fmt.Fprintf(out, "Title:        %s\n", title)

	rec, ok := extract.NewExtractor(rulesFromConfig(cfg.File)).ExtractRecord(doc, source, c.Timestamp)
	if !ok {
		fmt.Fprintln(out, "Clinic page:  no")
		return nil
	}
	fmt.Fprintln(out, "Clinic page:  yes")
	fmt.Fprintf(out, "  Name:       %s\n", orNone(rec.Name))
	fmt.Fprintf(out, "  Address:    %s\n", orNone(rec.Address))
	fmt.Fprintf(out, "  Email:      %s\n", orNone(rec.Email))
	fmt.Fprintf(out, "  Phone:      %s\n", orNone(rec.Phone))
	fmt.Fprintf(out, "  Services:   %s\n", orNone(strings.Join(rec.Services, "; ")))
	return nil
}

// orNone returns s, or "-" when s is empty.
func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
