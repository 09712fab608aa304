package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/clinicscan/internal/config"
	"github.com/nao1215/clinicscan/internal/database"
	"github.com/nao1215/clinicscan/internal/report"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored scan runs",
		Long: `History lists the scan runs stored in the run database, newest first.

With --run, it prints the full report of one run instead, and can export
that run's clinic records to CSV.

Examples:
  # List the last 20 runs
  clinicscan history

  # Show run 3 as Markdown
  clinicscan history --run 3 -m

  # Export the records of run 3
  clinicscan history --run 3 --csv clinics.csv`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64("run", 0,
		"Show the report of the run with this ID")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 = all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output the run report as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the run report as Markdown (mutually exclusive with --json)")
	cmd.Flags().String("csv", "",
		"Write the records of the run to a CSV file")
	cmd.Flags().String("db-dir", "",
		"Directory of the run database (default: XDG data directory)")

	return cmd
}

// historyOptions holds the flag values of the history command.
type historyOptions struct {
	runID    int64
	limit    int
	json     bool
	markdown bool
	csvPath  string
	dbDir    string
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	var opts historyOptions
	var err error

	if opts.runID, err = cmd.Flags().GetInt64("run"); err != nil {
		return err
	}
	if opts.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if opts.csvPath, err = cmd.Flags().GetString("csv"); err != nil {
		return err
	}
	if opts.dbDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false
	db, err := database.Open(opts.dbDir, dbOpts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.runID > 0 {
		return showRun(ctx, db, opts, cmd.OutOrStdout())
	}
	return listRuns(ctx, db, opts.limit, cmd.OutOrStdout())
}

// listRuns prints a table of stored runs.
func listRuns(ctx context.Context, db *database.CrawlDB, limit int, out io.Writer) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No scan runs stored yet. Run 'clinicscan scan' first.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-20s %8s %8s %10s %10s  %s\n",
		"ID", "STARTED", "PAGES", "CLINICS", "INCOMPLETE", "DURATION", "SCOPE")
	for _, run := range runs {
		scope := run.ScopePrefix
		if run.Error != "" {
			scope += " (error: " + run.Error + ")"
		}
		fmt.Fprintf(out, "%-6d %-20s %8d %8d %10d %10s  %s\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.VisitedPages,
			run.Records,
			run.Incomplete,
			run.Duration.Round(time.Second),
			scope,
		)
	}
	return nil
}

// showRun prints the stored report of one run and optionally exports its records.
func showRun(ctx context.Context, db *database.CrawlDB, opts historyOptions, out io.Writer) error {
	scanReport, err := db.GetRun(ctx, opts.runID)
	if err != nil {
		return err
	}

	if opts.csvPath != "" {
		records, err := db.GetRunRecords(ctx, opts.runID)
		if err != nil {
			return err
		}
		n, err := report.WriteCSVFile(opts.csvPath, records)
		if err != nil {
			return fmt.Errorf("failed to export records: %w", err)
		}
		fmt.Fprintf(out, "Wrote %d records of run %d to %s\n", n, opts.runID, opts.csvPath)
		return nil
	}

	cfg := &config.Config{JSONReport: opts.json, MarkdownReport: opts.markdown}
	_, err = newReportWriter(cfg, out).Write(scanReport)
	return err
}
