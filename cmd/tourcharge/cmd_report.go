package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tourcharge/internal/store"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// reportCmd renders run history from the results database.
var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show recorded runs and their results",
	Long: `Without arguments, lists recent runs. With a run id, shows that run's
per-entry results.

Examples:
  tourcharge report
  tourcharge report 6f1b0c9e-8d2a-4f3e-9c41-2f6a7b8c9d0e`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

var reportLimit int

func init() {
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Maximum runs to list")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	db, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	var md string
	if len(args) == 0 {
		md, err = runsMarkdown(ctx, db)
	} else {
		md, err = runMarkdown(ctx, db, args[0])
	}
	if err != nil {
		return err
	}

	fmt.Print(renderMarkdown(md))
	return nil
}

func runsMarkdown(ctx context.Context, db *store.DB) (string, error) {
	runs, err := db.Runs(ctx, reportLimit)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "No runs recorded yet.\n", nil
	}

	var b strings.Builder
	b.WriteString("# Run history\n\n")
	b.WriteString("| Run | Started | Duration | Total | Successful | Failed |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %d |\n",
			r.RunID,
			r.Started.Format("2006-01-02 15:04"),
			r.Finished.Sub(r.Started).Round(time.Second),
			r.Total, r.Successful, r.Failed)
	}
	return b.String(), nil
}

func runMarkdown(ctx context.Context, db *store.DB, runID string) (string, error) {
	run, err := db.Run(ctx, runID)
	if err != nil {
		return "", err
	}
	if run == nil {
		return "", fmt.Errorf("no such run: %s", runID)
	}
	results, err := db.RunResults(ctx, runID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", run.RunID)
	fmt.Fprintf(&b, "Started %s, finished %s: **%d/%d successful**.\n\n",
		run.Started.Format("2006-01-02 15:04:05"),
		run.Finished.Format("15:04:05"),
		run.Successful, run.Total)
	b.WriteString("| Tour Code | Program | Status | Expense No | Reason |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range results {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.TourCode, r.ProgramCode, r.Status, r.ConfirmationID, r.Reason)
	}
	return b.String(), nil
}

// renderMarkdown pretty-prints markdown for the terminal, falling back to
// the raw text when the renderer is unavailable.
func renderMarkdown(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}
