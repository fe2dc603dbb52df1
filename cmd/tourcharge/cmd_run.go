package main

import (
	"fmt"

	"tourcharge/internal/batch"
	"tourcharge/internal/store"
	"tourcharge/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runCmd processes a CSV of departures into submitted expense forms.
var runCmd = &cobra.Command{
	Use:   "run [entries.csv]",
	Short: "Process a CSV of tour departures into submitted charges",
	Long: `Reads tour departures from a CSV export, resolves each tour code to its
program code, fills and submits the charge form, and records every outcome
in the run history and a results CSV.

A failed entry is recorded and skipped; the run continues. Interrupting
with Ctrl+C finishes the entry in flight, then stops and saves.

Examples:
  tourcharge run entries.csv
  tourcharge run entries.csv --start 20 --limit 10
  tourcharge run entries.csv --headless=false --plain`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	runStart    int
	runLimit    int
	runHeadless bool
	runPlain    bool
)

func init() {
	runCmd.Flags().IntVar(&runStart, "start", 0, "Entry offset to start from (overrides config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Maximum entries to process, 0 means all (overrides config)")
	runCmd.Flags().BoolVar(&runHeadless, "headless", true, "Run the browser headless")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Line-per-entry output instead of the progress screen")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := *cfg
	if cmd.Flags().Changed("start") {
		c.Batch.Start = runStart
	}
	if cmd.Flags().Changed("limit") {
		c.Batch.Limit = runLimit
	}
	if cmd.Flags().Changed("headless") {
		c.Browser.Headless = runHeadless
	}

	entries, err := store.ReadEntries(args[0])
	if err != nil {
		return err
	}
	window := batch.Window(entries, c.Batch.Start, c.Batch.Limit)
	if len(window) == 0 {
		return fmt.Errorf("no entries to process in %s (start %d, limit %d)",
			args[0], c.Batch.Start, c.Batch.Limit)
	}

	db, err := store.Open(c.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer db.Close()
	results := store.NewResultsCSV(c.Store.ResultsDir)

	drv, err := newDriver(c)
	if err != nil {
		return err
	}
	o := batch.New(c, drv, db, results)

	ctx, cancel := signalContext()
	defer cancel()

	if err := o.Session().Preflight(ctx); err != nil {
		return err
	}

	logger.Info("starting run",
		zap.String("source", args[0]),
		zap.Int("entries", len(window)))

	var result *types.BatchResult
	if runPlain {
		o.OnResult(func(done, total int, res types.Result) {
			fmt.Printf("[%d/%d] %s\n", done, total, entryLine(res))
		})
		result, err = o.Run(ctx, entries)
	} else {
		result, err = runWithProgress(ctx, cancel, o, entries, len(window))
	}
	if result != nil {
		fmt.Print(renderRunSummary(result, results.LastPath()))
	}
	return err
}
