package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brasserie-group/cost-cli/internal/pipeline"
)

var (
	runAsOf     string
	runLookback int
	runWorkers  int
	runDry      bool
	runJSON     bool
	runProducts []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute costs for every product from imported purchases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := pipeline.Options{
			LookbackDays: runLookback,
			Workers:      runWorkers,
			RecipeUnit:   cfg.Pipeline.RecipeUnit,
			DryRun:       runDry,
			ProductIDs:   runProducts,
		}
		if opts.LookbackDays == 0 {
			opts.LookbackDays = cfg.Pipeline.LookbackDays
		}
		if opts.Workers == 0 {
			opts.Workers = cfg.Pipeline.Workers
		}
		if runAsOf != "" {
			asOf, err := time.ParseInLocation("2006-01-02", runAsOf, time.UTC)
			if err != nil {
				return eris.Wrapf(err, "parse --as-of %q", runAsOf)
			}
			opts.AsOf = asOf
		}

		summary, err := pipeline.New(st).Run(ctx, opts)
		if err != nil {
			return err
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		fmt.Printf("Cost run %s (lookback %dd): %d products, %d computed, %d failed, %d records skipped\n",
			summary.AsOf.Format("2006-01-02"), summary.LookbackDays,
			summary.Products, summary.Computed, summary.Failed, summary.RecordsSkipped)
		for _, o := range summary.Outcomes {
			if o.Error != "" {
				fmt.Printf("  %-30s FAILED: %s\n", o.ProductName, o.Error)
				continue
			}
			fmt.Printf("  %-30s %.4f  %-22s %s\n", o.ProductName, o.UnitCost, o.Strategy, o.Confidence)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runAsOf, "as-of", "", "computation date YYYY-MM-DD (default today)")
	runCmd.Flags().IntVar(&runLookback, "lookback", 0, "lookback window in days (default from config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent products (default from config)")
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "compute but do not persist cost entries")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit the run summary as JSON")
	runCmd.Flags().StringSliceVar(&runProducts, "product", nil, "restrict the run to these product IDs (repeatable)")
	rootCmd.AddCommand(runCmd)
}
