package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brasserie-group/cost-cli/internal/resolve"
)

var (
	historyFrom string
	historyTo   string
	historyJSON bool
)

var historyCmd = &cobra.Command{
	Use:   "history <product-name>",
	Short: "Show the cost history for a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		product, err := st.FindProductByNormalizedName(ctx, resolve.NormalizeName(args[0]))
		if err != nil {
			return err
		}
		if product == nil {
			return eris.Errorf("no product named %q", args[0])
		}

		to := time.Now().UTC()
		from := to.AddDate(-1, 0, 0)
		if historyFrom != "" {
			from, err = time.ParseInLocation("2006-01-02", historyFrom, time.UTC)
			if err != nil {
				return eris.Wrapf(err, "parse --from %q", historyFrom)
			}
		}
		if historyTo != "" {
			to, err = time.ParseInLocation("2006-01-02", historyTo, time.UTC)
			if err != nil {
				return eris.Wrapf(err, "parse --to %q", historyTo)
			}
		}

		entries, err := st.ListCostHistory(ctx, product.ID, from, to)
		if err != nil {
			return err
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		fmt.Printf("%s (%s), %d entries\n", product.Name, product.RecipeUnit, len(entries))
		for _, e := range entries {
			fmt.Printf("  %s  %.4f/%s  %-22s %-7s n=%d\n",
				e.AsOfDate.Format("2006-01-02"), e.UnitCost, product.RecipeUnit,
				e.Strategy, e.Confidence, e.PurchaseCount)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFrom, "from", "", "start date YYYY-MM-DD (default one year ago)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "end date YYYY-MM-DD (default today)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "emit entries as JSON")
	rootCmd.AddCommand(historyCmd)
}
