package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var productsJSON bool

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List canonical products",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		products, err := st.ListProducts(ctx)
		if err != nil {
			return err
		}

		if productsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(products)
		}

		for _, p := range products {
			flag := ""
			if p.AutoCreated {
				flag = " (auto-created)"
			}
			fmt.Printf("%-36s %-30s %-12s %s%s\n", p.ID, p.Name, p.Category, p.RecipeUnit, flag)
		}
		return nil
	},
}

func init() {
	productsCmd.Flags().BoolVar(&productsJSON, "json", false, "emit products as JSON")
	rootCmd.AddCommand(productsCmd)
}
