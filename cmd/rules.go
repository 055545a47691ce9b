package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brasserie-group/cost-cli/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage consolidation and unit conversion rules",
}

var rulesApplyCmd = &cobra.Command{
	Use:   "apply <rules.yaml>",
	Short: "Load a rules file and upsert its entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := rules.LoadFile(args[0])
		if err != nil {
			return err
		}
		if err := rules.Apply(ctx, st, f); err != nil {
			return err
		}

		fmt.Printf("Applied %d consolidation and %d conversion rules\n",
			len(f.Consolidations), len(f.Conversions))
		return nil
	},
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <rules.yaml>",
	Short: "Validate a rules file without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := rules.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("OK: %d consolidations, %d conversions\n",
			len(f.Consolidations), len(f.Conversions))
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesApplyCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}
