package main

import (
	"github.com/spf13/cobra"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove leads sharing an email, keeping the earliest",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "dedupe")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Dedupe.Run(ctx)
		if err != nil {
			return err
		}
		env.Leads.InvalidateStats(ctx)
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}
