package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [id...]",
	Short: "Run a WHOIS and email verification pass",
	Long:  "Enriches the given lead ids, or up to --limit new leads without a verification result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Enrich.Run(ctx, enrich.Request{IDs: args, Limit: limit})
		if err != nil {
			return err
		}
		env.Leads.InvalidateStats(ctx)
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	enrichCmd.Flags().Int("limit", enrich.MaxLeads, "maximum leads to select (max 100)")
	rootCmd.AddCommand(enrichCmd)
}
