package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/leadfile"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest leads from a JSON, YAML, CSV, or XLSX file",
	Long: `Reads a batch of at most 500 leads and ingests it exactly as the
/ingestLeads endpoint would. JSON files hold either an array of leads or an
object with a "leads" array; YAML files hold a list of leads. CSV and XLSX
files carry a header row, so an export can be fed back in directly.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		entries, err := leadfile.Read(ctx, ingestFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Leads.Ingest(ctx, entries)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "path to a lead batch (.json, .yaml, .csv, .xlsx)")
	_ = ingestCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(ingestCmd)
}
