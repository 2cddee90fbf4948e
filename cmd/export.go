package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/leads"
	"github.com/sells-group/lead-pipeline/internal/model"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		source, _ := cmd.Flags().GetString("source")
		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")
		markQueued, _ := cmd.Flags().GetBool("mark-queued")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")

		env, err := initEnv(ctx, "export")
		if err != nil {
			return err
		}
		defer env.Close()

		exp, err := env.Leads.Export(ctx, leads.ExportRequest{
			Status:     model.Status(status),
			Source:     model.Source(source),
			State:      state,
			Limit:      limit,
			MarkQueued: markQueued,
			Format:     format,
		})
		if err != nil {
			return err
		}

		if out == "" {
			out = exp.Filename
		}
		if err := os.WriteFile(out, exp.Body, 0o644); err != nil {
			return eris.Wrap(err, "export: write file")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d leads to %s (%d queued)\n", exp.Rows, out, exp.Queued)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.String("status", "new", "lead status to export")
	f.String("source", "", "filter by source")
	f.String("state", "", "filter by state")
	f.Int("limit", leads.DefaultExportMax, "maximum rows (capped at 5000)")
	f.Bool("mark-queued", false, "move exported leads to queued")
	f.String("format", leads.FormatCSV, "output format: csv or xlsx")
	f.StringP("out", "o", "", "output path (default leads-<millis>.<format>)")
	rootCmd.AddCommand(exportCmd)
}
