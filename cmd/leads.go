package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/leads"
	"github.com/sells-group/lead-pipeline/internal/model"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Query and update stored leads",
}

// -- leads list --

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		status, _ := f.GetString("status")
		source, _ := f.GetString("source")
		state, _ := f.GetString("state")
		niche, _ := f.GetString("niche")
		from, _ := f.GetString("from")
		to, _ := f.GetString("to")
		pageSize, _ := f.GetInt("page-size")
		after, _ := f.GetString("after")
		asJSON, _ := f.GetBool("json")

		env, err := initEnv(ctx, "leads")
		if err != nil {
			return err
		}
		defer env.Close()

		page, err := env.Leads.List(ctx, leads.ListRequest{
			Status:     model.Status(status),
			Source:     model.Source(source),
			State:      state,
			Niche:      niche,
			DateFrom:   from,
			DateTo:     to,
			PageSize:   pageSize,
			StartAfter: after,
		})
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), page)
		}
		if len(page.Leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeadsList(cmd.OutOrStdout(), page)
		return nil
	},
}

func formatLeadsList(w io.Writer, page *leads.ListResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tSOURCE\tSTATUS\tSTATE\tCREATED")
	for _, l := range page.Leads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.Email, l.Source, l.Status, l.State, l.CreatedAt.UTC().Format(time.RFC3339))
	}
	_ = tw.Flush()
	if page.HasMore && page.NextCursor != nil {
		fmt.Fprintf(w, "\nMore leads available: --after %s\n", *page.NextCursor)
	}
}

// -- leads stats --

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ingestion and funnel statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		days, _ := cmd.Flags().GetInt("days")

		env, err := initEnv(ctx, "leads")
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Leads.Stats(ctx, days)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

// -- leads status --

var leadsStatusCmd = &cobra.Command{
	Use:   "status <id>...",
	Short: "Set the outreach status of one or more leads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		status, _ := cmd.Flags().GetString("status")
		sentAt, _ := cmd.Flags().GetString("sent-at")

		env, err := initEnv(ctx, "leads")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Leads.UpdateStatus(ctx, leads.StatusRequest{
			IDs:            args,
			Status:         model.Status(status),
			OutreachSentAt: sentAt,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	lf := leadsListCmd.Flags()
	lf.String("status", "", "filter by status")
	lf.String("source", "", "filter by source")
	lf.String("state", "", "filter by state")
	lf.String("niche", "", "filter by niche")
	lf.String("from", "", "created on or after (RFC3339 or YYYY-MM-DD)")
	lf.String("to", "", "created on or before (RFC3339 or YYYY-MM-DD)")
	lf.Int("page-size", leads.DefaultPageSize, "page size (max 200)")
	lf.String("after", "", "cursor: id of the last lead of the previous page")
	lf.Bool("json", false, "print JSON instead of a table")

	leadsStatsCmd.Flags().Int("days", leads.DefaultStatsDays, "lookback window in days (max 90)")

	leadsStatusCmd.Flags().String("status", "", "new status")
	leadsStatusCmd.Flags().String("sent-at", "", "outreach sent time (RFC3339), used with --status sent")
	_ = leadsStatusCmd.MarkFlagRequired("status")

	leadsCmd.AddCommand(leadsListCmd, leadsStatsCmd, leadsStatusCmd)
	rootCmd.AddCommand(leadsCmd)
}
