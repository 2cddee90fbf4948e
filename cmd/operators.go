package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-pipeline/internal/api"
	"github.com/sells-group/lead-pipeline/internal/model"
)

var operatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "Manage operator API access",
}

var operatorsGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Create an operator or give it dev access",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		id, _ := cmd.Flags().GetString("id")
		email, _ := cmd.Flags().GetString("email")
		if id == "" {
			id = uuid.NewString()
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		op, err := st.GetOperator(ctx, id)
		if err != nil {
			return err
		}
		if op == nil {
			op = &model.Operator{ID: id}
		}
		if email != "" {
			op.Email = email
		}
		op.IsDev = true
		if err := st.UpsertOperator(ctx, *op); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Granted dev access to %s\n", op.ID)
		return nil
	},
}

var operatorsRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Remove dev access from an operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		op, err := st.GetOperator(ctx, args[0])
		if err != nil {
			return err
		}
		if op == nil {
			return eris.Errorf("operator %s not found", args[0])
		}
		op.IsDev = false
		if err := st.UpsertOperator(ctx, *op); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked dev access from %s\n", op.ID)
		return nil
	},
}

var operatorsTokenCmd = &cobra.Command{
	Use:   "token <id>",
	Short: "Mint a bearer token for an operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ttlHours, _ := cmd.Flags().GetInt("ttl-hours")
		if ttlHours <= 0 {
			ttlHours = cfg.Auth.OperatorTokenTTL
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		op, err := st.GetOperator(ctx, args[0])
		if err != nil {
			return err
		}
		if op == nil {
			return eris.Errorf("operator %s not found", args[0])
		}

		tok, err := api.IssueOperatorToken(cfg.Auth.OperatorJWTSecret, op.ID,
			time.Duration(ttlHours)*time.Hour, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	operatorsGrantCmd.Flags().String("id", "", "operator id (generated when empty)")
	operatorsGrantCmd.Flags().String("email", "", "operator email")
	operatorsTokenCmd.Flags().Int("ttl-hours", 0, "token lifetime in hours (default from config)")

	operatorsCmd.AddCommand(operatorsGrantCmd, operatorsRevokeCmd, operatorsTokenCmd)
	rootCmd.AddCommand(operatorsCmd)
}
