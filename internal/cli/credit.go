package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"usalli/internal/domain"
)

func newCreditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Decide credit requests",
	}
	cmd.AddCommand(
		decisionCmd("approve", "Approve a credit request and credit the account", domain.CreditRequestStatusApproved),
		decisionCmd("reject", "Reject a credit request", domain.CreditRequestStatusRejected),
	)
	return cmd
}

func decisionCmd(use, short string, status domain.CreditRequestStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " REQUEST_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, out io.Writer, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid credit request id %q", args[0])
			}
			res, err := a.credits.UpdateStatus(ctx, id, status)
			if err != nil {
				return err
			}
			if res.Account != nil {
				fmt.Fprintf(out, "%s\t%s\tbalance %s\n", res.Request.ID, res.Request.Status, res.Account.Balance.StringFixed(2))
				return nil
			}
			fmt.Fprintf(out, "%s\t%s\n", res.Request.ID, res.Request.Status)
			return nil
		}),
	}
}
