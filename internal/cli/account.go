package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"usalli/internal/domain"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Open accounts and read balances",
	}

	open := &cobra.Command{
		Use:   "open",
		Short: "Open an account with an opening balance",
		Args:  cobra.NoArgs,
	}
	open.Flags().String("holder", "", "Account holder name")
	open.Flags().String("balance", "0", "Opening balance")
	open.Flags().String("owner", "", "User ID of the customer who owns the account")
	_ = open.MarkFlagRequired("holder")
	open.RunE = func(cmd *cobra.Command, args []string) error {
		holder, _ := cmd.Flags().GetString("holder")
		rawBalance, _ := cmd.Flags().GetString("balance")
		rawOwner, _ := cmd.Flags().GetString("owner")
		balance, err := decimal.NewFromString(rawBalance)
		if err != nil {
			return fmt.Errorf("invalid balance %q: %w", rawBalance, err)
		}
		var owner uuid.UUID
		if rawOwner != "" {
			if owner, err = uuid.Parse(rawOwner); err != nil {
				return fmt.Errorf("invalid owner %q", rawOwner)
			}
		}
		return withApp(func(ctx context.Context, a *app, out io.Writer, _ []string) error {
			var acc *domain.Account
			var err error
			if rawOwner != "" {
				acc, err = a.ledger.OpenAccountFor(ctx, owner, holder, balance)
			} else {
				acc, err = a.ledger.OpenAccount(ctx, holder, balance)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", acc.ID, acc.HolderName, acc.Balance.StringFixed(2))
			return nil
		})(cmd, args)
	}

	balance := &cobra.Command{
		Use:   "balance ACCOUNT_ID",
		Short: "Print an account's balance",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, out io.Writer, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			bal, err := a.ledger.GetBalance(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, bal.StringFixed(2))
			return nil
		}),
	}

	cmd.AddCommand(open, balance)
	return cmd
}
