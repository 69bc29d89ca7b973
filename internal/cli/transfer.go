package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"usalli/internal/domain"
)

func newTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Inspect blocked transfers and issue unlock codes",
	}

	issue := &cobra.Command{
		Use:   "issue-code TRANSFER_ID",
		Short: "Issue an unlock code for a step of a blocked transfer",
		Args:  cobra.ExactArgs(1),
	}
	issue.Flags().Int("step", 0, "Unlock step (1-4); defaults to the transfer's current step")
	issue.RunE = func(cmd *cobra.Command, args []string) error {
		step, _ := cmd.Flags().GetInt("step")
		return withApp(func(ctx context.Context, a *app, out io.Writer, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transfer id %q", args[0])
			}
			if step == 0 {
				t, err := a.transfers.Get(ctx, id)
				if err != nil {
					return err
				}
				if t.Status != domain.TransferStatusBlocked {
					return fmt.Errorf("transfer %s is %s, not blocked", id, t.Status)
				}
				step = t.BlockedStep
			}
			code, err := a.codes.IssueCode(ctx, id, step)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\tstep %d\texpires %s\n", code.Code, code.StepNumber, code.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		})(cmd, args)
	}

	blockReason := &cobra.Command{
		Use:   "block-reason TRANSFER_ID REASON...",
		Short: "Set the reason shown for a blocked transfer",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, out io.Writer, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transfer id %q", args[0])
			}
			reason := strings.Join(args[1:], " ")
			t, err := a.transfers.UpdateTransfer(ctx, id, domain.TransferUpdate{BlockReason: &reason})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\t%s\tstep %d\t%s\n", t.ID, t.Status, t.BlockedStep, reason)
			return nil
		}),
	}

	cmd.AddCommand(issue, blockReason)
	return cmd
}
