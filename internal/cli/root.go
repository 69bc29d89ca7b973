// Package cli implements bankctl, the operator tool for accounts, unlock
// codes and credit decisions.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"usalli/internal/credit"
	"usalli/internal/ledger"
	"usalli/internal/repository/sqlstore"
	"usalli/internal/transfer"
	"usalli/internal/unlock"
	"usalli/pkg/config"
	"usalli/pkg/logger"
)

// NewRootCmd builds the bankctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bankctl",
		Short: "Operate the bank core from the command line",
		Long: `bankctl talks to the bank database directly, using the same
DATABASE_DRIVER and DATABASE_URL settings as the server.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Log engine activity to stdout")

	root.AddCommand(newAccountCmd())
	root.AddCommand(newTransferCmd())
	root.AddCommand(newCreditCmd())
	return root
}

// Execute runs bankctl with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

type app struct {
	store     *sqlstore.Store
	ledger    *ledger.Service
	codes     *unlock.Registry
	transfers *transfer.Engine
	credits   *credit.Engine
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	level := "error"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	log := logger.NewWithLevel("bankctl", level)

	store, err := sqlstore.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.URL, sqlstore.Options{})
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == sqlstore.DriverSQLite {
		if err := store.Migrate(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	led := ledger.NewService(store, log)
	codes := unlock.NewRegistry(store, unlock.Config{
		CodeTTL:         cfg.Unlock.CodeTTL,
		EnforceExpiry:   cfg.Unlock.EnforceExpiry,
		RevokeOnReissue: cfg.Unlock.RevokeOnReissue,
	}, log)

	return &app{
		store:     store,
		ledger:    led,
		codes:     codes,
		transfers: transfer.NewEngine(store, led, codes, transfer.Config{BlockThreshold: cfg.Transfer.BlockThreshold}, log),
		credits:   credit.NewEngine(store, led, log),
	}, nil
}

// withApp opens the store for one command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.store.Close()
		return fn(cmd.Context(), a, cmd.OutOrStdout(), args)
	}
}
