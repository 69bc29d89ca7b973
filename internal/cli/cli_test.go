package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usalli/internal/credit"
	"usalli/internal/domain"
	"usalli/internal/ledger"
	"usalli/internal/repository/sqlstore"
	"usalli/internal/repository/sqlstore/sqlstoretest"
	"usalli/internal/transfer"
	"usalli/internal/unlock"
	"usalli/pkg/logger"
)

// useSQLite points bankctl at a fresh SQLite file and returns a second
// store on the same file for setup and assertions.
func useSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := sqlstoretest.DSN(t.TempDir())
	t.Setenv("DATABASE_DRIVER", sqlstore.DriverSQLite)
	t.Setenv("DATABASE_URL", dsn)

	store, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, dsn, sqlstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAccountCommands(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "account", "open", "--holder", "Jane Doe", "--balance", "1000")
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, "Jane Doe", fields[1])
	assert.Equal(t, "1000.00", fields[2])

	out, err = run(t, "account", "balance", fields[0])
	require.NoError(t, err)
	assert.Equal(t, "1000.00\n", out)

	_, err = run(t, "account", "balance", uuid.NewString())
	assert.Error(t, err)

	_, err = run(t, "account", "open", "--holder", "X", "--balance", "abc")
	assert.Error(t, err)
}

func TestAccountOpenWithOwner(t *testing.T) {
	store := useSQLite(t)
	owner := uuid.New()

	out, err := run(t, "account", "open", "--holder", "Jane Doe", "--owner", owner.String())
	require.NoError(t, err)
	id, err := uuid.Parse(strings.Split(strings.TrimSpace(out), "\t")[0])
	require.NoError(t, err)

	acc, err := store.Accounts().FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, acc.OwnedBy(owner))
	assert.False(t, acc.OwnedBy(uuid.New()))

	_, err = run(t, "account", "open", "--holder", "X", "--owner", "nobody")
	assert.Error(t, err)
}

func TestTransferCommands(t *testing.T) {
	store := useSQLite(t)
	ctx := context.Background()
	log := logger.NewNop()

	led := ledger.NewService(store, log)
	codes := unlock.NewRegistry(store, unlock.DefaultConfig(), log)
	engine := transfer.NewEngine(store, led, codes, transfer.DefaultConfig(), log)

	acc, err := led.OpenAccount(ctx, "Jane Doe", decimal.NewFromInt(1000))
	require.NoError(t, err)
	res, err := engine.CreateTransfer(ctx, &transfer.CreateTransferRequest{
		AccountID:         acc.ID,
		Amount:            decimal.NewFromInt(15000),
		AccountHolderName: "Bob",
		AccountNumber:     "123456789",
		RoutingNumber:     "021000021",
	})
	require.NoError(t, err)
	transferID := res.Transfer.ID.String()

	out, err := run(t, "transfer", "issue-code", transferID)
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, "step 1", fields[1])

	verified, err := engine.VerifyStep(ctx, res.Transfer.ID, 1, fields[0])
	require.NoError(t, err)
	assert.True(t, verified.Success)

	out, err = run(t, "transfer", "issue-code", transferID, "--step", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "step 2")

	_, err = run(t, "transfer", "issue-code", transferID, "--step", "9")
	assert.Error(t, err)

	out, err = run(t, "transfer", "block-reason", transferID, "pending", "compliance", "review")
	require.NoError(t, err)
	assert.Contains(t, out, "pending compliance review")

	got, err := engine.Get(ctx, res.Transfer.ID)
	require.NoError(t, err)
	require.NotNil(t, got.BlockReason)
	assert.Equal(t, "pending compliance review", *got.BlockReason)
	assert.Equal(t, 2, got.BlockedStep)
}

func TestCreditCommands(t *testing.T) {
	store := useSQLite(t)
	ctx := context.Background()
	log := logger.NewNop()

	led := ledger.NewService(store, log)
	credits := credit.NewEngine(store, led, log)

	acc, err := led.OpenAccount(ctx, "Jane Doe", decimal.NewFromInt(100))
	require.NoError(t, err)
	approveMe, err := credits.Create(ctx, &credit.CreateCreditRequest{AccountID: acc.ID, Amount: decimal.RequireFromString("50.25")})
	require.NoError(t, err)
	rejectMe, err := credits.Create(ctx, &credit.CreateCreditRequest{AccountID: acc.ID, Amount: decimal.NewFromInt(75)})
	require.NoError(t, err)

	out, err := run(t, "credit", "approve", approveMe.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "approved\tbalance 150.25")

	out, err = run(t, "credit", "reject", rejectMe.ID.String())
	require.NoError(t, err)
	assert.Equal(t, rejectMe.ID.String()+"\trejected\n", out)

	_, err = run(t, "credit", "reject", approveMe.ID.String())
	assert.Error(t, err)

	got, err := credits.Get(ctx, rejectMe.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditRequestStatusRejected, got.Status)
}
