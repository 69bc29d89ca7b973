package transfer_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"usalli/internal/domain"
	"usalli/internal/ledger"
	"usalli/internal/repository/sqlstore"
	"usalli/internal/repository/sqlstore/sqlstoretest"
	"usalli/internal/transfer"
	"usalli/internal/txn"
	"usalli/internal/unlock"
	"usalli/pkg/errors"
	"usalli/pkg/logger"
)

type fixture struct {
	store  *sqlstore.Store
	ledger *ledger.Service
	codes  *unlock.Registry
	engine *transfer.Engine
}

func newFixture(t *testing.T) *fixture {
	store := sqlstoretest.New(t)
	log := logger.NewNop()
	led := ledger.NewService(store, log)
	codes := unlock.NewRegistry(store, unlock.DefaultConfig(), log)
	return &fixture{
		store:  store,
		ledger: led,
		codes:  codes,
		engine: transfer.NewEngine(store, led, codes, transfer.DefaultConfig(), log),
	}
}

func (f *fixture) openAccount(t *testing.T, balance string) *domain.Account {
	acc, err := f.ledger.OpenAccount(context.Background(), "Jane Doe", decimal.RequireFromString(balance))
	require.NoError(t, err)
	return acc
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	b, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func request(accountID uuid.UUID, amount string) *transfer.CreateTransferRequest {
	return &transfer.CreateTransferRequest{
		AccountID:         accountID,
		Amount:            decimal.RequireFromString(amount),
		AccountHolderName: "Bob Smith",
		AccountNumber:     "000123456789",
		RoutingNumber:     "021000021",
		Reason:            "Invoice 42",
	}
}

func TestCreateTransfer_BlockingRule(t *testing.T) {
	cases := []struct {
		amount      string
		wantStatus  domain.TransferStatus
		wantStep    int
		wantBalance string
	}{
		{"500.00", domain.TransferStatusCompleted, 0, "500.00"},
		{"10000.00", domain.TransferStatusCompleted, 0, "-9000.00"},
		{"10000.01", domain.TransferStatusBlocked, 1, "1000.00"},
		{"15000.00", domain.TransferStatusBlocked, 1, "1000.00"},
	}

	for _, tc := range cases {
		t.Run(tc.amount, func(t *testing.T) {
			f := newFixture(t)
			acc := f.openAccount(t, "1000.00")

			res, err := f.engine.CreateTransfer(context.Background(), request(acc.ID, tc.amount))
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, res.Transfer.Status)
			assert.Equal(t, tc.wantStep, res.Transfer.BlockedStep)
			assert.True(t, res.Account.Balance.Equal(decimal.RequireFromString(tc.wantBalance)), res.Account.Balance.String())
			assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString(tc.wantBalance)))

			stored, err := f.engine.Get(context.Background(), res.Transfer.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, stored.Status)
		})
	}
}

func TestCreateTransfer_CentAmounts(t *testing.T) {
	f := newFixture(t)
	acc := f.openAccount(t, "1000.10")
	ctx := context.Background()

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "0.20"))
	require.NoError(t, err)
	assert.Equal(t, "999.90", res.Account.Balance.StringFixed(2))
	assert.True(t, res.Account.Balance.Equal(decimal.RequireFromString("999.90")), res.Account.Balance.String())

	res, err = f.engine.CreateTransfer(ctx, request(acc.ID, "0.70"))
	require.NoError(t, err)
	assert.True(t, res.Account.Balance.Equal(decimal.RequireFromString("999.20")), res.Account.Balance.String())
	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("999.20")))
}

func TestCreateTransfer_Validation(t *testing.T) {
	f := newFixture(t)
	acc := f.openAccount(t, "1000.00")
	ctx := context.Background()

	_, err := f.engine.CreateTransfer(ctx, request(acc.ID, "0"))
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	req := request(acc.ID, "10")
	req.RoutingNumber = "  "
	_, err = f.engine.CreateTransfer(ctx, req)
	assert.ErrorIs(t, err, errors.ErrMissingRecipient)

	_, err = f.engine.CreateTransfer(ctx, request(uuid.New(), "10"))
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)

	list, err := f.engine.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEndToEndBlockedTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "15000.00"))
	require.NoError(t, err)
	tr := res.Transfer
	assert.Equal(t, domain.TransferStatusBlocked, tr.Status)
	assert.Equal(t, 1, tr.BlockedStep)
	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("1000.00")))

	var lastCode string
	for step := 1; step <= domain.MaxUnlockStep; step++ {
		code, err := f.codes.IssueCode(ctx, tr.ID, step)
		require.NoError(t, err)
		lastCode = code.Code

		out, err := f.engine.VerifyStep(ctx, tr.ID, step, code.Code)
		require.NoError(t, err)
		require.True(t, out.Success, "step %d", step)
		require.NotNil(t, out.Account)

		got, err := f.engine.Get(ctx, tr.ID)
		require.NoError(t, err)
		if step < domain.MaxUnlockStep {
			assert.Equal(t, domain.TransferStatusBlocked, got.Status)
			assert.Equal(t, step+1, got.BlockedStep)
			assert.True(t, out.Account.Balance.Equal(decimal.RequireFromString("1000.00")))
		} else {
			assert.Equal(t, domain.TransferStatusCompleted, got.Status)
			assert.Equal(t, 0, got.BlockedStep)
			assert.NotNil(t, got.CompletedAt)
			assert.True(t, out.Account.Balance.Equal(decimal.RequireFromString("-14000.00")), out.Account.Balance.String())
		}
	}

	// Replaying the final code must not debit twice.
	out, err := f.engine.VerifyStep(ctx, tr.ID, domain.MaxUnlockStep, lastCode)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Nil(t, out.Account)
	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("-14000.00")))

	entries, err := f.ledger.Entries(ctx, acc.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "opening credit plus one debit")
}

func TestVerifyStep_NegativeOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "20000"))
	require.NoError(t, err)
	id := res.Transfer.ID

	step1, err := f.codes.IssueCode(ctx, id, 1)
	require.NoError(t, err)
	step2, err := f.codes.IssueCode(ctx, id, 2)
	require.NoError(t, err)

	out, err := f.engine.VerifyStep(ctx, id, 1, "WRONG1")
	require.NoError(t, err)
	assert.False(t, out.Success, "wrong code")

	out, err = f.engine.VerifyStep(ctx, id, 2, step2.Code)
	require.NoError(t, err)
	assert.False(t, out.Success, "step mismatch")

	out, err = f.engine.VerifyStep(ctx, id, 7, step1.Code)
	require.NoError(t, err)
	assert.False(t, out.Success, "out of range step")

	got, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.BlockedStep)

	// The step 2 code was not consumed by the mismatched attempt.
	out, err = f.engine.VerifyStep(ctx, id, 1, step1.Code)
	require.NoError(t, err)
	require.True(t, out.Success)
	out, err = f.engine.VerifyStep(ctx, id, 2, step2.Code)
	require.NoError(t, err)
	assert.True(t, out.Success)

	_, err = f.engine.VerifyStep(ctx, uuid.New(), 1, step1.Code)
	assert.ErrorIs(t, err, errors.ErrTransferNotFound)

	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("1000.00")))
}

func TestVerifyStep_CompletedTransferRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "100"))
	require.NoError(t, err)

	code, err := f.codes.IssueCode(ctx, res.Transfer.ID, 1)
	require.NoError(t, err)

	out, err := f.engine.VerifyStep(ctx, res.Transfer.ID, 1, code.Code)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("900")))
}

func TestVerifyStep_ConcurrentSameCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "15000"))
	require.NoError(t, err)
	id := res.Transfer.ID

	// Walk to the final step so a double success would show as a double debit.
	for step := 1; step < domain.MaxUnlockStep; step++ {
		code, err := f.codes.IssueCode(ctx, id, step)
		require.NoError(t, err)
		out, err := f.engine.VerifyStep(ctx, id, step, code.Code)
		require.NoError(t, err)
		require.True(t, out.Success)
	}

	code, err := f.codes.IssueCode(ctx, id, domain.MaxUnlockStep)
	require.NoError(t, err)

	const attempts = 12
	var successes int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.engine.VerifyStep(ctx, id, domain.MaxUnlockStep, code.Code)
			if assert.NoError(t, err) && out.Success {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("-14000")))
}

func TestVerifyStep_TwoLiveCodesAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "15000"))
	require.NoError(t, err)
	id := res.Transfer.ID

	a, err := f.codes.IssueCode(ctx, id, 1)
	require.NoError(t, err)
	b, err := f.codes.IssueCode(ctx, id, 1)
	require.NoError(t, err)

	var successes int32
	var wg sync.WaitGroup
	for _, c := range []string{a.Code, b.Code} {
		wg.Add(1)
		go func(c string) {
			defer wg.Done()
			out, err := f.engine.VerifyStep(ctx, id, 1, c)
			if assert.NoError(t, err) && out.Success {
				atomic.AddInt32(&successes, 1)
			}
		}(c)
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes)
	got, err := f.engine.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.BlockedStep)
}

func TestCreateTransfer_ConcurrentImmediate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateTransfer(ctx, request(acc.ID, "25.50"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("490")), f.balance(t, acc.ID).String())

	list, err := f.engine.ListByAccount(ctx, acc.ID, 100, 0)
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestUpdateTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	res, err := f.engine.CreateTransfer(ctx, request(acc.ID, "15000"))
	require.NoError(t, err)

	reason := "Held for manual review"
	updated, err := f.engine.UpdateTransfer(ctx, res.Transfer.ID, domain.TransferUpdate{BlockReason: &reason})
	require.NoError(t, err)
	require.NotNil(t, updated.BlockReason)
	assert.Equal(t, reason, *updated.BlockReason)
	assert.Equal(t, domain.TransferStatusBlocked, updated.Status)
	assert.Equal(t, 1, updated.BlockedStep)

	_, err = f.engine.UpdateTransfer(ctx, res.Transfer.ID, domain.TransferUpdate{})
	assert.ErrorIs(t, err, errors.ErrEmptyUpdate)

	_, err = f.engine.UpdateTransfer(ctx, uuid.New(), domain.TransferUpdate{BlockReason: &reason})
	assert.ErrorIs(t, err, errors.ErrTransferNotFound)

	assert.True(t, f.balance(t, acc.ID).Equal(decimal.RequireFromString("1000")))
}

func TestOutboxEventsWrittenWithTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	_, err := f.engine.CreateTransfer(ctx, request(acc.ID, "100"))
	require.NoError(t, err)
	_, err = f.engine.CreateTransfer(ctx, request(acc.ID, "20000"))
	require.NoError(t, err)

	events, err := f.store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTransferCreated, events[0].EventType)
	assert.Equal(t, domain.EventTransferBlocked, events[1].EventType)
	assert.Equal(t, acc.ID, events[1].AccountID)
}

// --- Mocks ---

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Debit(ctx context.Context, sc txn.Scope, accountID uuid.UUID, amount decimal.Decimal, reference uuid.UUID) (*domain.LedgerEntry, error) {
	args := m.Called(ctx, sc, accountID, amount, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerEntry), args.Error(1)
}

func (m *MockLedger) AccountIn(ctx context.Context, sc txn.Scope, accountID uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, sc, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func TestCreateTransfer_LedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.openAccount(t, "1000.00")

	led := new(MockLedger)
	led.On("Debit", mock.Anything, mock.Anything, acc.ID, mock.Anything, mock.Anything).
		Return(nil, stderrors.New("ledger unavailable"))

	engine := transfer.NewEngine(f.store, led, f.codes, transfer.DefaultConfig(), logger.NewNop())
	_, err := engine.CreateTransfer(ctx, request(acc.ID, "100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")

	list, err := engine.ListByAccount(ctx, acc.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "transfer row rolled back with the failed debit")

	events, err := f.store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	led.AssertExpectations(t)
}
