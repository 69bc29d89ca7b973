package notification_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usalli/internal/domain"
	"usalli/internal/notification"
	"usalli/internal/repository/sqlstore"
	"usalli/internal/repository/sqlstore/sqlstoretest"
	"usalli/pkg/logger"
)

type recordingSender struct {
	mu     sync.Mutex
	sent   []uuid.UUID
	failOn map[uuid.UUID]bool
}

func (s *recordingSender) Send(_ context.Context, ev *domain.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[ev.ID] {
		return stderrors.New("subscriber unavailable")
	}
	s.sent = append(s.sent, ev.ID)
	return nil
}

func appendEvent(t *testing.T, store *sqlstore.Store, accountID uuid.UUID, offset time.Duration) *domain.OutboxEvent {
	t.Helper()
	ev, err := domain.NewOutboxEvent(domain.EventTransferCreated, uuid.New(), accountID, map[string]string{"status": "pending"})
	require.NoError(t, err)
	ev.CreatedAt = ev.CreatedAt.Add(offset)
	require.NoError(t, store.Outbox().Append(context.Background(), ev))
	return ev
}

func TestDispatchOnceDeliversInOrder(t *testing.T) {
	store := sqlstoretest.New(t)
	ctx := context.Background()
	accountID := uuid.New()

	first := appendEvent(t, store, accountID, -2*time.Second)
	second := appendEvent(t, store, accountID, -time.Second)

	sender := &recordingSender{}
	d := notification.NewDispatcher(store, sender, notification.DispatcherConfig{BatchSize: 10}, logger.NewNop())

	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, sender.sent)

	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatchOnceKeepsFailedEventsPending(t *testing.T) {
	store := sqlstoretest.New(t)
	ctx := context.Background()
	accountID := uuid.New()

	ok := appendEvent(t, store, accountID, -2*time.Second)
	bad := appendEvent(t, store, accountID, -time.Second)

	sender := &recordingSender{failOn: map[uuid.UUID]bool{bad.ID: true}}
	d := notification.NewDispatcher(store, sender, notification.DispatcherConfig{BatchSize: 10}, logger.NewNop())

	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{ok.ID}, sender.sent)

	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "subscriber unavailable", *pending[0].LastError)
}

func TestDispatchOnceRespectsBatchSize(t *testing.T) {
	store := sqlstoretest.New(t)
	ctx := context.Background()
	accountID := uuid.New()
	for i := 0; i < 5; i++ {
		appendEvent(t, store, accountID, time.Duration(i-10)*time.Second)
	}

	d := notification.NewDispatcher(store, &recordingSender{}, notification.DispatcherConfig{BatchSize: 2}, logger.NewNop())

	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := store.Outbox().ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestDispatcherFeedsHub(t *testing.T) {
	store := sqlstoretest.New(t)
	accountID := uuid.New()
	ev := appendEvent(t, store, accountID, 0)

	hub := notification.NewHub(logger.NewNop())
	sub := hub.Subscribe(accountID)
	defer sub.Close()

	d := notification.NewDispatcher(store, hub, notification.DispatcherConfig{PollInterval: 10 * time.Millisecond}, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case msg := <-sub.C:
		assert.Equal(t, ev.ID, msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}

	cancel()
	<-done
}
