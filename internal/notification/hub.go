// Package notification delivers outbox events to live subscribers of an
// account's event feed.
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"usalli/internal/domain"
	"usalli/pkg/logger"
)

const subscriberBuffer = 32

// Message is the wire form of an event pushed to subscribers.
type Message struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregateId"`
	AccountID   uuid.UUID       `json:"accountId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

func messageFrom(ev *domain.OutboxEvent) Message {
	payload := json.RawMessage(ev.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return Message{
		ID:          ev.ID,
		Type:        ev.EventType,
		AggregateID: ev.AggregateID,
		AccountID:   ev.AccountID,
		Payload:     payload,
		OccurredAt:  ev.CreatedAt,
	}
}

// Subscription receives messages for one account until closed.
type Subscription struct {
	C         <-chan Message
	ch        chan Message
	accountID uuid.UUID
	hub       *Hub
	once      sync.Once
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans events out to per-account subscribers. Slow subscribers drop
// messages instead of blocking delivery.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	logger logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		logger: log,
	}
}

func (h *Hub) Subscribe(accountID uuid.UUID) *Subscription {
	ch := make(chan Message, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, accountID: accountID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[accountID] == nil {
		h.subs[accountID] = make(map[*Subscription]struct{})
	}
	h.subs[accountID][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.accountID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.accountID)
		}
	}
	close(sub.ch)
}

// Subscribers reports how many subscriptions are open for the account.
func (h *Hub) Subscribers(accountID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[accountID])
}

// Send delivers ev to the account's current subscribers. Having no
// subscribers is not an error.
func (h *Hub) Send(ctx context.Context, ev *domain.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := messageFrom(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.AccountID] {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("Dropping event for slow subscriber", map[string]interface{}{
				"account_id": ev.AccountID,
				"event_id":   ev.ID,
				"event_type": ev.EventType,
			})
		}
	}
	return nil
}
