package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventTransferCreated       = "transfer.created"
	EventTransferBlocked       = "transfer.blocked"
	EventTransferStepAdvanced  = "transfer.step_advanced"
	EventTransferCompleted     = "transfer.completed"
	EventTransferUpdated       = "transfer.updated"
	EventCreditRequestCreated  = "credit_request.created"
	EventCreditRequestApproved = "credit_request.approved"
	EventCreditRequestRejected = "credit_request.rejected"
)

// NewOutboxEvent builds an undispatched event with payload encoded as JSON.
func NewOutboxEvent(eventType string, aggregateID, accountID uuid.UUID, payload interface{}) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		AccountID:   accountID,
		EventType:   eventType,
		Payload:     string(body),
		CreatedAt:   time.Now().UTC(),
	}, nil
}
