package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the publish state of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxMaxRetries bounds publish attempts for one message
const DefaultOutboxMaxRetries = 5

// Ledger event types written to the outbox
const (
	EventRegistrationPaid      = "registration.paid"
	EventRegistrationCancelled = "registration.cancelled"
	EventRegistrationRefunded  = "registration.refunded"
	EventRegistrationAttended  = "registration.attended"
	EventOrderPaid             = "order.paid"
	EventOrderCancelled        = "order.cancelled"
	EventOrderRefunded         = "order.refunded"
)

// LedgerEventType names the event for a status change on a row of the given kind
func LedgerEventType(kind EventKind, to LedgerStatus) string {
	prefix := "registration."
	if kind == KindConcert {
		prefix = "order."
	}
	return prefix + string(to)
}

// OutboxMessage is a domain event waiting to be published
type OutboxMessage struct {
	ID            string       `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     string       `json:"event_type"`
	Payload       []byte       `json:"payload"`
	Topic         string       `json:"topic"`
	PartitionKey  string       `json:"partition_key"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}

// LedgerEvent is the payload of every ledger outbox message
type LedgerEvent struct {
	EventID    string       `json:"event_id"`
	Type       string       `json:"type"`
	Kind       EventKind    `json:"kind"`
	LedgerID   string       `json:"ledger_id"`
	EventRef   string       `json:"event_ref"`
	From       LedgerStatus `json:"from"`
	To         LedgerStatus `json:"to"`
	Quantity   int          `json:"quantity"`
	Amount     Pence        `json:"amount"`
	BuyerEmail string       `json:"buyer_email"`
	Reason     string       `json:"reason,omitempty"`
	// ConfirmedCount is the event's recounted confirmed bookings after this change
	ConfirmedCount int       `json:"confirmed_count"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewLedgerOutboxMessage wraps a status change on entry for publishing on topic
func NewLedgerOutboxMessage(topic string, entry LedgerEntry, from LedgerStatus, reason string, confirmed int, at time.Time) (*OutboxMessage, error) {
	eventType := LedgerEventType(entry.Kind, entry.Status)
	payload, err := json.Marshal(LedgerEvent{
		EventID:        uuid.New().String(),
		Type:           eventType,
		Kind:           entry.Kind,
		LedgerID:       entry.ID,
		EventRef:       entry.EventID,
		From:           from,
		To:             entry.Status,
		Quantity:       entry.Quantity,
		Amount:         entry.Amount,
		BuyerEmail:     entry.BuyerEmail,
		Reason:         reason,
		ConfirmedCount: confirmed,
		OccurredAt:     at,
	})
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:            uuid.New().String(),
		AggregateType: string(entry.Kind),
		AggregateID:   entry.ID,
		EventType:     eventType,
		Payload:       payload,
		Topic:         topic,
		PartitionKey:  entry.EventID,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultOutboxMaxRetries,
		CreatedAt:     at,
	}, nil
}

// CanRetry reports whether a failed message has attempts left
func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxStatusFailed && m.RetryCount < m.MaxRetries
}

// Decode unmarshals the payload
func (m *OutboxMessage) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}
