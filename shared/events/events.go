package events

import (
	"time"

	"github.com/eaglebank/transaction-service/shared/models"
	"github.com/google/uuid"
)

// Event types
const (
	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
)

// TransactionEventsStream is the stream (Redis) or topic (Kafka) events are appended to.
const TransactionEventsStream = "transaction.events"

// Event is a domain event for one transaction. TransactionID is the partition
// key; consumers deduplicate on TransactionID and Timestamp.
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	TransactionID string                 `json:"transactionId"`
	Snapshot      models.TransactionView `json:"snapshot"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NewTransactionEvent builds an event of the given type carrying a snapshot of t.
func NewTransactionEvent(eventType string, t *models.Transaction) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TransactionID: t.ID,
		Snapshot:      models.ToView(t),
		Timestamp:     time.Now().UTC(),
	}
}

// DedupKey identifies a delivery of this event for idempotent consumers.
func (e Event) DedupKey() string {
	return e.TransactionID + ":" + e.Timestamp.Format(time.RFC3339Nano)
}
