package domain

import "time"

// Event types
const (
	EventTypeAccountOpened       = "account.opened"
	EventTypeAccountDeactivated  = "account.deactivated"
	EventTypeTransactionRecorded = "transaction.recorded"
	EventTypeTransferCompleted   = "transfer.completed"
	EventTypeInterestPosted      = "interest.posted"
)

// Aggregate types
const (
	AggregateTypeAccount  = "account"
	AggregateTypeTransfer = "transfer"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}
