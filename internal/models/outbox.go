package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is an event waiting to be relayed to Kafka. It is written in
// the same transaction as the change it announces.
type OutboxMessage struct {
	ID           uuid.UUID    `db:"id"`
	Seq          int64        `db:"seq"`
	EventType    string       `db:"event_type"`
	PartitionKey string       `db:"partition_key"`
	Payload      []byte       `db:"payload"`
	CreatedAt    time.Time    `db:"created_at"`
	PublishedAt  sql.NullTime `db:"published_at"`
}

// NewOutboxMessage encodes an announcement for the outbox
func NewOutboxMessage(event Announcement) (*OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", event.Envelope().EventType, err)
	}
	return &OutboxMessage{
		ID:           uuid.New(),
		EventType:    event.Envelope().EventType,
		PartitionKey: event.PartitionKey(),
		Payload:      payload,
	}, nil
}
