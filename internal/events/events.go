// Package events defines the messages announcing transaction store changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

// Type names the kind of mutation an event reports.
type Type string

const (
	TransactionCreated Type = "transaction.created"
	TransactionUpdated Type = "transaction.updated"
	TransactionDeleted Type = "transaction.deleted"
)

// TransactionEvent carries the full record after the change; for deletions
// it is the record as it was before removal.
type TransactionEvent struct {
	ID          string           `json:"id"`
	Type        Type             `json:"type"`
	Transaction core.Transaction `json:"transaction"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewTransactionEvent stamps a new event with a random id and the current time.
func NewTransactionEvent(typ Type, t core.Transaction) TransactionEvent {
	return TransactionEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		Transaction: t,
		OccurredAt:  time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes an event and checks its type.
func FromJSON(data []byte) (TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TransactionEvent{}, fmt.Errorf("decode event: %w", err)
	}
	switch e.Type {
	case TransactionCreated, TransactionUpdated, TransactionDeleted:
		return e, nil
	default:
		return TransactionEvent{}, fmt.Errorf("decode event: unknown type %q", e.Type)
	}
}

// Nop discards events. It is the publisher used when EVENTS_BACKEND=none.
type Nop struct{}

func (Nop) Publish(context.Context, TransactionEvent) error { return nil }
