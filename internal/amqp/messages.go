package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind names a change to the ledger.
type EventKind string

const (
	ExpenseCreated EventKind = "expense.created"
	ExpenseDeleted EventKind = "expense.deleted"
	InvoiceCreated EventKind = "invoice.created"
)

func (k EventKind) valid() bool {
	switch k {
	case ExpenseCreated, ExpenseDeleted, InvoiceCreated:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notification. Consumers load the entity from the
// store by owner and id; the event never carries the entity itself.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	UserID    int64     `json:"user_id"`
	EntityID  int64     `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, userID, entityID int64) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		UserID:    userID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and checks an event body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.valid() {
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.EntityID <= 0 || msg.UserID <= 0 {
		return nil, fmt.Errorf("event %s missing user or entity id", msg.Kind)
	}
	return &msg, nil
}
