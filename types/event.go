package types

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
)

// EventKind names the change carried by a DatabaseEvent.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// DatabaseEvent describes one applied row change. Before is nil for inserts,
// After is nil for deletes.
type DatabaseEvent struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Database  string    `json:"database,omitempty"`
	Table     string    `json:"table"`
	Key       string    `json:"key"`
	Before    Row       `json:"before,omitempty"`
	After     Row       `json:"after,omitempty"`
	TxID      string    `json:"tx_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Operation is an entry in a transaction's operation log.
type Operation struct {
	Kind   EventKind `json:"kind"`
	Table  string    `json:"table"`
	Key    string    `json:"key"`
	Before Row       `json:"before,omitempty"`
	After  Row       `json:"after,omitempty"`
}

// NewEvent builds an event with a fresh ULID and the current time.
func NewEvent(kind EventKind, database, table, key string, before, after Row) *DatabaseEvent {
	return &DatabaseEvent{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Database:  database,
		Table:     table,
		Key:       key,
		Before:    before,
		After:     after,
		Timestamp: time.Now().UTC(),
	}
}

// Encode serializes the event as JSON.
func (e *DatabaseEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
