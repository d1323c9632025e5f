package models

import "time"

// Op is the kind of an optimistic mutation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// SyncQueueEntry describes an optimistic mutation in flight. Original holds
// the pre-mutation entity used for rollback; it is nil for inserts.
type SyncQueueEntry struct {
	LocalID   string
	Op        Op
	Table     string
	Payload   Row
	Original  any
	CreatedAt time.Time
}
