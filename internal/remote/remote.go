// Package remote defines the contracts the sync core needs from the hosted
// backend: a relational store with row filtering, a realtime change stream
// and blob storage. Adapters live in the subpackages.
package remote

import (
	"context"

	"github.com/dmitrijs2005/socialsync/internal/models"
)

// Row is an untyped remote record.
type Row = models.Row

// Store is the relational store. Update and Delete report the number of rows
// they touched; zero is not an error.
type Store interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, filters []Filter, patch Row) (int64, error)
	Delete(ctx context.Context, table string, filters []Filter) (int64, error)
}

// EventType classifies a change event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Change is one row-level change delivered by the realtime stream. Record is
// the new row (empty for deletes); Old holds at least the primary key for
// updates and deletes.
type Change struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	Record Row       `json:"record"`
	Old    Row       `json:"old"`
}

// Handlers receive changes for one subscription. Nil handlers are skipped.
type Handlers struct {
	OnInsert func(Change)
	OnUpdate func(Change)
	OnDelete func(Change)
}

// Handle identifies a subscription.
type Handle uint64

// Subscriber is the realtime change stream. Delivery is at-least-once and
// unordered across rows.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filters []Filter, h Handlers) (Handle, error)
	Unsubscribe(h Handle)
}

// BlobStore uploads media and bag files.
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
}

// BlobFetcher downloads stored objects, including ones in private buckets.
type BlobFetcher interface {
	Fetch(ctx context.Context, bucket, path string) ([]byte, error)
}

// Pinger checks backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
