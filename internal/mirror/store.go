// Package mirror is the per-device durable cache of messages, chats and
// vault items, kept in a SQLite file so reads and vault writes work offline.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/socialsync/internal/dbx"
	"github.com/dmitrijs2005/socialsync/internal/mirror/migrations"
	"github.com/dmitrijs2005/socialsync/internal/models"
)

// Store bundles the mirror tables over one database.
type Store struct {
	db *sql.DB

	Metadata *Metadata
	Messages *Table[models.Message]
	Chats    *Table[models.Chat]
	Vault    *Table[models.VaultItem]
}

// Open opens (creating if needed) the SQLite file at path and migrates it.
// ":memory:" gives a private in-memory mirror.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := dbx.Migrate(ctx, db, "sqlite3", migrations.FS); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		db:       db,
		Metadata: NewMetadata(db),
		Messages: newTable(db, "messages", messageCodec),
		Chats:    newTable(db, "chats", chatCodec),
		Vault:    newTable(db, "vault_items", vaultCodec),
	}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

var vaultCodec = Codec[models.VaultItem]{
	Encode: func(v models.VaultItem) (Record, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return Record{}, err
		}
		return Record{
			ID:        v.ID,
			Scope:     v.OwnerID,
			CreatedAt: v.CreatedAt,
			SizeBytes: v.SizeBytes(),
			SyncState: string(v.SyncState),
			Payload:   b,
		}, nil
	},
	Decode: func(r Record) (models.VaultItem, error) {
		var v models.VaultItem
		if err := json.Unmarshal(r.Payload, &v); err != nil {
			return v, fmt.Errorf("failed to decode vault item %s: %w", r.ID, err)
		}
		v.SyncState = models.SyncState(r.SyncState)
		return v, nil
	},
}

var messageCodec = Codec[models.Message]{
	Encode: func(m models.Message) (Record, error) {
		b, err := json.Marshal(m)
		if err != nil {
			return Record{}, err
		}
		return Record{
			ID:        m.ID.String(),
			Scope:     m.ChatID,
			CreatedAt: m.CreatedAt,
			SizeBytes: int64(len(m.Content)),
			SyncState: string(m.SyncState),
			Payload:   b,
		}, nil
	},
	Decode: func(r Record) (models.Message, error) {
		var m models.Message
		if err := json.Unmarshal(r.Payload, &m); err != nil {
			return m, fmt.Errorf("failed to decode message %s: %w", r.ID, err)
		}
		m.SyncState = models.SyncState(r.SyncState)
		return m, nil
	},
}

var chatCodec = Codec[models.Chat]{
	Encode: func(c models.Chat) (Record, error) {
		b, err := json.Marshal(c)
		if err != nil {
			return Record{}, err
		}
		return Record{
			ID:        c.ID,
			Scope:     c.OwnerID,
			CreatedAt: c.LastMessageAt,
			SyncState: string(models.SyncSynced),
			Payload:   b,
		}, nil
	},
	Decode: func(r Record) (models.Chat, error) {
		var c models.Chat
		if err := json.Unmarshal(r.Payload, &c); err != nil {
			return c, fmt.Errorf("failed to decode chat %s: %w", r.ID, err)
		}
		return c, nil
	},
}
