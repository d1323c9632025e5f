package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/dbx"
)

// Well-known metadata keys.
const (
	KeyOwnerID       = "owner_id"
	KeyLastRestoreAt = "last_restore_at"
	KeyLastBackupAt  = "last_backup_at"
)

// ownedTables are wiped when the mirror changes hands.
var ownedTables = []string{"messages", "chats", "vault_items"}

// Metadata is the device-level key/value table.
type Metadata struct {
	db *sql.DB
}

func NewMetadata(db *sql.DB) *Metadata {
	return &Metadata{db: db}
}

// Get returns (nil, nil) when key is absent.
func (m *Metadata) Get(ctx context.Context, key string) ([]byte, error) {
	return getValue(ctx, m.db, key)
}

func (m *Metadata) Set(ctx context.Context, key string, value []byte) error {
	return setValue(ctx, m.db, key, value)
}

// Time reads a timestamp written by SetTime. Absent keys give the zero time.
func (m *Metadata) Time(ctx context.Context, key string) (time.Time, error) {
	v, err := m.Get(ctx, key)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("metadata[%s] is not a timestamp: %w", key, err)
	}
	return t, nil
}

func (m *Metadata) SetTime(ctx context.Context, key string, t time.Time) error {
	return m.Set(ctx, key, []byte(t.UTC().Format(time.RFC3339Nano)))
}

func (m *Metadata) Delete(ctx context.Context, key string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (m *Metadata) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metadata rows: %w", err)
	}
	return out, nil
}

func (m *Metadata) Clear(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

// BindOwner records owner as the mirror's owner. When the file last belonged
// to someone else, every cached table and metadata key is dropped first and
// wiped is true.
func (s *Store) BindOwner(ctx context.Context, owner string) (wiped bool, err error) {
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		prev, err := getValue(ctx, tx, KeyOwnerID)
		if err != nil {
			return err
		}
		if string(prev) == owner {
			return nil
		}
		if prev != nil {
			for _, table := range append(ownedTables, "metadata") {
				if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
					return fmt.Errorf("failed to clear %s: %w", table, err)
				}
			}
			wiped = true
		}
		return setValue(ctx, tx, KeyOwnerID, []byte(owner))
	})
	return wiped, err
}

func getValue(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func setValue(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}
