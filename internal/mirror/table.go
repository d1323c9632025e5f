package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/dbx"
)

// timeLayout sorts lexically in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is the stored form of a mirrored entity. Scope is the partition
// the entity is listed under: the owner for vault items and chats, the chat
// for messages.
type Record struct {
	ID        string
	Scope     string
	CreatedAt time.Time
	SizeBytes int64
	SyncState string
	Payload   []byte
}

// Codec converts between an entity and its Record.
type Codec[T any] struct {
	Encode func(T) (Record, error)
	Decode func(Record) (T, error)
}

// Table is one logical mirror table. Writes are last-write-wins per id.
type Table[T any] struct {
	db    *sql.DB
	name  string
	codec Codec[T]
}

func newTable[T any](db *sql.DB, name string, codec Codec[T]) *Table[T] {
	return &Table[T]{db: db, name: name, codec: codec}
}

// Get returns common.ErrNotFound when id is absent.
func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	row := t.db.QueryRowContext(ctx,
		`SELECT id, scope, created_at, size_bytes, sync_state, payload FROM `+t.name+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s[%s]: %w", t.name, id, common.ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("failed to get %s[%s]: %w", t.name, id, err)
	}
	return t.codec.Decode(rec)
}

func (t *Table[T]) Put(ctx context.Context, v T) error {
	return t.put(ctx, t.db, v)
}

// BulkPut writes all values in one transaction.
func (t *Table[T]) BulkPut(ctx context.Context, vs []T) error {
	if len(vs) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, v := range vs {
			if err := t.put(ctx, tx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete is a no-op for absent ids.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	return t.delete(ctx, t.db, id)
}

func (t *Table[T]) Clear(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM `+t.name); err != nil {
		return fmt.Errorf("failed to clear %s: %w", t.name, err)
	}
	return nil
}

// List returns the entities in scope ordered by creation time.
func (t *Table[T]) List(ctx context.Context, scope string) ([]T, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, scope, created_at, size_bytes, sync_state, payload FROM `+t.name+
			` WHERE scope = ? ORDER BY created_at ASC, id ASC`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		v, err := t.codec.Decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", t.name, err)
	}
	return out, nil
}

// Usage sums size_bytes over scope.
func (t *Table[T]) Usage(ctx context.Context, scope string) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0) FROM `+t.name+` WHERE scope = ?`, scope).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s usage: %w", t.name, err)
	}
	return total, nil
}

// Swap replaces the record under oldID with v in one transaction. Either
// both happen or neither does.
func (t *Table[T]) Swap(ctx context.Context, oldID string, v T) error {
	return dbx.WithTx(ctx, t.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := t.delete(ctx, tx, oldID); err != nil {
			return err
		}
		return t.put(ctx, tx, v)
	})
}

func (t *Table[T]) put(ctx context.Context, db dbx.DBTX, v T) error {
	rec, err := t.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", t.name, err)
	}
	if rec.ID == "" {
		return fmt.Errorf("%s record without id: %w", t.name, common.ErrValidation)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO `+t.name+` (id, scope, created_at, size_bytes, sync_state, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			created_at = excluded.created_at,
			size_bytes = excluded.size_bytes,
			sync_state = excluded.sync_state,
			payload = excluded.payload
	`, rec.ID, rec.Scope, rec.CreatedAt.UTC().Format(timeLayout), rec.SizeBytes, rec.SyncState, rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to put %s[%s]: %w", t.name, rec.ID, err)
	}
	return nil
}

func (t *Table[T]) delete(ctx context.Context, db dbx.DBTX, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM `+t.name+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", t.name, id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var created string
	if err := s.Scan(&rec.ID, &rec.Scope, &created, &rec.SizeBytes, &rec.SyncState, &rec.Payload); err != nil {
		return Record{}, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	rec.CreatedAt = t
	return rec, nil
}
