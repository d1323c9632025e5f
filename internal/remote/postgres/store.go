// Package postgres implements remote.Store over database/sql with the pgx
// driver. Rows travel as JSON objects produced by to_jsonb, so the adapter
// never needs per-table scan code.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/dbx"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/postgres/migrations"
)

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	tables map[string]map[string]struct{}
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	tables := make(map[string]map[string]struct{}, len(Tables))
	for t, cols := range Tables {
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[c] = struct{}{}
		}
		tables[t] = set
	}
	return &Store{db: db, tables: tables}
}

// Open connects with the pgx driver and applies the schema migrations.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", mapError(err))
	}
	if err := dbx.Migrate(ctx, db, "postgres", migrations.FS); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return mapError(s.db.PingContext(ctx))
}

func (s *Store) Select(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	var sb strings.Builder
	var args []any

	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	sb.WriteString("SELECT to_jsonb(t.*) FROM ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" AS t")

	where, err := s.where(table, q.Filters, &args)
	if err != nil {
		return nil, err
	}
	sb.WriteString(where)

	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if err := s.checkColumn(table, o.Column); err != nil {
				return nil, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, pgx.Identifier{o.Column}.Sanitize()+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, mapError(err))
	}
	defer rows.Close()

	var out []remote.Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("select %s: scan: %w", table, err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, mapError(err))
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	cols := sortedColumns(row)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" AS t")

	args := make([]any, 0, len(cols))
	if len(cols) == 0 {
		sb.WriteString(" DEFAULT VALUES")
	} else {
		names := make([]string, 0, len(cols))
		marks := make([]string, 0, len(cols))
		for _, c := range cols {
			if err := s.checkColumn(table, c); err != nil {
				return nil, err
			}
			names = append(names, pgx.Identifier{c}.Sanitize())
			args = append(args, encodeValue(row[c]))
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		fmt.Fprintf(&sb, " (%s) VALUES (%s)", strings.Join(names, ", "), strings.Join(marks, ", "))
	}
	sb.WriteString(" RETURNING to_jsonb(t.*)")

	var raw []byte
	if err := s.db.QueryRowContext(ctx, sb.String(), args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, mapError(err))
	}
	out, err := decodeRow(raw)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table string, filters []remote.Filter, patch remote.Row) (int64, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	cols := sortedColumns(patch)
	if len(cols) == 0 {
		return 0, fmt.Errorf("update %s: empty patch: %w", table, common.ErrValidation)
	}

	var args []any
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := s.checkColumn(table, c); err != nil {
			return 0, err
		}
		args = append(args, encodeValue(patch[c]))
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args)))
	}
	where, err := s.where(table, filters, &args)
	if err != nil {
		return 0, err
	}

	query := "UPDATE " + pgx.Identifier{table}.Sanitize() + " AS t SET " + strings.Join(sets, ", ") + where
	n, err := dbx.ExecAffected(ctx, s.db, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, mapError(err))
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, filters []remote.Filter) (int64, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	// An unfiltered delete is never what a caller meant.
	if len(filters) == 0 {
		return 0, fmt.Errorf("delete %s: no filters: %w", table, common.ErrValidation)
	}
	var args []any
	where, err := s.where(table, filters, &args)
	if err != nil {
		return 0, err
	}

	n, err := dbx.ExecAffected(ctx, s.db, "DELETE FROM "+pgx.Identifier{table}.Sanitize()+" AS t"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, mapError(err))
	}
	return n, nil
}

func (s *Store) where(table string, filters []remote.Filter, args *[]any) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if err := s.checkColumn(table, f.Column); err != nil {
			return "", err
		}
		col := pgx.Identifier{f.Column}.Sanitize()
		switch f.Op {
		case remote.OpIsNull:
			parts = append(parts, col+" IS NULL")
			continue
		case remote.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
			continue
		}

		op, ok := sqlOps[f.Op]
		if !ok {
			return "", fmt.Errorf("filter %s: unknown operator: %w", f, common.ErrValidation)
		}
		*args = append(*args, f.Value)
		if f.Op == remote.OpIn {
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, len(*args)))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", col, op, len(*args)))
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

var sqlOps = map[remote.Op]string{
	remote.OpEq:  "=",
	remote.OpNeq: "<>",
	remote.OpGt:  ">",
	remote.OpGte: ">=",
	remote.OpLt:  "<",
	remote.OpLte: "<=",
	remote.OpIn:  "= ANY",
}

func (s *Store) checkTable(table string) error {
	if _, ok := s.tables[table]; !ok {
		return fmt.Errorf("unknown table %q: %w", table, common.ErrValidation)
	}
	return nil
}

func (s *Store) checkColumn(table, col string) error {
	if _, ok := s.tables[table][col]; !ok {
		return fmt.Errorf("unknown column %s.%s: %w", table, col, common.ErrValidation)
	}
	return nil
}

func sortedColumns(row remote.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// encodeValue turns composite values into JSON text for jsonb columns.
func encodeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, []byte, time.Time:
		return x
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(b)
}

func decodeRow(raw []byte) (remote.Row, error) {
	var row remote.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return row, nil
}

var (
	_ remote.Store  = (*Store)(nil)
	_ remote.Pinger = (*Store)(nil)
)
