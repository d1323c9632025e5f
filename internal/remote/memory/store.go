// Package memory is an in-process backend implementing remote.Store,
// remote.Subscriber, remote.BlobStore, remote.BlobFetcher and remote.Pinger.
// It mirrors the constraints of the Postgres schema closely enough for the
// sync core's tests and for offline demos.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// Counter keeps Target.Column equal to the number of rows in Table that
// reference it through FK, like the counter triggers of the real schema.
type Counter struct {
	Table  string
	FK     string
	Target string
	Column string
}

// Fault is consulted before every call. A non-nil error fails the call.
type Fault func(op, table string) error

// Store is safe for concurrent use.
type Store struct {
	*remote.Hub

	mu       sync.Mutex
	tables   map[string][]remote.Row
	unique   map[string][][]string
	counters []Counter
	blobs    map[string][]byte
	fault    Fault
	offline  bool
	calls    map[string]int
	now      func() time.Time
}

// DefaultUnique lists the unique keys of the backend schema beyond "id".
var DefaultUnique = map[string][][]string{
	"story_views":     {{"story_id", "viewer_id"}},
	"story_reactions": {{"story_id", "user_id"}},
	"post_likes":      {{"post_id", "user_id"}},
	"poll_votes":      {{"post_id", "user_id"}},
	"follows":         {{"follower_id", "following_id"}},
	"blocks":          {{"blocker_id", "blocked_id"}},
	"posts":           {{"client_token"}},
	"messages":        {{"client_token"}},
}

// DefaultCounters mirrors the counter triggers of the backend schema.
var DefaultCounters = []Counter{
	{Table: "post_likes", FK: "post_id", Target: "posts", Column: "like_count"},
	{Table: "poll_votes", FK: "post_id", Target: "posts", Column: "vote_count"},
	{Table: "story_views", FK: "story_id", Target: "stories", Column: "view_count"},
	{Table: "story_reactions", FK: "story_id", Target: "stories", Column: "reaction_count"},
}

func New() *Store {
	return &Store{
		Hub:      remote.NewHub(),
		tables:   make(map[string][]remote.Row),
		unique:   DefaultUnique,
		counters: DefaultCounters,
		blobs:    make(map[string][]byte),
		calls:    make(map[string]int),
		now:      time.Now,
	}
}

// SetFault installs a fault injector; nil clears it.
func (s *Store) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

// FailOn fails every call of op on table with err until cleared.
func (s *Store) FailOn(op, table string, err error) {
	s.SetFault(func(o, t string) error {
		if o == op && t == table {
			return err
		}
		return nil
	})
}

// SetOffline makes every call fail with common.ErrUnavailable.
func (s *Store) SetOffline(v bool) {
	s.mu.Lock()
	s.offline = v
	s.mu.Unlock()
}

// Calls returns how many calls of op hit table. An empty table counts all
// tables.
func (s *Store) Calls(op, table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if table != "" {
		return s.calls[op+":"+table]
	}
	n := 0
	for k, v := range s.calls {
		if strings.HasPrefix(k, op+":") {
			n += v
		}
	}
	return n
}

// TotalCalls counts every data call.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.calls {
		n += v
	}
	return n
}

// Seed inserts rows directly without faults, counting or change events.
func (s *Store) Seed(table string, rows ...remote.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], s.prepare(r))
	}
}

// Rows returns a snapshot of table.
func (s *Store) Rows(table string) []remote.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, r.Merge(nil))
	}
	return out
}

// enter records the call and consults the fault injector. The injector runs
// without s.mu held so it may block.
func (s *Store) enter(op, table string) error {
	s.mu.Lock()
	s.calls[op+":"+table]++
	offline, fault := s.offline, s.fault
	s.mu.Unlock()

	if offline {
		return fmt.Errorf("%s %s: %w", op, table, common.ErrUnavailable)
	}
	if fault != nil {
		if err := fault(op, table); err != nil {
			return fmt.Errorf("%s %s: %w", op, table, err)
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return common.ErrUnavailable
	}
	return nil
}

func (s *Store) Select(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w: %w", table, common.ErrUnavailable, err)
	}
	if err := s.enter("select", table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []remote.Row
	for _, r := range s.tables[table] {
		if remote.Match(q.Filters, r) {
			out = append(out, r.Merge(nil))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c, _ := remote.Compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("insert %s: %w: %w", table, common.ErrUnavailable, err)
	}
	if err := s.enter("insert", table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	rec := s.prepare(row)
	keys := append([][]string{{"id"}}, s.unique[table]...)
	for _, existing := range s.tables[table] {
		for _, key := range keys {
			if sameKey(existing, rec, key) {
				s.mu.Unlock()
				return nil, fmt.Errorf("insert %s: %w on (%s)", table, common.ErrDuplicate, strings.Join(key, ", "))
			}
		}
	}
	s.tables[table] = append(s.tables[table], rec)
	changes := []remote.Change{{Table: table, Type: remote.EventInsert, Record: rec.Merge(nil)}}
	changes = append(changes, s.recount(table, rec)...)
	s.mu.Unlock()

	for _, c := range changes {
		s.Publish(c)
	}
	return rec.Merge(nil), nil
}

func (s *Store) Update(ctx context.Context, table string, filters []remote.Filter, patch remote.Row) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("update %s: %w: %w", table, common.ErrUnavailable, err)
	}
	if err := s.enter("update", table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	clean := normalizeRow(patch)
	var changes []remote.Change
	for i, r := range s.tables[table] {
		if !remote.Match(filters, r) {
			continue
		}
		next := r.Merge(clean)
		s.tables[table][i] = next
		changes = append(changes, remote.Change{Table: table, Type: remote.EventUpdate, Record: next.Merge(nil), Old: r.Merge(nil)})
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.Publish(c)
	}
	return int64(len(changes)), nil
}

func (s *Store) Delete(ctx context.Context, table string, filters []remote.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("delete %s: %w: %w", table, common.ErrUnavailable, err)
	}
	if err := s.enter("delete", table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	var kept []remote.Row
	var changes []remote.Change
	var removed []remote.Row
	for _, r := range s.tables[table] {
		if remote.Match(filters, r) {
			removed = append(removed, r)
			changes = append(changes, remote.Change{Table: table, Type: remote.EventDelete, Old: r.Merge(nil)})
			continue
		}
		kept = append(kept, r)
	}
	s.tables[table] = kept
	for _, r := range removed {
		changes = append(changes, s.recount(table, r)...)
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.Publish(c)
	}
	return int64(len(removed)), nil
}

// Upload stores data under bucket/path.
func (s *Store) Upload(ctx context.Context, bucket, path string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("upload: %w: %w", common.ErrUnavailable, err)
	}
	if err := s.enter("upload", bucket); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[bucket+"/"+path] = append([]byte(nil), data...)
	return nil
}

func (s *Store) PublicURL(bucket, path string) string {
	return "memory://" + bucket + "/" + path
}

// Fetch returns a copy of an uploaded object.
func (s *Store) Fetch(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch: %w: %w", common.ErrUnavailable, err)
	}
	if err := s.enter("fetch", bucket); err != nil {
		return nil, err
	}
	b, ok := s.Blob(bucket, path)
	if !ok {
		return nil, fmt.Errorf("fetch %s/%s: %w", bucket, path, common.ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}

// Blob returns an uploaded object.
func (s *Store) Blob(bucket, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[bucket+"/"+path]
	return b, ok
}

// recount refreshes the counters fed by table for the row's target and
// returns the resulting update events. Caller holds s.mu.
func (s *Store) recount(table string, row remote.Row) []remote.Change {
	var changes []remote.Change
	for _, c := range s.counters {
		if c.Table != table {
			continue
		}
		target := row[c.FK]
		n := 0
		for _, r := range s.tables[table] {
			if cmp, ok := remote.Compare(r[c.FK], target); ok && cmp == 0 {
				n++
			}
		}
		for i, r := range s.tables[c.Target] {
			if cmp, ok := remote.Compare(r["id"], target); ok && cmp == 0 {
				next := r.Merge(remote.Row{c.Column: float64(n)})
				s.tables[c.Target][i] = next
				changes = append(changes, remote.Change{
					Table:  c.Target,
					Type:   remote.EventUpdate,
					Record: remote.Row{"id": next["id"], c.Column: float64(n)},
					Old:    remote.Row{"id": r["id"]},
				})
			}
		}
	}
	return changes
}

// prepare fills server defaults and normalises values to their JSON form,
// the shape rows have when read back from Postgres via to_jsonb.
func (s *Store) prepare(row remote.Row) remote.Row {
	rec := normalizeRow(row)
	if rec.String("id") == "" {
		rec["id"] = uuid.NewString()
	}
	if !rec.Has("created_at") {
		rec["created_at"] = s.now().UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func normalizeRow(row remote.Row) remote.Row {
	b, err := json.Marshal(row)
	if err != nil {
		return row.Merge(nil)
	}
	var out remote.Row
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return row.Merge(nil)
	}
	return out
}

func sameKey(a, b remote.Row, cols []string) bool {
	for _, col := range cols {
		va, vb := a[col], b[col]
		if va == nil || vb == nil || va == "" || vb == "" {
			return false
		}
		if c, ok := remote.Compare(va, vb); !ok || c != 0 {
			return false
		}
	}
	return true
}
