// Package optimistic applies user mutations to an in-memory view at once and
// confirms them against the remote store in the background. A mutation the
// store rejects is reversed by restoring the exact pre-mutation snapshot of
// the entity it touched; nothing is retried automatically.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/view"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 10 * time.Second

var errCreateFailed = errors.New("create was not confirmed")

// Options tune a Coordinator.
type Options struct {
	// Timeout bounds each remote dispatch; DefaultTimeout when zero.
	Timeout time.Duration
	// AppendCreates lists new entities at the tail instead of the head.
	AppendCreates bool
	// Relations maps relation names accepted by Toggle to their tables.
	Relations map[string]RelationSpec
	// OnNotice receives every reversed mutation.
	OnNotice func(Notice)
	Log      logging.Logger
}

// Coordinator is safe for concurrent use. Remote dispatches for the same
// entity run one at a time in the order they were applied; dispatches for
// different entities run concurrently.
type Coordinator[T Entity[T]] struct {
	list  *view.List[T]
	store remote.Store
	codec Codec[T]
	opts  Options
	log   logging.Logger

	applyMu sync.Mutex

	mu      sync.Mutex
	queues  map[string]*queue
	pending map[uint64]models.SyncQueueEntry
	seq     uint64
	remap   map[string]string
	origin  map[string]string
	failed  map[string]error
	wg      sync.WaitGroup
}

type queue struct {
	jobs    []func()
	running bool
}

func New[T Entity[T]](list *view.List[T], store remote.Store, codec Codec[T], opts Options) *Coordinator[T] {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Coordinator[T]{
		list:    list,
		store:   store,
		codec:   codec,
		opts:    opts,
		log:     opts.Log.With("module", "optimistic", "table", codec.Table),
		queues:  make(map[string]*queue),
		pending: make(map[uint64]models.SyncQueueEntry),
		remap:   make(map[string]string),
		origin:  make(map[string]string),
		failed:  make(map[string]error),
	}
}

// List returns the view the coordinator mutates.
func (c *Coordinator[T]) List() *view.List[T] { return c.list }

// Apply updates the local view synchronously and dispatches m to the remote
// store in the background. It returns the resulting local view. A
// validation error is returned before anything changes.
func (c *Coordinator[T]) Apply(ctx context.Context, m Mutation[T]) ([]T, *Ticket, error) {
	var (
		t   *Ticket
		err error
	)
	switch m.Kind {
	case KindCreate:
		t, err = c.create(ctx, m.Entity)
	case KindUpdate:
		t, err = c.update(ctx, m.ID, m.Patch)
	case KindDelete:
		t, err = c.delete(ctx, m.ID)
	case KindToggle:
		t, err = c.toggle(ctx, m)
	default:
		err = fmt.Errorf("unknown mutation kind %d: %w", m.Kind, common.ErrValidation)
	}
	if err != nil {
		return nil, nil, err
	}
	return c.list.Items(), t, nil
}

// Pending lists mutations whose remote outcome is not known yet.
func (c *Coordinator[T]) Pending() []models.SyncQueueEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.SyncQueueEntry, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, e)
	}
	return out
}

// Flush waits until every dispatched mutation has completed.
func (c *Coordinator[T]) Flush() { c.wg.Wait() }

func (c *Coordinator[T]) create(ctx context.Context, v T) (*Ticket, error) {
	token := v.Token()
	if token == "" {
		return nil, fmt.Errorf("create: missing client token: %w", common.ErrValidation)
	}
	tempID := models.Temporary(token)
	local := v.WithID(tempID).WithSyncState(models.SyncPending)

	c.applyMu.Lock()
	pos := 0
	if c.opts.AppendCreates {
		pos = c.list.Len()
	}
	inserted := c.list.InsertAt(pos, local)
	c.applyMu.Unlock()
	if !inserted {
		return nil, fmt.Errorf("create %s: %w", tempID, common.ErrDuplicate)
	}

	payload := c.codec.Encode(local)
	t := newTicket(tempID)
	key := c.track(models.SyncQueueEntry{LocalID: tempID.String(), Op: models.OpInsert, Table: c.codec.Table, Payload: payload})

	c.enqueue(tempID.String(), func() {
		defer c.untrack(key)
		rctx, cancel := c.remoteCtx(ctx)
		defer cancel()

		row, err := c.insert(rctx, token, payload)
		if err != nil {
			c.list.Remove(tempID)
			c.markFailed(token, err)
			c.reverse(ctx, KindCreate, tempID, err)
			t.finish(tempID, err)
			return
		}

		confirmed, err := c.confirm(tempID, payload, row)
		if err != nil {
			c.list.Remove(tempID)
			c.markFailed(token, err)
			c.reverse(ctx, KindCreate, tempID, err)
			t.finish(tempID, err)
			return
		}
		c.mu.Lock()
		c.remap[token] = confirmed.EntityID().ServerID()
		c.origin[confirmed.EntityID().ServerID()] = token
		c.mu.Unlock()

		_, _, tempListed := c.list.Get(tempID)
		_, _, serverListed := c.list.Get(confirmed.EntityID())
		if tempListed || serverListed {
			res := c.list.MergeConfirmed(confirmed)
			c.log.Debug(ctx, "create confirmed", "temp_id", tempID.String(), "id", confirmed.EntityID().String(), "merge", res.String())
		} else {
			// Removed locally while in flight; a queued delete follows.
			c.log.Debug(ctx, "create confirmed after local removal", "id", confirmed.EntityID().String())
		}
		t.finish(confirmed.EntityID(), nil)
	})
	return t, nil
}

// insert treats a duplicate client token as an earlier attempt that landed.
func (c *Coordinator[T]) insert(ctx context.Context, token string, payload models.Row) (models.Row, error) {
	row, err := c.store.Insert(ctx, c.codec.Table, payload)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, common.ErrDuplicate) {
		return nil, err
	}
	rows, serr := c.store.Select(ctx, c.codec.Table, remote.Where(remote.Eq("client_token", token)))
	if serr != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// confirm builds the confirmed entity from the local placeholder and the
// server-owned columns of row. Columns the client sent keep their local
// value, which may already carry a later edit.
func (c *Coordinator[T]) confirm(tempID models.ID, payload, row models.Row) (T, error) {
	decoded, err := c.codec.Decode(row)
	if err != nil {
		return decoded, err
	}
	if local, _, ok := c.list.Get(tempID); ok {
		serverOnly := models.Row{}
		for k, v := range row {
			if !payload.Has(k) {
				serverOnly[k] = v
			}
		}
		if merged, err := local.Patch(serverOnly); err == nil {
			return merged.WithID(decoded.EntityID()).WithSyncState(models.SyncSynced), nil
		}
	}
	return decoded.WithSyncState(models.SyncSynced), nil
}

func (c *Coordinator[T]) update(ctx context.Context, id models.ID, patch models.Row) (*Ticket, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("update %s: empty patch: %w", id, common.ErrValidation)
	}
	id = c.current(id)
	c.applyMu.Lock()
	before, _, err := c.list.Update(id, func(v T) (T, error) {
		next, err := v.Patch(patch)
		if err != nil {
			return v, fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		return next.WithSyncState(models.SyncPending), nil
	})
	c.applyMu.Unlock()
	if errors.Is(err, common.ErrNotFound) {
		return doneTicket(id, nil), nil
	}
	if err != nil {
		return nil, err
	}

	t := newTicket(id)
	key := c.track(models.SyncQueueEntry{LocalID: id.String(), Op: models.OpUpdate, Table: c.codec.Table, Payload: patch, Original: before})

	c.enqueue(c.queueKey(id), func() {
		defer c.untrack(key)
		rctx, cancel := c.remoteCtx(ctx)
		defer cancel()

		cur := c.current(id)
		serverID, err := c.resolve(id)
		if errors.Is(err, errCreateFailed) {
			t.finish(cur, err)
			return
		}
		if err == nil {
			_, err = c.store.Update(rctx, c.codec.Table, []remote.Filter{remote.Eq("id", serverID)}, patch)
		}
		if err != nil {
			c.list.Set(before.WithID(cur))
			c.reverse(ctx, KindUpdate, cur, err)
			t.finish(cur, err)
			return
		}
		_, _, _ = c.list.Update(cur, func(v T) (T, error) { return v.WithSyncState(models.SyncSynced), nil })
		t.finish(cur, nil)
	})
	return t, nil
}

func (c *Coordinator[T]) delete(ctx context.Context, id models.ID) (*Ticket, error) {
	id = c.current(id)
	c.applyMu.Lock()
	before, pos, ok := c.list.Remove(id)
	c.applyMu.Unlock()
	if !ok {
		return doneTicket(id, nil), nil
	}

	t := newTicket(id)
	key := c.track(models.SyncQueueEntry{LocalID: id.String(), Op: models.OpDelete, Table: c.codec.Table, Original: before})

	c.enqueue(c.queueKey(id), func() {
		defer c.untrack(key)
		rctx, cancel := c.remoteCtx(ctx)
		defer cancel()

		cur := c.current(id)
		serverID, err := c.resolve(id)
		if errors.Is(err, errCreateFailed) {
			// Nothing reached the store; the removal stands.
			t.finish(cur, nil)
			return
		}
		if err == nil {
			_, err = c.store.Delete(rctx, c.codec.Table, []remote.Filter{remote.Eq("id", serverID)})
		}
		if err != nil {
			c.list.InsertAt(pos, before.WithID(cur))
			c.reverse(ctx, KindDelete, cur, err)
			t.finish(cur, err)
			return
		}
		t.finish(cur, nil)
	})
	return t, nil
}

func (c *Coordinator[T]) toggle(ctx context.Context, m Mutation[T]) (*Ticket, error) {
	spec, ok := c.opts.Relations[m.Relation]
	if !ok {
		return nil, fmt.Errorf("toggle: unknown relation %q: %w", m.Relation, common.ErrValidation)
	}
	if m.Actor == "" {
		return nil, fmt.Errorf("toggle %s: missing actor: %w", m.Relation, common.ErrValidation)
	}

	m.ID = c.current(m.ID)
	c.applyMu.Lock()
	before, after, err := c.list.Update(m.ID, func(v T) (T, error) {
		return v.WithRelation(m.Relation, v.Relation(m.Relation).Toggled()), nil
	})
	c.applyMu.Unlock()
	if errors.Is(err, common.ErrNotFound) {
		return doneTicket(m.ID, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("toggle %s: %w", m.ID, err)
	}
	prior := before.Relation(m.Relation)
	on := after.Relation(m.Relation).On

	t := newTicket(m.ID)
	key := c.track(models.SyncQueueEntry{LocalID: m.ID.String(), Op: models.OpUpdate, Table: spec.Table, Original: before})

	c.enqueue(c.queueKey(m.ID), func() {
		defer c.untrack(key)
		rctx, cancel := c.remoteCtx(ctx)
		defer cancel()

		cur := c.current(m.ID)
		serverID, err := c.resolve(m.ID)
		if errors.Is(err, errCreateFailed) {
			t.finish(cur, err)
			return
		}
		if err == nil {
			if on {
				row := models.Row{spec.FK: serverID, spec.UserColumn: m.Actor}.Merge(m.Extra)
				_, err = c.store.Insert(rctx, spec.Table, row)
				if errors.Is(err, common.ErrDuplicate) {
					err = nil
				}
			} else {
				_, err = c.store.Delete(rctx, spec.Table, []remote.Filter{
					remote.Eq(spec.FK, serverID),
					remote.Eq(spec.UserColumn, m.Actor),
				})
			}
		}
		if err != nil {
			// Only the toggled relation is restored so that changes to other
			// fields made in the meantime survive.
			_, _, _ = c.list.Update(cur, func(v T) (T, error) { return v.WithRelation(m.Relation, prior), nil })
			c.reverse(ctx, KindToggle, cur, err)
			t.finish(cur, err)
			return
		}
		t.finish(cur, nil)
	})
	return t, nil
}

func (c *Coordinator[T]) reverse(ctx context.Context, k Kind, id models.ID, err error) {
	c.log.Warn(ctx, "mutation reversed", "op", string(k.op()), "id", id.String(), "err", err)
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(Notice{Op: k.op(), Table: c.codec.Table, ID: id, Err: err})
	}
}

func (c *Coordinator[T]) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
}

// resolve returns the server id to address id by.
func (c *Coordinator[T]) resolve(id models.ID) (string, error) {
	if !id.IsTemporary() {
		return id.ServerID(), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sid, ok := c.remap[id.Token()]; ok {
		return sid, nil
	}
	if err, ok := c.failed[id.Token()]; ok {
		return "", fmt.Errorf("%w: %w", errCreateFailed, err)
	}
	return "", fmt.Errorf("%s: %w", id, common.ErrNotFound)
}

// queueKey names the dispatch queue of an entity. Entities created through
// this coordinator keep the queue of their temporary id after the remap, so
// mutations issued before and after confirmation stay in order.
func (c *Coordinator[T]) queueKey(id models.ID) string {
	if id.IsTemporary() {
		return id.String()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if token, ok := c.origin[id.ServerID()]; ok {
		return models.Temporary(token).String()
	}
	return id.String()
}

// current returns the id the entity is listed under now.
func (c *Coordinator[T]) current(id models.ID) models.ID {
	if !id.IsTemporary() {
		return id
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sid, ok := c.remap[id.Token()]; ok {
		return models.Permanent(sid)
	}
	return id
}

func (c *Coordinator[T]) markFailed(token string, err error) {
	c.mu.Lock()
	c.failed[token] = err
	c.mu.Unlock()
}

func (c *Coordinator[T]) track(e models.SyncQueueEntry) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	e.CreatedAt = time.Now()
	c.pending[c.seq] = e
	return c.seq
}

func (c *Coordinator[T]) untrack(key uint64) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Coordinator[T]) enqueue(key string, job func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.queues[key]
	if q == nil {
		q = &queue{}
		c.queues[key] = q
	}
	q.jobs = append(q.jobs, job)
	if !q.running {
		q.running = true
		c.wg.Add(1)
		go c.drain(key, q)
	}
}

func (c *Coordinator[T]) drain(key string, q *queue) {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			delete(c.queues, key)
			c.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		c.mu.Unlock()
		job()
	}
}
