package remote

import (
	"context"
	"sync"
)

type subscription struct {
	table   string
	filters []Filter
	h       Handlers
}

// Hub fans changes out to in-process subscriptions. Realtime adapters feed
// it with Publish; filters are evaluated against the new record, or the old
// one for deletes.
type Hub struct {
	mu   sync.RWMutex
	next Handle
	subs map[Handle]subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[Handle]subscription)}
}

func (h *Hub) Subscribe(_ context.Context, table string, filters []Filter, handlers Handlers) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.subs[h.next] = subscription{table: table, filters: filters, h: handlers}
	return h.next, nil
}

func (h *Hub) Unsubscribe(id Handle) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers c to every matching subscription. Handlers run on the
// caller's goroutine, outside the hub lock.
func (h *Hub) Publish(c Change) {
	row := c.Record
	if c.Type == EventDelete {
		row = c.Old
	}

	h.mu.RLock()
	var targets []Handlers
	for _, s := range h.subs {
		if s.table != c.Table {
			continue
		}
		filters := s.filters
		// Update and delete events may carry a partial row; filters only
		// apply to the columns it has.
		if c.Type != EventInsert {
			filters = presentFilters(filters, row)
		}
		if !Match(filters, row) {
			continue
		}
		targets = append(targets, s.h)
	}
	h.mu.RUnlock()

	for _, t := range targets {
		var fn func(Change)
		switch c.Type {
		case EventInsert:
			fn = t.OnInsert
		case EventUpdate:
			fn = t.OnUpdate
		case EventDelete:
			fn = t.OnDelete
		}
		if fn != nil {
			fn(c)
		}
	}
}

func presentFilters(filters []Filter, row Row) []Filter {
	out := filters[:0:0]
	for _, f := range filters {
		if row.Has(f.Column) {
			out = append(out, f)
		}
	}
	return out
}
