// Package view holds the in-memory ordered lists that back feed and chat
// screens. Lists are keyed by entity id and kept in insertion order.
package view

import (
	"fmt"
	"sync"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
)

// Keyed is what a list needs to know about its elements.
type Keyed interface {
	EntityID() models.ID
	// Token is the client token the entity was created with, if any.
	Token() string
}

// MergeResult reports what MergeConfirmed did.
type MergeResult int

const (
	MergeInserted MergeResult = iota
	MergeRemapped
	MergeDuplicate
)

func (r MergeResult) String() string {
	switch r {
	case MergeInserted:
		return "inserted"
	case MergeRemapped:
		return "remapped"
	case MergeDuplicate:
		return "duplicate"
	}
	return fmt.Sprintf("MergeResult(%d)", int(r))
}

// List is an ordered, id-unique collection safe for concurrent use.
type List[T Keyed] struct {
	mu    sync.Mutex
	items []T
}

func NewList[T Keyed](items ...T) *List[T] {
	l := &List[T]{}
	l.Replace(items)
	return l
}

// Items returns a copy of the current contents.
func (l *List[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Replace swaps the whole contents, dropping later duplicates by id.
func (l *List[T]) Replace(items []T) {
	seen := make(map[models.ID]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.EntityID()]; dup {
			continue
		}
		seen[it.EntityID()] = struct{}{}
		out = append(out, it)
	}
	l.mu.Lock()
	l.items = out
	l.mu.Unlock()
}

// Get returns the entity with id and its position.
func (l *List[T]) Get(id models.ID) (T, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		var zero T
		return zero, -1, false
	}
	return l.items[i], i, true
}

// InsertHead prepends v unless an entity with the same id is present.
func (l *List[T]) InsertHead(v T) bool {
	return l.InsertAt(0, v)
}

// InsertAt puts v at position i, clamped to the list bounds, unless an
// entity with the same id is present.
func (l *List[T]) InsertAt(i int, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.indexOf(v.EntityID()) >= 0 {
		return false
	}
	l.insertAt(i, v)
	return true
}

// Set overwrites the entity with the same id in place.
func (l *List[T]) Set(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(v.EntityID())
	if i < 0 {
		return false
	}
	l.items[i] = v
	return true
}

// Update applies fn to the entity with id in place and returns the value
// before and after. Position is unchanged.
func (l *List[T]) Update(id models.ID, fn func(T) (T, error)) (before, after T, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		return before, after, fmt.Errorf("update %s: %w", id, common.ErrNotFound)
	}
	before = l.items[i]
	after, err = fn(before)
	if err != nil {
		return before, before, err
	}
	l.items[i] = after
	return before, after, nil
}

// Remove deletes the entity with id and returns it with its old position.
func (l *List[T]) Remove(id models.ID) (T, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(id)
	if i < 0 {
		var zero T
		return zero, -1, false
	}
	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	return v, i, true
}

// MergeConfirmed places a server-confirmed entity. If its id is already
// listed, any temporary entry carrying the same client token is dropped. If
// only a temporary entry with the same token exists, it is replaced in place.
// Otherwise v is inserted at the head.
func (l *List[T]) MergeConfirmed(v T) MergeResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmp := l.indexOfTemp(v.Token())
	if l.indexOf(v.EntityID()) >= 0 {
		if tmp >= 0 {
			l.items = append(l.items[:tmp], l.items[tmp+1:]...)
		}
		return MergeDuplicate
	}
	if tmp >= 0 {
		l.items[tmp] = v
		return MergeRemapped
	}
	l.insertAt(0, v)
	return MergeInserted
}

func (l *List[T]) insertAt(i int, v T) {
	i = max(0, min(i, len(l.items)))
	var zero T
	l.items = append(l.items, zero)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
}

func (l *List[T]) indexOf(id models.ID) int {
	for i, it := range l.items {
		if it.EntityID() == id {
			return i
		}
	}
	return -1
}

func (l *List[T]) indexOfTemp(token string) int {
	if token == "" {
		return -1
	}
	for i, it := range l.items {
		if it.EntityID().IsTemporary() && it.Token() == token {
			return i
		}
	}
	return -1
}
