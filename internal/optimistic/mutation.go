package optimistic

import (
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/view"
)

// Entity is what the coordinator needs from a list element. Every method
// returns a modified copy; the receiver is never changed.
type Entity[T any] interface {
	view.Keyed
	WithID(models.ID) T
	WithSyncState(models.SyncState) T
	Relation(name string) models.Relation
	WithRelation(name string, r models.Relation) T
	Patch(models.Row) (T, error)
}

// Codec maps an entity onto its remote table.
type Codec[T any] struct {
	Table  string
	Encode func(T) models.Row
	Decode func(models.Row) (T, error)
}

// RelationSpec describes the join table behind a toggleable relation: a
// row (FK = entity id, UserColumn = actor) exists while the relation is on.
type RelationSpec struct {
	Table      string
	FK         string
	UserColumn string
}

// Kind is the kind of a mutation.
type Kind int

const (
	KindCreate Kind = iota
	KindUpdate
	KindDelete
	KindToggle
)

func (k Kind) op() models.Op {
	switch k {
	case KindCreate:
		return models.OpInsert
	case KindDelete:
		return models.OpDelete
	}
	return models.OpUpdate
}

// Mutation is one user-initiated change.
type Mutation[T any] struct {
	Kind     Kind
	Entity   T          // create
	ID       models.ID  // update, delete, toggle
	Patch    models.Row // update
	Relation string     // toggle
	Actor    string     // toggle
	Extra    models.Row // toggle: extra columns for the relation row
}

// Create adds v. v must carry a client token; it is listed under a
// temporary id derived from it until the server confirms.
func Create[T any](v T) Mutation[T] { return Mutation[T]{Kind: KindCreate, Entity: v} }

// Update patches the entity with id.
func Update[T any](id models.ID, patch models.Row) Mutation[T] {
	return Mutation[T]{Kind: KindUpdate, ID: id, Patch: patch}
}

// Delete removes the entity with id.
func Delete[T any](id models.ID) Mutation[T] { return Mutation[T]{Kind: KindDelete, ID: id} }

// Toggle flips relation on the entity with id for actor.
func Toggle[T any](id models.ID, relation, actor string) Mutation[T] {
	return Mutation[T]{Kind: KindToggle, ID: id, Relation: relation, Actor: actor}
}

// Notice reports a mutation the coordinator had to reverse.
type Notice struct {
	Op    models.Op
	Table string
	ID    models.ID
	Err   error
}

// Ticket tracks the remote half of a mutation.
type Ticket struct {
	done chan struct{}
	id   models.ID
	err  error
}

func newTicket(id models.ID) *Ticket {
	return &Ticket{done: make(chan struct{}), id: id}
}

func doneTicket(id models.ID, err error) *Ticket {
	t := newTicket(id)
	t.finish(id, err)
	return t
}

func (t *Ticket) finish(id models.ID, err error) {
	t.id = id
	t.err = err
	close(t.done)
}

// Done is closed once the remote outcome is known.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the outcome is known and returns the remote error, nil
// when the mutation was confirmed or turned out to be a no-op.
func (t *Ticket) Wait() error {
	<-t.done
	return t.err
}

// ID is the entity's id once Done is closed: the server id for a confirmed
// create.
func (t *Ticket) ID() models.ID {
	<-t.done
	return t.id
}
