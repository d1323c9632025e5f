package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FiltersAndRoutesByType(t *testing.T) {
	h := NewHub()
	var inserts, updates, deletes []string

	id, err := h.Subscribe(context.Background(), "posts", []Filter{IsNull("space_id")}, Handlers{
		OnInsert: func(c Change) { inserts = append(inserts, c.Record.String("id")) },
		OnUpdate: func(c Change) { updates = append(updates, c.Record.String("id")) },
		OnDelete: func(c Change) { deletes = append(deletes, c.Old.String("id")) },
	})
	require.NoError(t, err)

	h.Publish(Change{Table: "posts", Type: EventInsert, Record: Row{"id": "a", "space_id": nil}})
	h.Publish(Change{Table: "posts", Type: EventInsert, Record: Row{"id": "b", "space_id": "s1"}})
	h.Publish(Change{Table: "stories", Type: EventInsert, Record: Row{"id": "c"}})
	h.Publish(Change{Table: "posts", Type: EventUpdate, Record: Row{"id": "a", "body": "x"}})
	h.Publish(Change{Table: "posts", Type: EventDelete, Old: Row{"id": "a"}})

	assert.Equal(t, []string{"a"}, inserts)
	assert.Equal(t, []string{"a"}, updates)
	assert.Equal(t, []string{"a"}, deletes)

	h.Unsubscribe(id)
	assert.Zero(t, h.Len())
	h.Publish(Change{Table: "posts", Type: EventInsert, Record: Row{"id": "d"}})
	assert.Equal(t, []string{"a"}, inserts)
}
