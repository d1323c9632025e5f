package chat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/mirror"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/memory"
	"github.com/dmitrijs2005/socialsync/internal/testutil"
)

var at = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *memory.Store, *mirror.Store) {
	t.Helper()
	local, err := mirror.Open(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })
	store := memory.New()
	svc := New(store, local, "u1", Options{Clock: testutil.NewFakeClock(at)})
	t.Cleanup(svc.Flush)
	return svc, store, local
}

func TestSend_AppendsAndMirrors(t *testing.T) {
	svc, store, local := setup(t)
	ctx := context.Background()

	first, t1, err := svc.Send(ctx, "c1", "hi")
	require.NoError(t, err)
	assert.True(t, first.ID.IsTemporary())
	_, t2, err := svc.Send(ctx, "c1", "there")
	require.NoError(t, err)

	msgs := svc.Thread("c1").Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"hi", "there"}, []string{msgs[0].Content, msgs[1].Content})

	require.NoError(t, t1.Wait())
	require.NoError(t, t2.Wait())
	svc.Flush()

	rows := store.Rows("messages")
	require.Len(t, rows, 2)
	assert.Equal(t, "c1", rows[0].String("chat_id"))
	assert.Equal(t, "u1", rows[0].String("sender_id"))
	assert.Equal(t, "hi", rows[0].String("content"))

	mirrored, err := local.Messages.List(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, mirrored, 2)
	for _, m := range mirrored {
		assert.False(t, m.ID.IsTemporary())
		assert.Equal(t, models.SyncSynced, m.SyncState)
	}
}

func TestSend_Validation(t *testing.T) {
	svc, store, _ := setup(t)
	_, _, err := svc.Send(context.Background(), "c1", "   ")
	assert.ErrorIs(t, err, common.ErrValidation)
	_, _, err = svc.Send(context.Background(), "", "x")
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Zero(t, store.TotalCalls())
}

func TestSend_FailureRemovesMessage(t *testing.T) {
	svc, store, local := setup(t)
	ctx := context.Background()
	store.FailOn("insert", "messages", errors.New("offline"))

	_, ticket, err := svc.Send(ctx, "c1", "lost")
	require.NoError(t, err)
	require.Error(t, ticket.Wait())
	svc.Flush()

	assert.Empty(t, svc.Thread("c1").Messages())
	mirrored, err := local.Messages.List(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, mirrored)
}

func TestHistory_FallsBackToMirror(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	for i, content := range []string{"one", "two", "three"} {
		store.Seed("messages", remote.Row{
			"id": content, "chat_id": "c1", "sender_id": "u2", "content": content,
			"created_at": at.Add(time.Duration(i) * time.Minute),
		})
	}

	msgs, err := svc.History(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
	assert.Len(t, svc.Thread("c1").Messages(), 2)

	store.SetOffline(true)
	cached, err := svc.History(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "two", cached[0].Content)
}

// gatedStore holds inserts until gate is closed.
type gatedStore struct {
	*memory.Store
	gate chan struct{}
}

func (g *gatedStore) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	<-g.gate
	return g.Store.Insert(ctx, table, row)
}

func TestHistory_KeepsPendingSends(t *testing.T) {
	_, store, local := setup(t)
	gated := &gatedStore{Store: store, gate: make(chan struct{})}
	svc := New(gated, local, "u1", Options{Clock: testutil.NewFakeClock(at)})
	ctx := context.Background()
	store.Seed("messages", remote.Row{"id": "m1", "chat_id": "c1", "sender_id": "u2", "content": "old", "created_at": at})

	_, ticket, err := svc.Send(ctx, "c1", "pending")
	require.NoError(t, err)

	_, err = svc.History(ctx, "c1", 0)
	require.NoError(t, err)
	msgs := svc.Thread("c1").Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "old", msgs[0].Content)
	assert.True(t, msgs[1].ID.IsTemporary())

	close(gated.gate)
	require.NoError(t, ticket.Wait())
	svc.Flush()
}

func TestCacheChats(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	store.Seed("chats",
		remote.Row{"id": "c1", "title": "old", "member_ids": []string{"u1", "u2"}, "last_message_at": at},
		remote.Row{"id": "c2", "title": "new", "member_ids": []string{"u1"}, "last_message_at": at.Add(time.Hour)},
		remote.Row{"id": "c3", "title": "not mine", "member_ids": []string{"u9"}, "last_message_at": at},
	)

	chats, err := svc.CacheChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "c2", chats[0].ID)

	store.SetOffline(true)
	cached, err := svc.CacheChats(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, []string{"c2", "c1"}, []string{cached[0].ID, cached[1].ID})
}
