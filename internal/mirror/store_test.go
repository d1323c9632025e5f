package mirror

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func vaultItem(id, owner, content string, at time.Time) models.VaultItem {
	return models.VaultItem{
		ID: id, OwnerID: owner, Type: models.VaultNote, Title: id,
		Content: content, CreatedAt: at, SyncState: models.SyncSynced,
	}
}

func TestVault_PutGetListUsage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Vault.Put(ctx, vaultItem("b", "u1", "12345", base.Add(time.Second))))
	require.NoError(t, s.Vault.Put(ctx, vaultItem("a", "u1", "123", base.Add(500*time.Millisecond))))
	big := vaultItem("c", "u1", "x", base.Add(2*time.Second))
	big.Metadata = map[string]string{"size": "1000"}
	require.NoError(t, s.Vault.Put(ctx, big))
	require.NoError(t, s.Vault.Put(ctx, vaultItem("z", "u2", "zz", base)))

	got, err := s.Vault.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "123", got.Content)
	assert.True(t, got.CreatedAt.Equal(base.Add(500*time.Millisecond)))

	list, err := s.Vault.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})

	usage, err := s.Vault.Usage(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3+5+1000), usage)

	usage, err = s.Vault.Usage(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, usage)
}

func TestVault_PutIsLastWriteWins(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	it := vaultItem("a", "u1", "old", time.Now())
	require.NoError(t, s.Vault.Put(ctx, it))
	it.Content = "new"
	it.SyncState = models.SyncFailed
	require.NoError(t, s.Vault.Put(ctx, it))

	got, err := s.Vault.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)
	assert.Equal(t, models.SyncFailed, got.SyncState)
}

func TestGet_MissingIsNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Vault.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestSwap_ReplacesAtomically(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	local := vaultItem(models.NewLocalID(), "u1", "draft", time.Now())
	require.NoError(t, s.Vault.Put(ctx, local))

	perm := local
	perm.ID = "perm-1"
	require.NoError(t, s.Vault.Swap(ctx, local.ID, perm))

	_, err := s.Vault.Get(ctx, local.ID)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	_, err = s.Vault.Get(ctx, "perm-1")
	assert.NoError(t, err)
}

func TestSwap_FailureKeepsOldRecord(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	local := vaultItem(models.NewLocalID(), "u1", "draft", time.Now())
	require.NoError(t, s.Vault.Put(ctx, local))

	bad := local
	bad.ID = ""
	require.Error(t, s.Vault.Swap(ctx, local.ID, bad))

	_, err := s.Vault.Get(ctx, local.ID)
	assert.NoError(t, err)
}

func TestMessages_BulkPutDeleteClear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now()

	msgs := []models.Message{
		{ID: models.Permanent("m1"), ChatID: "c1", SenderID: "u1", Content: "hi", CreatedAt: now},
		{ID: models.Permanent("m2"), ChatID: "c1", SenderID: "u2", Content: "yo", CreatedAt: now.Add(time.Second)},
		{ID: models.Permanent("m3"), ChatID: "c2", SenderID: "u2", Content: "elsewhere", CreatedAt: now},
	}
	require.NoError(t, s.Messages.BulkPut(ctx, msgs))

	list, err := s.Messages.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.Permanent("m2"), list[1].ID)

	require.NoError(t, s.Messages.Delete(ctx, "m1"))
	require.NoError(t, s.Messages.Delete(ctx, "m1"))
	list, err = s.Messages.List(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Messages.Clear(ctx))
	list, err = s.Messages.List(ctx, "c2")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestChats_ScopedByOwner(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Chats.Put(ctx, models.Chat{ID: "c1", OwnerID: "u1", Title: "team"}))
	list, err := s.Chats.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "team", list[0].Title)
}
