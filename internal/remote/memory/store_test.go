package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

func TestInsert_AssignsIDAndRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	row, err := s.Insert(ctx, "story_views", remote.Row{"story_id": "s1", "viewer_id": "v1"})
	require.NoError(t, err)
	assert.NotEmpty(t, row.String("id"))
	assert.NotEmpty(t, row.String("created_at"))

	_, err = s.Insert(ctx, "story_views", remote.Row{"story_id": "s1", "viewer_id": "v1"})
	assert.True(t, errors.Is(err, common.ErrDuplicate))
	assert.Len(t, s.Rows("story_views"), 1)
}

func TestInsert_EmptyClientTokensDoNotCollide(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Insert(ctx, "posts", remote.Row{"client_token": "", "body": "a"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "posts", remote.Row{"client_token": "", "body": "b"})
	require.NoError(t, err)
}

func TestSelect_FilterOrderLimit(t *testing.T) {
	s := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Seed("stories",
		remote.Row{"id": "b", "created_at": base.Add(2 * time.Hour)},
		remote.Row{"id": "a", "created_at": base.Add(time.Hour)},
		remote.Row{"id": "c", "created_at": base.Add(3 * time.Hour)},
	)

	rows, err := s.Select(context.Background(), "stories", remote.Query{
		Filters: []remote.Filter{remote.Gt("created_at", base.Add(time.Hour))},
		Order:   []remote.Order{remote.Asc("created_at")},
		Limit:   1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].String("id"))
}

func TestCounters_FollowRelationRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed("posts", remote.Row{"id": "p1", "like_count": 0})

	var updates []remote.Change
	_, err := s.Subscribe(ctx, "posts", nil, remote.Handlers{OnUpdate: func(c remote.Change) { updates = append(updates, c) }})
	require.NoError(t, err)

	_, err = s.Insert(ctx, "post_likes", remote.Row{"post_id": "p1", "user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), s.Rows("posts")[0]["like_count"])

	n, err := s.Delete(ctx, "post_likes", []remote.Filter{remote.Eq("post_id", "p1"), remote.Eq("user_id", "u1")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, float64(0), s.Rows("posts")[0]["like_count"])
	assert.Len(t, updates, 2)
}

func TestFaultsAndOffline(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailOn("insert", "posts", boom)
	_, err := s.Insert(ctx, "posts", remote.Row{"body": "x"})
	assert.True(t, errors.Is(err, boom))
	_, err = s.Insert(ctx, "stories", remote.Row{"body": "x"})
	assert.NoError(t, err)
	s.SetFault(nil)

	s.SetOffline(true)
	_, err = s.Select(ctx, "posts", remote.Query{})
	assert.True(t, errors.Is(err, common.ErrUnavailable))
	assert.Error(t, s.Ping(ctx))
	assert.Equal(t, 3, s.TotalCalls())
	assert.Equal(t, 2, s.Calls("insert", ""))
}

func TestUpdate_PublishesAndCounts(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed("posts", remote.Row{"id": "p1", "body": "a"}, remote.Row{"id": "p2", "body": "b"})

	n, err := s.Update(ctx, "posts", []remote.Filter{remote.Eq("id", "p2")}, remote.Row{"body": "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Update(ctx, "posts", []remote.Filter{remote.Eq("id", "gone")}, remote.Row{"body": "B"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBlobs(t *testing.T) {
	s := New()
	require.NoError(t, s.Upload(context.Background(), "media", "u1/a.png", []byte{1, 2}, "image/png"))
	b, ok := s.Blob("media", "u1/a.png")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)
	assert.Equal(t, "memory://media/u1/a.png", s.PublicURL("media", "u1/a.png"))
}
