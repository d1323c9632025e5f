package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

func TestCreatePost_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.posts.CreatePost(ctx, NewPost{Body: "   "})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, _, err = f.posts.CreatePost(ctx, NewPost{Kind: models.KindPoll, Body: "q", PollOptions: []string{"only"}})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, _, err = f.posts.CreatePost(ctx, NewPost{Kind: "reel", Body: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)

	assert.Zero(t, f.adapter.List().Len())
	assert.Zero(t, f.store.TotalCalls())
}

func TestCreatePost_WithMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, ticket, err := f.posts.CreatePost(ctx, NewPost{Kind: models.KindImage, Media: []byte("img"), MediaName: "a.png", ContentType: "image/png"})
	require.NoError(t, err)
	require.NoError(t, ticket.Wait())
	assert.Contains(t, p.MediaRef, "memory://media/me/")
	assert.Equal(t, p.MediaRef, f.store.Rows("posts")[0].String("media_ref"))
}

func TestEditAndDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed("posts", remote.Row{"id": "p1", "owner_id": viewer, "kind": "text", "body": "v1", "created_at": base})
	require.NoError(t, f.adapter.Load(ctx))

	_, err := f.posts.EditPost(ctx, models.Permanent("p1"), " ")
	assert.ErrorIs(t, err, common.ErrValidation)

	ticket, err := f.posts.EditPost(ctx, models.Permanent("p1"), "v2")
	require.NoError(t, err)
	p, _, _ := f.adapter.List().Get(models.Permanent("p1"))
	assert.Equal(t, "v2", p.Body)
	require.NoError(t, ticket.Wait())
	assert.Equal(t, "v2", f.store.Rows("posts")[0].String("body"))

	ticket, err = f.posts.DeletePost(ctx, models.Permanent("p1"))
	require.NoError(t, err)
	assert.Zero(t, f.adapter.List().Len())
	require.NoError(t, ticket.Wait())
	assert.Empty(t, f.store.Rows("posts"))
}

func TestVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed("posts",
		remote.Row{"id": "poll", "owner_id": "bob", "kind": "poll", "body": "lunch?", "poll_options": []string{"pizza", "sushi"}, "created_at": base},
		remote.Row{"id": "text", "owner_id": "bob", "kind": "text", "body": "hi", "created_at": base},
	)
	require.NoError(t, f.adapter.Load(ctx))

	_, err := f.posts.Vote(ctx, models.Permanent("poll"), 2)
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = f.posts.Vote(ctx, models.Permanent("text"), 0)
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = f.posts.Vote(ctx, models.Permanent("missing"), 0)
	assert.ErrorIs(t, err, common.ErrNotFound)

	ticket, err := f.posts.Vote(ctx, models.Permanent("poll"), 1)
	require.NoError(t, err)
	require.NoError(t, ticket.Wait())

	votes := f.store.Rows("poll_votes")
	require.Len(t, votes, 1)
	assert.EqualValues(t, 1, votes[0]["option_index"])
	p, _, _ := f.adapter.List().Get(models.Permanent("poll"))
	assert.Equal(t, models.Relation{On: true, Count: 1}, p.Relation(models.RelationVote))

	_, err = f.posts.Vote(ctx, models.Permanent("poll"), 0)
	assert.ErrorIs(t, err, common.ErrValidation)
	votes = f.store.Rows("poll_votes")
	require.Len(t, votes, 1)
	assert.EqualValues(t, 1, votes[0]["option_index"])

	ticket, err = f.posts.Vote(ctx, models.Permanent("poll"), 1)
	require.NoError(t, err)
	require.NoError(t, ticket.Wait())
	assert.Empty(t, f.store.Rows("poll_votes"))

	ticket, err = f.posts.Vote(ctx, models.Permanent("poll"), 0)
	require.NoError(t, err)
	require.NoError(t, ticket.Wait())
	votes = f.store.Rows("poll_votes")
	require.Len(t, votes, 1)
	assert.EqualValues(t, 0, votes[0]["option_index"])
}

func TestVote_OtherOptionRejectedAcrossSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed("posts",
		remote.Row{"id": "poll", "owner_id": "bob", "kind": "poll", "body": "lunch?", "poll_options": []string{"pizza", "sushi"}, "created_at": base},
	)
	f.store.Seed("poll_votes", remote.Row{"id": "v1", "post_id": "poll", "user_id": viewer, "option_index": 0})
	require.NoError(t, f.adapter.Load(ctx))
	p, _, ok := f.adapter.List().Get(models.Permanent("poll"))
	require.True(t, ok)
	require.True(t, p.Relation(models.RelationVote).On)

	_, err := f.posts.Vote(ctx, models.Permanent("poll"), 1)
	assert.ErrorIs(t, err, common.ErrValidation)
	require.Len(t, f.store.Rows("poll_votes"), 1)

	ticket, err := f.posts.Vote(ctx, models.Permanent("poll"), 0)
	require.NoError(t, err)
	require.NoError(t, ticket.Wait())
	assert.Empty(t, f.store.Rows("poll_votes"))
}

func TestComments_ThreadOrder(t *testing.T) {
	f := newFixture(t)
	f.store.Seed("comments",
		remote.Row{"id": "c1", "post_id": "p1", "author_id": "bob", "body": "root", "created_at": base},
		remote.Row{"id": "c2", "post_id": "p1", "author_id": "me", "body": "root 2", "created_at": base.Add(1)},
		remote.Row{"id": "c3", "post_id": "p1", "parent_id": "c1", "author_id": "me", "body": "reply", "created_at": base.Add(2)},
		remote.Row{"id": "c4", "post_id": "other", "author_id": "me", "body": "elsewhere", "created_at": base},
	)

	tree, err := f.posts.Comments(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, tree, 3)
	assert.Equal(t, []string{"c1", "c3", "c2"}, []string{tree[0].ID, tree[1].ID, tree[2].ID})
	assert.Equal(t, []int{0, 1, 0}, []int{tree[0].Depth, tree[1].Depth, tree[2].Depth})
}
