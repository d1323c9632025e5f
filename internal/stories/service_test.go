package stories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/memory"
	"github.com/dmitrijs2005/socialsync/internal/testutil"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func storyRow(id, owner string, created, expires time.Time, privacy models.Privacy) remote.Row {
	return remote.Row{
		"id": id, "owner_id": owner, "kind": "text", "body": "hi " + id,
		"privacy_level": string(privacy), "created_at": created, "expires_at": expires,
	}
}

func newService(t *testing.T) (*Service, *memory.Store, *testutil.FakeClock) {
	t.Helper()
	store := memory.New()
	clock := testutil.NewFakeClock(t0)
	return NewService(store, Options{Blobs: store, Clock: clock}), store, clock
}

func ids(stories []models.Story) []string {
	out := make([]string, 0, len(stories))
	for _, s := range stories {
		out = append(out, s.ID)
	}
	return out
}

func TestListActive_ExpiryBoundary(t *testing.T) {
	svc, store, clock := newService(t)
	store.Seed("stories",
		storyRow("at-now", "a", t0.Add(-24*time.Hour), t0, models.PrivacyPublic),
		storyRow("just-after", "a", t0.Add(-23*time.Hour), t0.Add(time.Millisecond), models.PrivacyPublic),
		storyRow("old", "a", t0.Add(-50*time.Hour), t0.Add(-2*time.Hour), models.PrivacyPublic),
	)

	res, err := svc.ListActive(context.Background(), "viewer")
	require.NoError(t, err)
	require.Len(t, res.Others, 1)
	assert.Equal(t, []string{"just-after"}, ids(res.Others[0].Stories))

	clock.Advance(time.Millisecond)
	res, err = svc.ListActive(context.Background(), "viewer")
	require.NoError(t, err)
	assert.Empty(t, res.Others)
}

func TestListActive_GroupsAndVisibility(t *testing.T) {
	svc, store, _ := newService(t)
	exp := t0.Add(10 * time.Hour)
	store.Seed("stories",
		storyRow("b1", "bob", t0.Add(-5*time.Hour), exp, models.PrivacyPublic),
		storyRow("me1", "me", t0.Add(-4*time.Hour), exp, models.PrivacyOnlyMe),
		storyRow("a1", "alice", t0.Add(-3*time.Hour), exp, models.PrivacyFollowers),
		storyRow("b2", "bob", t0.Add(-2*time.Hour), exp, models.PrivacyPublic),
		storyRow("c1", "carol", t0.Add(-90*time.Minute), exp, models.PrivacyPublic),
		storyRow("h1", "hidden", t0.Add(-80*time.Minute), exp, models.PrivacyOnlyMe),
		storyRow("d1", "dave", t0.Add(-70*time.Minute), exp, models.PrivacyFollowers),
	)
	store.Seed("blocks", remote.Row{"blocker_id": "carol", "blocked_id": "me"})
	store.Seed("follows", remote.Row{"follower_id": "me", "following_id": "alice"})

	res, err := svc.ListActive(context.Background(), "me")
	require.NoError(t, err)

	assert.Equal(t, []string{"me1"}, ids(res.Own))
	require.Len(t, res.Others, 2)
	assert.Equal(t, "bob", res.Others[0].OwnerID)
	assert.Equal(t, []string{"b1", "b2"}, ids(res.Others[0].Stories))
	assert.Equal(t, "alice", res.Others[1].OwnerID)
	assert.Equal(t, []string{"a1"}, ids(res.Others[1].Stories))
}

func TestRecordView_Idempotent(t *testing.T) {
	svc, store, _ := newService(t)
	store.Seed("stories", storyRow("s1", "owner", t0, t0.Add(time.Hour), models.PrivacyPublic))
	story := models.Story{ID: "s1", OwnerID: "owner"}
	ctx := context.Background()

	assert.True(t, svc.RecordView(ctx, story, "v1"))
	assert.False(t, svc.RecordView(ctx, story, "v1"))

	require.Len(t, store.Rows("story_views"), 1)
	assert.EqualValues(t, 1, store.Rows("stories")[0]["view_count"])

	viewers, err := svc.Viewers(ctx, story, "owner")
	require.NoError(t, err)
	require.Len(t, viewers, 1)
	assert.Equal(t, "v1", viewers[0].ViewerID)
}

func TestRecordView_SelfViewAndFailuresAreSilent(t *testing.T) {
	svc, store, _ := newService(t)
	story := models.Story{ID: "s1", OwnerID: "owner"}

	assert.False(t, svc.RecordView(context.Background(), story, "owner"))
	assert.Zero(t, store.Calls("insert", "story_views"))

	store.FailOn("insert", "story_views", errors.New("boom"))
	assert.False(t, svc.RecordView(context.Background(), story, "v1"))
	assert.Empty(t, store.Rows("story_views"))
}

func TestCreate_Validation(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	cases := map[string]CreateInput{
		"bad ttl":       {OwnerID: "u", Kind: models.KindText, Body: "x", TTL: time.Hour},
		"empty text":    {OwnerID: "u", Kind: models.KindText, Body: "  ", TTL: models.StoryTTL24h},
		"one option":    {OwnerID: "u", Kind: models.KindPoll, Body: "q?", PollOptions: []string{"a", " "}, TTL: models.StoryTTL24h},
		"no media":      {OwnerID: "u", Kind: models.KindImage, TTL: models.StoryTTL12h},
		"no owner":      {Kind: models.KindText, Body: "x", TTL: models.StoryTTL12h},
		"unknown kind":  {OwnerID: "u", Kind: "gif", Body: "x", TTL: models.StoryTTL12h},
		"weird privacy": {OwnerID: "u", Kind: models.KindText, Body: "x", TTL: models.StoryTTL12h, Privacy: "friends"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, in)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
	assert.Zero(t, store.TotalCalls())
}

func TestCreate_UploadsMediaAndSetsExpiry(t *testing.T) {
	svc, store, _ := newService(t)

	st, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "u1", Kind: models.KindImage, Media: []byte("png"), MediaName: "cat.png",
		ContentType: "image/png", TTL: models.StoryTTL48h,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, st.ID)
	assert.Equal(t, models.PrivacyPublic, st.Privacy)
	assert.True(t, st.ExpiresAt.Equal(t0.Add(48*time.Hour)))
	assert.Contains(t, st.MediaRef, "memory://media/u1/2025/03/")
	assert.Equal(t, 1, store.Calls("insert", "stories"))
}

func TestCreate_PollKeepsNonEmptyOptions(t *testing.T) {
	svc, _, _ := newService(t)
	st, err := svc.Create(context.Background(), CreateInput{
		OwnerID: "u1", Kind: models.KindPoll, Body: "lunch?", PollOptions: []string{"pizza", "", "sushi"},
		TTL: models.StoryTTL12h,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pizza", "sushi"}, st.PollOptions)
}

func TestReactions_Idempotent(t *testing.T) {
	svc, store, _ := newService(t)
	store.Seed("stories", storyRow("s1", "owner", t0, t0.Add(time.Hour), models.PrivacyPublic))
	ctx := context.Background()

	require.NoError(t, svc.React(ctx, "s1", "v1"))
	require.NoError(t, svc.React(ctx, "s1", "v1"))
	assert.Len(t, store.Rows("story_reactions"), 1)

	require.NoError(t, svc.Unreact(ctx, "s1", "v1"))
	require.NoError(t, svc.Unreact(ctx, "s1", "v1"))
	assert.Empty(t, store.Rows("story_reactions"))
}

func TestOwnerOnlyOperations(t *testing.T) {
	svc, store, _ := newService(t)
	store.Seed("stories", storyRow("s1", "owner", t0, t0.Add(time.Hour), models.PrivacyPublic))
	story := models.Story{ID: "s1", OwnerID: "owner"}
	ctx := context.Background()

	assert.ErrorIs(t, svc.Delete(ctx, story, "intruder"), common.ErrForbidden)
	_, err := svc.Viewers(ctx, story, "intruder")
	assert.ErrorIs(t, err, common.ErrForbidden)
	assert.Len(t, store.Rows("stories"), 1)

	require.NoError(t, svc.Delete(ctx, story, "owner"))
	assert.Empty(t, store.Rows("stories"))
	require.NoError(t, svc.Delete(ctx, story, "owner"))
}

func TestVote_NotSupported(t *testing.T) {
	svc, _, _ := newService(t)
	err := svc.Vote(context.Background(), models.Story{ID: "s1"}, "u", 0)
	assert.ErrorIs(t, err, common.ErrNotSupported)
}
