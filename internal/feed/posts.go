package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/optimistic"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/blob"
	"github.com/dmitrijs2005/socialsync/internal/timex"
	"github.com/dmitrijs2005/socialsync/internal/view"
)

var postCodec = optimistic.Codec[models.Post]{
	Table:  tablePosts,
	Encode: func(p models.Post) models.Row { return p.Row() },
	Decode: models.DecodePost,
}

// PostRelations maps the toggleable post relations to their join tables.
var PostRelations = map[string]optimistic.RelationSpec{
	models.RelationLike: {Table: tableLikes, FK: "post_id", UserColumn: "user_id"},
	models.RelationVote: {Table: tableVotes, FK: "post_id", UserColumn: "user_id"},
}

type PostsOptions struct {
	Timeout     time.Duration
	OnNotice    func(optimistic.Notice)
	Blobs       remote.BlobStore
	MediaBucket string
	// Author is attached to the viewer's own posts before confirmation.
	Author *models.Profile
	Clock  timex.Clock
	Log    logging.Logger
}

// Posts applies the viewer's post mutations to a feed list.
type Posts struct {
	coord  *optimistic.Coordinator[models.Post]
	store  remote.Store
	viewer string
	opts   PostsOptions

	mu    sync.Mutex
	votes map[string]int
}

func NewPosts(list *view.List[models.Post], store remote.Store, viewer string, opts PostsOptions) *Posts {
	if opts.Clock == nil {
		opts.Clock = timex.System()
	}
	if opts.MediaBucket == "" {
		opts.MediaBucket = "media"
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	coord := optimistic.New(list, store, postCodec, optimistic.Options{
		Timeout:   opts.Timeout,
		Relations: PostRelations,
		OnNotice:  opts.OnNotice,
		Log:       opts.Log,
	})
	return &Posts{coord: coord, store: store, viewer: viewer, opts: opts, votes: make(map[string]int)}
}

// Flush waits for in-flight remote writes.
func (s *Posts) Flush() { s.coord.Flush() }

// Pending lists mutations not yet confirmed.
func (s *Posts) Pending() []models.SyncQueueEntry { return s.coord.Pending() }

// NewPost is the input of CreatePost.
type NewPost struct {
	Kind        models.Kind
	Body        string
	SpaceID     string
	PollOptions []string
	Media       []byte
	MediaName   string
	ContentType string
}

func (in NewPost) validate() error {
	if !in.Kind.Valid() {
		return fmt.Errorf("unknown post kind %q: %w", in.Kind, common.ErrValidation)
	}
	if in.Kind == models.KindPoll {
		n := 0
		for _, o := range in.PollOptions {
			if strings.TrimSpace(o) != "" {
				n++
			}
		}
		if n < 2 {
			return fmt.Errorf("poll needs at least 2 options: %w", common.ErrValidation)
		}
	}
	if strings.TrimSpace(in.Body) == "" && len(in.Media) == 0 {
		return fmt.Errorf("post is empty: %w", common.ErrValidation)
	}
	return nil
}

// CreatePost lists the new post at the head of the feed under a temporary
// id and inserts it remotely. Media is uploaded before anything is listed.
func (s *Posts) CreatePost(ctx context.Context, in NewPost) (models.Post, *optimistic.Ticket, error) {
	if in.Kind == "" {
		in.Kind = models.KindText
	}
	if err := in.validate(); err != nil {
		return models.Post{}, nil, err
	}
	now := s.opts.Clock.Now().UTC()

	p := models.Post{
		ClientToken: uuid.NewString(),
		OwnerID:     s.viewer,
		SpaceID:     in.SpaceID,
		Kind:        in.Kind,
		Body:        in.Body,
		CreatedAt:   now,
		Author:      s.opts.Author,
	}
	for _, o := range in.PollOptions {
		if o = strings.TrimSpace(o); o != "" {
			p.PollOptions = append(p.PollOptions, o)
		}
	}
	if len(in.Media) > 0 {
		if s.opts.Blobs == nil {
			return models.Post{}, nil, fmt.Errorf("media upload: %w", common.ErrNotSupported)
		}
		key := blob.ObjectKey(s.viewer, in.MediaName, now)
		if err := s.opts.Blobs.Upload(ctx, s.opts.MediaBucket, key, in.Media, in.ContentType); err != nil {
			return models.Post{}, nil, fmt.Errorf("upload post media: %w", err)
		}
		p.MediaRef = s.opts.Blobs.PublicURL(s.opts.MediaBucket, key)
	}

	items, t, err := s.coord.Apply(ctx, optimistic.Create(p))
	if err != nil {
		return models.Post{}, nil, err
	}
	for _, it := range items {
		if it.ClientToken == p.ClientToken {
			return it, t, nil
		}
	}
	return p.WithID(models.Temporary(p.ClientToken)), t, nil
}

// EditPost replaces the body of a post.
func (s *Posts) EditPost(ctx context.Context, id models.ID, body string) (*optimistic.Ticket, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("post body is empty: %w", common.ErrValidation)
	}
	_, t, err := s.coord.Apply(ctx, optimistic.Update[models.Post](id, models.Row{
		"body":       body,
		"updated_at": s.opts.Clock.Now().UTC(),
	}))
	return t, err
}

func (s *Posts) DeletePost(ctx context.Context, id models.ID) (*optimistic.Ticket, error) {
	_, t, err := s.coord.Apply(ctx, optimistic.Delete[models.Post](id))
	return t, err
}

// ToggleLike flips the viewer's like on a post.
func (s *Posts) ToggleLike(ctx context.Context, id models.ID) (*optimistic.Ticket, error) {
	_, t, err := s.coord.Apply(ctx, optimistic.Toggle[models.Post](id, models.RelationLike, s.viewer))
	return t, err
}

// Vote toggles the viewer's vote for option on a poll post. A poll holds one
// vote per viewer, so voting again for the same option retracts it, while a
// vote for a different option is rejected with common.ErrValidation until the
// current one is retracted.
func (s *Posts) Vote(ctx context.Context, id models.ID, option int) (*optimistic.Ticket, error) {
	p, _, ok := s.coord.List().Get(id)
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, common.ErrNotFound)
	}
	if p.Kind != models.KindPoll {
		return nil, fmt.Errorf("post %s is not a poll: %w", id, common.ErrValidation)
	}
	if option < 0 || option >= len(p.PollOptions) {
		return nil, fmt.Errorf("poll option %d out of range: %w", option, common.ErrValidation)
	}
	if p.Relation(models.RelationVote).On {
		cur, ok, err := s.votedOption(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if ok && cur != option {
			return nil, fmt.Errorf("already voted for option %d on %s: %w", cur, id, common.ErrValidation)
		}
	}

	m := optimistic.Toggle[models.Post](id, models.RelationVote, s.viewer)
	m.Extra = models.Row{"option_index": option}
	items, t, err := s.coord.Apply(ctx, m)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.votes, p.ID.String())
	for _, it := range items {
		if it.ID == p.ID && it.Relation(models.RelationVote).On {
			s.votes[p.ID.String()] = option
		}
	}
	s.mu.Unlock()
	return t, nil
}

// votedOption returns the option the viewer voted for, from this session
// first and the backend otherwise.
func (s *Posts) votedOption(ctx context.Context, id models.ID) (int, bool, error) {
	s.mu.Lock()
	cur, ok := s.votes[id.String()]
	s.mu.Unlock()
	if ok || id.IsTemporary() {
		return cur, ok, nil
	}
	rows, err := s.store.Select(ctx, tableVotes, remote.Query{
		Filters: []remote.Filter{remote.Eq("post_id", id.ServerID()), remote.Eq("user_id", s.viewer)},
		Limit:   1,
	})
	if err != nil {
		return 0, false, fmt.Errorf("load vote on %s: %w", id, err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return optionIndex(rows[0]["option_index"])
}

func optionIndex(v any) (int, bool, error) {
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return int(n), true, nil
	case float64:
		return int(n), true, nil
	default:
		return 0, false, fmt.Errorf("unexpected option_index %T", v)
	}
}

// Comments returns a post's comments in thread order.
func (s *Posts) Comments(ctx context.Context, postID string) ([]ThreadedComment, error) {
	rows, err := s.store.Select(ctx, "comments", remote.Query{
		Filters: []remote.Filter{remote.Eq("post_id", postID)},
		Order:   []remote.Order{remote.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("load comments of %s: %w", postID, err)
	}
	comments := make([]models.Comment, 0, len(rows))
	for _, row := range rows {
		c, err := models.DecodeComment(row)
		if err != nil {
			s.opts.Log.Warn(ctx, "skipping malformed comment", "err", err)
			continue
		}
		comments = append(comments, c)
	}
	return BuildCommentTree(comments), nil
}
