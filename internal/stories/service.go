// Package stories manages time-limited content: creation, visibility
// filtering, view and reaction bookkeeping, and sequenced playback.
package stories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/blob"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

const (
	tableStories   = "stories"
	tableViews     = "story_views"
	tableReactions = "story_reactions"
)

// Options configures a Service. Zero values select the system clock, a
// no-op logger and relations read from the store.
type Options struct {
	Blobs       remote.BlobStore
	MediaBucket string
	Relations   Relations
	Clock       timex.Clock
	Log         logging.Logger
}

type Service struct {
	store       remote.Store
	blobs       remote.BlobStore
	mediaBucket string
	relations   Relations
	clock       timex.Clock
	log         logging.Logger
}

func NewService(store remote.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = timex.System()
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Relations == nil {
		opts.Relations = RemoteRelations{Store: store}
	}
	if opts.MediaBucket == "" {
		opts.MediaBucket = "media"
	}
	return &Service{
		store:       store,
		blobs:       opts.Blobs,
		mediaBucket: opts.MediaBucket,
		relations:   opts.Relations,
		clock:       opts.Clock,
		log:         opts.Log.With("module", "stories"),
	}
}

// CreateInput describes a new story. Media, when set, is uploaded and
// referenced by the story.
type CreateInput struct {
	OwnerID     string
	Kind        models.Kind
	Body        string
	Media       []byte
	MediaName   string
	ContentType string
	PollOptions []string
	Privacy     models.Privacy
	TTL         time.Duration
}

func (in CreateInput) validate() error {
	switch {
	case in.OwnerID == "":
		return fmt.Errorf("story owner is required: %w", common.ErrValidation)
	case !in.Kind.Valid():
		return fmt.Errorf("unknown story kind %q: %w", in.Kind, common.ErrValidation)
	case !models.ValidStoryTTL(in.TTL):
		return fmt.Errorf("story ttl %s not one of 12h, 24h, 48h: %w", in.TTL, common.ErrValidation)
	case in.Privacy != "" && !in.Privacy.Valid():
		return fmt.Errorf("unknown privacy %q: %w", in.Privacy, common.ErrValidation)
	}

	switch in.Kind {
	case models.KindPoll:
		if strings.TrimSpace(in.Body) == "" {
			return fmt.Errorf("poll question is empty: %w", common.ErrValidation)
		}
		n := 0
		for _, o := range in.PollOptions {
			if strings.TrimSpace(o) != "" {
				n++
			}
		}
		if n < 2 {
			return fmt.Errorf("poll needs at least 2 options: %w", common.ErrValidation)
		}
	case models.KindImage, models.KindVideo, models.KindVoice, models.KindFile:
		if len(in.Media) == 0 && strings.TrimSpace(in.Body) == "" {
			return fmt.Errorf("%s story has no media: %w", in.Kind, common.ErrValidation)
		}
	default:
		if strings.TrimSpace(in.Body) == "" {
			return fmt.Errorf("story content is empty: %w", common.ErrValidation)
		}
	}
	return nil
}

// Create validates in, uploads its media and inserts the story. The expiry
// is creation time plus the TTL.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Story, error) {
	if err := in.validate(); err != nil {
		return models.Story{}, err
	}
	now := s.clock.Now().UTC()

	story := models.Story{
		OwnerID:   in.OwnerID,
		Kind:      in.Kind,
		Body:      in.Body,
		Privacy:   in.Privacy,
		CreatedAt: now,
		ExpiresAt: now.Add(in.TTL),
	}
	if story.Privacy == "" {
		story.Privacy = models.PrivacyPublic
	}
	for _, o := range in.PollOptions {
		if o = strings.TrimSpace(o); o != "" {
			story.PollOptions = append(story.PollOptions, o)
		}
	}

	if len(in.Media) > 0 {
		if s.blobs == nil {
			return models.Story{}, fmt.Errorf("media upload: %w", common.ErrNotSupported)
		}
		key := blob.ObjectKey(in.OwnerID, in.MediaName, now)
		if err := s.blobs.Upload(ctx, s.mediaBucket, key, in.Media, in.ContentType); err != nil {
			return models.Story{}, fmt.Errorf("upload story media: %w", err)
		}
		story.MediaRef = s.blobs.PublicURL(s.mediaBucket, key)
	}

	row, err := s.store.Insert(ctx, tableStories, story.Row())
	if err != nil {
		return models.Story{}, fmt.Errorf("create story: %w", err)
	}
	created, err := models.DecodeStory(row)
	if err != nil {
		return models.Story{}, err
	}
	s.log.Info(ctx, "story created", "story_id", created.ID, "expires_at", created.ExpiresAt)
	return created, nil
}

// Active is the result of ListActive.
type Active struct {
	// Own holds the viewer's stories, oldest first.
	Own []models.Story
	// Others holds one group per owner in first-seen order.
	Others []models.StoryGroup
}

// ListActive returns every story visible to viewer right now. Expired
// stories are excluded by the query itself.
func (s *Service) ListActive(ctx context.Context, viewer string) (Active, error) {
	now := s.clock.Now()
	rows, err := s.store.Select(ctx, tableStories, remote.Query{
		Filters: []remote.Filter{remote.Gt("expires_at", now)},
		Order:   []remote.Order{remote.Asc("created_at")},
	})
	if err != nil {
		return Active{}, fmt.Errorf("list stories: %w", err)
	}

	var res Active
	var others []models.Story
	for _, row := range rows {
		st, err := models.DecodeStory(row)
		if err != nil {
			s.log.Warn(ctx, "skipping malformed story", "err", err)
			continue
		}
		if !st.ActiveAt(now) {
			continue
		}
		if st.OwnerID == viewer {
			res.Own = append(res.Own, st)
			continue
		}
		if st.Privacy == models.PrivacyOnlyMe {
			continue
		}
		others = append(others, st)
	}
	if len(others) == 0 {
		return res, nil
	}

	blocked, err := s.relations.BlockedBy(ctx, viewer)
	if err != nil {
		return Active{}, err
	}
	var following map[string]bool
	index := make(map[string]int)
	for _, st := range others {
		if blocked[st.OwnerID] {
			continue
		}
		if st.Privacy == models.PrivacyFollowers {
			if following == nil {
				if following, err = s.relations.Following(ctx, viewer); err != nil {
					return Active{}, err
				}
			}
			if !following[st.OwnerID] {
				continue
			}
		}
		i, ok := index[st.OwnerID]
		if !ok {
			i = len(res.Others)
			index[st.OwnerID] = i
			res.Others = append(res.Others, models.StoryGroup{OwnerID: st.OwnerID})
		}
		res.Others[i].Stories = append(res.Others[i].Stories, st)
	}
	return res, nil
}

// RecordView notes that viewer opened story. Self-views are not recorded,
// repeated views are absorbed by the unique key, and any other failure is
// logged and dropped so playback never waits on it. It reports whether a
// new record was written.
func (s *Service) RecordView(ctx context.Context, story models.Story, viewer string) bool {
	if viewer == "" || viewer == story.OwnerID {
		return false
	}
	_, err := s.store.Insert(ctx, tableViews, models.Row{
		"story_id":  story.ID,
		"viewer_id": viewer,
		"viewed_at": s.clock.Now().UTC(),
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, common.ErrDuplicate):
		return false
	default:
		s.log.Warn(ctx, "failed to record story view", "story_id", story.ID, "viewer_id", viewer, "err", err)
		return false
	}
}

// React adds user's reaction; reacting twice is a no-op.
func (s *Service) React(ctx context.Context, storyID, user string) error {
	_, err := s.store.Insert(ctx, tableReactions, models.Row{"story_id": storyID, "user_id": user})
	if err != nil && !errors.Is(err, common.ErrDuplicate) {
		return fmt.Errorf("react to story %s: %w", storyID, err)
	}
	return nil
}

// Unreact removes user's reaction if present.
func (s *Service) Unreact(ctx context.Context, storyID, user string) error {
	_, err := s.store.Delete(ctx, tableReactions, []remote.Filter{
		remote.Eq("story_id", storyID),
		remote.Eq("user_id", user),
	})
	if err != nil {
		return fmt.Errorf("remove reaction from story %s: %w", storyID, err)
	}
	return nil
}

// Delete removes story. Only its owner may delete it; a story that is
// already gone is not an error.
func (s *Service) Delete(ctx context.Context, story models.Story, requester string) error {
	if requester != story.OwnerID {
		return fmt.Errorf("delete story %s: %w", story.ID, common.ErrForbidden)
	}
	_, err := s.store.Delete(ctx, tableStories, []remote.Filter{
		remote.Eq("id", story.ID),
		remote.Eq("owner_id", story.OwnerID),
	})
	if err != nil {
		return fmt.Errorf("delete story %s: %w", story.ID, err)
	}
	return nil
}

// Viewers lists who has seen story, oldest view first. Owner only.
func (s *Service) Viewers(ctx context.Context, story models.Story, requester string) ([]models.ViewRecord, error) {
	if requester != story.OwnerID {
		return nil, fmt.Errorf("story %s viewers: %w", story.ID, common.ErrForbidden)
	}
	rows, err := s.store.Select(ctx, tableViews, remote.Query{
		Filters: []remote.Filter{remote.Eq("story_id", story.ID)},
		Order:   []remote.Order{remote.Asc("viewed_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("story %s viewers: %w", story.ID, err)
	}
	out := make([]models.ViewRecord, 0, len(rows))
	for _, row := range rows {
		v, err := models.DecodeViewRecord(row)
		if err != nil {
			s.log.Warn(ctx, "skipping malformed view record", "err", err)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Vote on a poll story is not implemented.
func (s *Service) Vote(context.Context, models.Story, string, int) error {
	return fmt.Errorf("poll story voting: %w", common.ErrNotSupported)
}
