// Package feed keeps the in-memory feed consistent with the realtime change
// stream and applies the user's own post mutations optimistically.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/view"
)

const (
	tablePosts    = "posts"
	tableProfiles = "profiles"
	tableLikes    = "post_likes"
	tableVotes    = "poll_votes"

	DefaultPageSize = 20
	DefaultTimeout  = 10 * time.Second
)

// Event describes a change the adapter applied to the list.
type Event struct {
	Type   remote.EventType
	ID     models.ID
	Result view.MergeResult
}

type Options struct {
	PageSize int
	// Timeout bounds the re-fetch behind each realtime insert;
	// DefaultTimeout when zero.
	Timeout time.Duration
	// OnChange is called after each applied event.
	OnChange func(Event)
	Log      logging.Logger
}

// Adapter owns the main feed list: newest first, posts outside any space.
type Adapter struct {
	store  remote.Store
	sub    remote.Subscriber
	viewer string
	list   *view.List[models.Post]
	opts   Options
	log    logging.Logger

	mu     sync.Mutex
	handle remote.Handle
	ctx    context.Context
}

func NewAdapter(store remote.Store, sub remote.Subscriber, viewer string, opts Options) *Adapter {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Adapter{
		store:  store,
		sub:    sub,
		viewer: viewer,
		list:   view.NewList[models.Post](),
		opts:   opts,
		log:    opts.Log.With("module", "feed"),
	}
}

// List is the feed view shared with the Posts service.
func (a *Adapter) List() *view.List[models.Post] { return a.list }

func feedFilters() []remote.Filter {
	return []remote.Filter{remote.IsNull("space_id")}
}

// Load replaces the list with the newest page.
func (a *Adapter) Load(ctx context.Context) error {
	rows, err := a.store.Select(ctx, tablePosts, remote.Query{
		Filters: feedFilters(),
		Order:   []remote.Order{remote.Desc("created_at")},
		Limit:   a.opts.PageSize,
	})
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}
	posts := make([]models.Post, 0, len(rows))
	for _, row := range rows {
		p, err := models.DecodePost(row)
		if err != nil {
			a.log.Warn(ctx, "skipping malformed post", "err", err)
			continue
		}
		posts = append(posts, p)
	}
	posts, err = a.hydrate(ctx, posts)
	if err != nil {
		return err
	}
	a.list.Replace(posts)
	return nil
}

// Start subscribes to post changes. Call Stop to unsubscribe.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle != 0 {
		return nil
	}
	a.ctx = ctx
	h, err := a.sub.Subscribe(ctx, tablePosts, feedFilters(), remote.Handlers{
		OnInsert: a.onInsert,
		OnUpdate: a.onUpdate,
		OnDelete: a.onDelete,
	})
	if err != nil {
		return fmt.Errorf("subscribe to feed: %w", err)
	}
	a.handle = h
	return nil
}

func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.handle != 0 {
		a.sub.Unsubscribe(a.handle)
		a.handle = 0
	}
}

func (a *Adapter) baseCtx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// onInsert re-fetches the post with its joined fields and merges it unless
// it is already listed, either under its id or as the viewer's own pending
// create.
func (a *Adapter) onInsert(c remote.Change) {
	ctx := a.baseCtx()
	id := c.Record.String("id")
	if id == "" {
		return
	}
	if _, _, ok := a.list.Get(models.Permanent(id)); ok {
		a.emit(Event{Type: c.Type, ID: models.Permanent(id), Result: view.MergeDuplicate})
		return
	}

	fctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	p, err := a.Fetch(fctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return
		}
		a.log.Warn(ctx, "re-fetch failed, merging raw change", "post_id", id, "err", err)
		if p, err = models.DecodePost(c.Record); err != nil {
			a.log.Warn(ctx, "dropping undecodable post change", "post_id", id, "err", err)
			return
		}
	}
	res := a.list.MergeConfirmed(p)
	a.emit(Event{Type: c.Type, ID: p.ID, Result: res})
}

// onUpdate patches the columns present in the change. Unknown ids are
// ignored and the list order is kept.
func (a *Adapter) onUpdate(c remote.Change) {
	id := c.Record.String("id")
	if id == "" {
		return
	}
	_, _, err := a.list.Update(models.Permanent(id), func(p models.Post) (models.Post, error) {
		return p.Patch(c.Record)
	})
	switch {
	case errors.Is(err, common.ErrNotFound):
		return
	case err != nil:
		a.log.Warn(a.baseCtx(), "failed to apply post update", "post_id", id, "err", err)
		return
	}
	a.emit(Event{Type: c.Type, ID: models.Permanent(id)})
}

func (a *Adapter) onDelete(c remote.Change) {
	id := c.Old.String("id")
	if id == "" {
		return
	}
	if _, _, ok := a.list.Remove(models.Permanent(id)); ok {
		a.emit(Event{Type: c.Type, ID: models.Permanent(id)})
	}
}

func (a *Adapter) emit(e Event) {
	if a.opts.OnChange != nil {
		a.opts.OnChange(e)
	}
}

// Fetch loads one post with its author and the viewer's relation state.
func (a *Adapter) Fetch(ctx context.Context, id string) (models.Post, error) {
	rows, err := a.store.Select(ctx, tablePosts, remote.Query{
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		return models.Post{}, fmt.Errorf("fetch post %s: %w", id, err)
	}
	if len(rows) == 0 {
		return models.Post{}, fmt.Errorf("post %s: %w", id, common.ErrNotFound)
	}
	p, err := models.DecodePost(rows[0])
	if err != nil {
		return models.Post{}, err
	}
	hydrated, err := a.hydrate(ctx, []models.Post{p})
	if err != nil {
		return models.Post{}, err
	}
	return hydrated[0], nil
}

// hydrate joins author profiles and the viewer's like and vote state in
// one query per table.
func (a *Adapter) hydrate(ctx context.Context, posts []models.Post) ([]models.Post, error) {
	if len(posts) == 0 {
		return posts, nil
	}
	ids := make([]string, 0, len(posts))
	owners := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID.ServerID())
		owners = append(owners, p.OwnerID)
	}

	profileRows, err := a.store.Select(ctx, tableProfiles, remote.Where(remote.In("id", owners)))
	if err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}
	profiles := make(map[string]models.Profile, len(profileRows))
	for _, row := range profileRows {
		if pr, err := models.DecodeProfile(row); err == nil {
			profiles[pr.ID] = pr
		}
	}

	on := make(map[string]map[string]bool)
	for rel, table := range map[string]string{models.RelationLike: tableLikes, models.RelationVote: tableVotes} {
		rows, err := a.store.Select(ctx, table, remote.Where(
			remote.In("post_id", ids),
			remote.Eq("user_id", a.viewer),
		))
		if err != nil {
			return nil, fmt.Errorf("load %s state: %w", rel, err)
		}
		set := make(map[string]bool, len(rows))
		for _, row := range rows {
			set[row.String("post_id")] = true
		}
		on[rel] = set
	}

	out := make([]models.Post, len(posts))
	for i, p := range posts {
		if pr, ok := profiles[p.OwnerID]; ok {
			pr := pr
			p.Author = &pr
		}
		for rel, set := range on {
			r := p.Relation(rel)
			r.On = set[p.ID.ServerID()]
			p = p.WithRelation(rel, r)
		}
		out[i] = p
	}
	return out, nil
}
