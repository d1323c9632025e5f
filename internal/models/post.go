package models

import (
	"fmt"
	"time"
)

// Relation names used on posts.
const (
	RelationLike = "like"
	RelationVote = "vote"
)

// Post is a feed entry. Author and Relations are joined in by the fetcher;
// they are not columns of the posts table.
type Post struct {
	ID          ID                  `json:"id"`
	ClientToken string              `json:"client_token,omitempty"`
	OwnerID     string              `json:"owner_id"`
	SpaceID     string              `json:"space_id,omitempty"`
	Kind        Kind                `json:"kind"`
	Body        string              `json:"body"`
	MediaRef    string              `json:"media_ref,omitempty"`
	PollOptions []string            `json:"poll_options,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at,omitempty"`
	Author      *Profile            `json:"author,omitempty"`
	Relations   map[string]Relation `json:"relations,omitempty"`
	SyncState   SyncState           `json:"sync_state,omitempty"`
}

type postRow struct {
	ID          string     `json:"id,omitempty"`
	ClientToken string     `json:"client_token,omitempty"`
	OwnerID     string     `json:"owner_id"`
	SpaceID     *string    `json:"space_id"`
	Kind        Kind       `json:"kind"`
	Body        string     `json:"body"`
	MediaRef    string     `json:"media_ref,omitempty"`
	PollOptions []string   `json:"poll_options,omitempty"`
	LikeCount   int        `json:"like_count"`
	VoteCount   int        `json:"vote_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// DecodePost validates a posts row.
func DecodePost(row Row) (Post, error) {
	var w postRow
	if err := row.decodeInto(&w); err != nil {
		return Post{}, fmt.Errorf("decode post: %w", err)
	}
	if w.ID == "" {
		return Post{}, fmt.Errorf("decode post: %w", errMissing("id"))
	}
	if w.OwnerID == "" {
		return Post{}, fmt.Errorf("decode post %s: %w", w.ID, errMissing("owner_id"))
	}
	if !w.Kind.Valid() {
		return Post{}, fmt.Errorf("decode post %s: unknown kind %q", w.ID, w.Kind)
	}

	p := Post{
		ID:          ParseID(w.ID),
		ClientToken: w.ClientToken,
		OwnerID:     w.OwnerID,
		Kind:        w.Kind,
		Body:        w.Body,
		MediaRef:    w.MediaRef,
		PollOptions: w.PollOptions,
		CreatedAt:   w.CreatedAt,
		Relations: map[string]Relation{
			RelationLike: {Count: w.LikeCount},
			RelationVote: {Count: w.VoteCount},
		},
		SyncState: SyncSynced,
	}
	if w.SpaceID != nil {
		p.SpaceID = *w.SpaceID
	}
	if w.UpdatedAt != nil {
		p.UpdatedAt = *w.UpdatedAt
	}
	return p, nil
}

func (p Post) wire() postRow {
	w := postRow{
		ID:          p.ID.String(),
		ClientToken: p.ClientToken,
		OwnerID:     p.OwnerID,
		Kind:        p.Kind,
		Body:        p.Body,
		MediaRef:    p.MediaRef,
		PollOptions: p.PollOptions,
		LikeCount:   p.Relation(RelationLike).Count,
		VoteCount:   p.Relation(RelationVote).Count,
		CreatedAt:   p.CreatedAt,
	}
	if p.SpaceID != "" {
		w.SpaceID = &p.SpaceID
	}
	if !p.UpdatedAt.IsZero() {
		w.UpdatedAt = &p.UpdatedAt
	}
	return w
}

// Row returns the insert payload. Server-owned columns (id, counters,
// timestamps) are left to the backend.
func (p Post) Row() Row {
	row := Row{
		"client_token": p.ClientToken,
		"owner_id":     p.OwnerID,
		"kind":         string(p.Kind),
		"body":         p.Body,
	}
	if p.SpaceID != "" {
		row["space_id"] = p.SpaceID
	}
	if p.MediaRef != "" {
		row["media_ref"] = p.MediaRef
	}
	if len(p.PollOptions) > 0 {
		row["poll_options"] = p.PollOptions
	}
	return row
}

// Patch overlays the columns present in patch onto p. Joined fields and the
// local sync state are kept.
func (p Post) Patch(patch Row) (Post, error) {
	merged := toRow(p.wire()).Merge(patch)
	next, err := DecodePost(merged)
	if err != nil {
		return p, err
	}
	decoded := next.Relations
	next.Author = p.Author
	next.SyncState = p.SyncState
	next.Relations = make(map[string]Relation, len(p.Relations))
	for name, r := range p.Relations {
		next.Relations[name] = r
	}
	for col, name := range map[string]string{"like_count": RelationLike, "vote_count": RelationVote} {
		if patch.Has(col) {
			r := next.Relations[name]
			r.Count = decoded[name].Count
			next.Relations[name] = r
		}
	}
	return next, nil
}

func (p Post) EntityID() ID { return p.ID }
func (p Post) Token() string { return p.ClientToken }

func (p Post) WithID(id ID) Post {
	p.ID = id
	return p
}

func (p Post) WithSyncState(s SyncState) Post {
	p.SyncState = s
	return p
}

func (p Post) Relation(name string) Relation {
	return p.Relations[name]
}

// WithRelation returns a copy of p with the relation replaced. The map is
// copied so snapshots held elsewhere are not mutated.
func (p Post) WithRelation(name string, r Relation) Post {
	rel := make(map[string]Relation, len(p.Relations)+1)
	for k, v := range p.Relations {
		rel[k] = v
	}
	rel[name] = r
	p.Relations = rel
	return p
}

// Comment belongs to a post and optionally replies to another comment.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	ParentID  string    `json:"parent_id,omitempty"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func DecodeComment(row Row) (Comment, error) {
	var c Comment
	if err := row.decodeInto(&c); err != nil {
		return Comment{}, fmt.Errorf("decode comment: %w", err)
	}
	if c.ID == "" || c.PostID == "" {
		return Comment{}, fmt.Errorf("decode comment: %w", errMissing("id/post_id"))
	}
	return c, nil
}
