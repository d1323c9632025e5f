package models

import (
	"fmt"
	"time"
)

// Privacy controls who may see a story.
type Privacy string

const (
	PrivacyPublic    Privacy = "public"
	PrivacyFollowers Privacy = "followers"
	PrivacyOnlyMe    Privacy = "only_me"
)

func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyFollowers || p == PrivacyOnlyMe
}

// Allowed story lifetimes.
const (
	StoryTTL12h = 12 * time.Hour
	StoryTTL24h = 24 * time.Hour
	StoryTTL48h = 48 * time.Hour
)

// ValidStoryTTL reports whether ttl is one of the allowed lifetimes.
func ValidStoryTTL(ttl time.Duration) bool {
	return ttl == StoryTTL12h || ttl == StoryTTL24h || ttl == StoryTTL48h
}

// Story is a time-limited content item.
type Story struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Kind          Kind      `json:"kind"`
	Body          string    `json:"body"`
	MediaRef      string    `json:"media_ref,omitempty"`
	PollOptions   []string  `json:"poll_options,omitempty"`
	Privacy       Privacy   `json:"privacy_level"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	ViewCount     int       `json:"view_count"`
	ReactionCount int       `json:"reaction_count"`
}

// ActiveAt reports whether the story is still visible at now. The boundary
// instant itself is already expired.
func (s Story) ActiveAt(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

func DecodeStory(row Row) (Story, error) {
	var s Story
	if err := row.decodeInto(&s); err != nil {
		return Story{}, fmt.Errorf("decode story: %w", err)
	}
	switch {
	case s.ID == "":
		return Story{}, fmt.Errorf("decode story: %w", errMissing("id"))
	case s.OwnerID == "":
		return Story{}, fmt.Errorf("decode story %s: %w", s.ID, errMissing("owner_id"))
	case s.ExpiresAt.IsZero():
		return Story{}, fmt.Errorf("decode story %s: %w", s.ID, errMissing("expires_at"))
	case !s.Kind.Valid():
		return Story{}, fmt.Errorf("decode story %s: unknown kind %q", s.ID, s.Kind)
	}
	if s.Privacy == "" {
		s.Privacy = PrivacyPublic
	}
	if !s.Privacy.Valid() {
		return Story{}, fmt.Errorf("decode story %s: unknown privacy %q", s.ID, s.Privacy)
	}
	return s, nil
}

// Row returns the insert payload for s.
func (s Story) Row() Row {
	row := Row{
		"owner_id":      s.OwnerID,
		"kind":          string(s.Kind),
		"body":          s.Body,
		"privacy_level": string(s.Privacy),
		"created_at":    s.CreatedAt,
		"expires_at":    s.ExpiresAt,
	}
	if s.ID != "" {
		row["id"] = s.ID
	}
	if s.MediaRef != "" {
		row["media_ref"] = s.MediaRef
	}
	if len(s.PollOptions) > 0 {
		row["poll_options"] = s.PollOptions
	}
	return row
}

// StoryGroup is one owner's active stories ordered by creation time.
type StoryGroup struct {
	OwnerID string
	Stories []Story
}
