package models

import (
	"fmt"
	"time"
)

// Kind discriminates content items.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindText    Kind = "text"
	KindVoice   Kind = "voice"
	KindPoll    Kind = "poll"
	KindNote    Kind = "note"
	KindLink    Kind = "link"
	KindFile    Kind = "file"
	KindMessage Kind = "message"
)

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindText, KindVoice, KindPoll, KindNote, KindLink, KindFile, KindMessage:
		return true
	}
	return false
}

// TimedMedia reports whether the playback duration comes from the media
// itself rather than a fixed default.
func (k Kind) TimedMedia() bool { return k == KindVideo || k == KindVoice }

// SyncState tracks an item's remote confirmation.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
	// SyncDeleted marks a local tombstone whose remote delete is not
	// confirmed yet.
	SyncDeleted SyncState = "deleted"
)

// Relation is the viewer-relative state of a toggleable relation (like,
// vote, follow) together with its aggregate counter.
type Relation struct {
	On    bool `json:"on"`
	Count int  `json:"count"`
}

// Toggled flips On and moves Count by one in the matching direction.
func (r Relation) Toggled() Relation {
	if r.On {
		return Relation{On: false, Count: max(r.Count-1, 0)}
	}
	return Relation{On: true, Count: r.Count + 1}
}

// Profile is the denormalised author data shown next to content.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func DecodeProfile(row Row) (Profile, error) {
	var p Profile
	if err := row.decodeInto(&p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.ID == "" {
		return Profile{}, fmt.Errorf("decode profile: %w", errMissing("id"))
	}
	return p, nil
}

// ViewRecord notes that a viewer opened a story.
type ViewRecord struct {
	StoryID  string    `json:"story_id"`
	ViewerID string    `json:"viewer_id"`
	ViewedAt time.Time `json:"viewed_at"`
}

func DecodeViewRecord(row Row) (ViewRecord, error) {
	var v ViewRecord
	if err := row.decodeInto(&v); err != nil {
		return ViewRecord{}, fmt.Errorf("decode view record: %w", err)
	}
	if v.StoryID == "" || v.ViewerID == "" {
		return ViewRecord{}, fmt.Errorf("decode view record: %w", errMissing("story_id/viewer_id"))
	}
	return v, nil
}
