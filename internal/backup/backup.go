// Package backup exports a user's chat messages to a JSON document and
// restores them without ever overwriting what the server already holds.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/mirror"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

// Version is the only backup format understood.
const Version = 1

// File is the backup document.
type File struct {
	Version      int              `json:"version"`
	Date         time.Time        `json:"date"`
	UserID       string           `json:"userId"`
	MessageCount int              `json:"messageCount"`
	Messages     []models.Message `json:"messages"`
}

// Report summarises a restore.
type Report struct {
	Inserted int
	Skipped  int
	Failed   int
}

type Options struct {
	Clock timex.Clock
	Log   logging.Logger
}

type Service struct {
	store remote.Store
	local *mirror.Store
	clock timex.Clock
	log   logging.Logger
}

func New(store remote.Store, local *mirror.Store, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = timex.System()
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Service{store: store, local: local, clock: opts.Clock, log: opts.Log.With("module", "backup")}
}

// Export writes every message of the chats owner belongs to.
func (s *Service) Export(ctx context.Context, owner string, w io.Writer) (File, error) {
	chats, err := s.store.Select(ctx, "chats", remote.Query{})
	if err != nil {
		return File{}, fmt.Errorf("export: list chats: %w", err)
	}
	var ids []string
	for _, row := range chats {
		c, err := models.DecodeChat(row)
		if err != nil {
			continue
		}
		if slices.Contains(c.MemberIDs, owner) {
			ids = append(ids, c.ID)
		}
	}

	f := File{Version: Version, Date: s.clock.Now().UTC(), UserID: owner, Messages: []models.Message{}}
	if len(ids) > 0 {
		rows, err := s.store.Select(ctx, "messages", remote.Query{
			Filters: []remote.Filter{remote.In("chat_id", ids)},
			Order:   []remote.Order{remote.Asc("created_at")},
		})
		if err != nil {
			return File{}, fmt.Errorf("export: list messages: %w", err)
		}
		for _, row := range rows {
			m, err := models.DecodeMessage(row)
			if err != nil {
				s.log.Warn(ctx, "skipping malformed message", "err", err)
				continue
			}
			m.SyncState = ""
			f.Messages = append(f.Messages, m)
		}
	}
	f.MessageCount = len(f.Messages)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return File{}, fmt.Errorf("export: write: %w", err)
	}
	s.stamp(ctx, mirror.KeyLastBackupAt, f.Date)
	s.log.Info(ctx, "backup exported", "messages", f.MessageCount)
	return f, nil
}

// Decode reads and validates a backup document.
func Decode(r io.Reader) (File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return File{}, fmt.Errorf("read backup: %w: %w", common.ErrUnsupportedBackup, err)
	}
	if f.Version != Version {
		return File{}, fmt.Errorf("backup version %d: %w", f.Version, common.ErrUnsupportedBackup)
	}
	return f, nil
}

// Restore inserts each backed-up message that the server does not have.
// Messages already present are skipped untouched, so a restore never undoes
// a later edit. Restored messages are mirrored locally.
func (s *Service) Restore(ctx context.Context, owner string, r io.Reader) (Report, error) {
	f, err := Decode(r)
	if err != nil {
		return Report{}, err
	}
	if f.UserID != owner {
		return Report{}, fmt.Errorf("backup belongs to %q: %w", f.UserID, common.ErrForbidden)
	}

	var rep Report
	var restored []models.Message
	for _, m := range f.Messages {
		if m.ID.IsZero() || m.ID.IsTemporary() || m.ChatID == "" || m.SenderID == "" {
			rep.Failed++
			continue
		}
		row, err := s.store.Insert(ctx, "messages", m.BackupRow())
		switch {
		case err == nil:
			rep.Inserted++
			if got, err := models.DecodeMessage(row); err == nil {
				restored = append(restored, got)
			}
		case errors.Is(err, common.ErrDuplicate):
			rep.Skipped++
		default:
			rep.Failed++
			s.log.Warn(ctx, "failed to restore message", "message_id", m.ID.String(), "err", err)
		}
	}

	if err := s.local.Messages.BulkPut(ctx, restored); err != nil {
		s.log.Warn(ctx, "failed to mirror restored messages", "err", err)
	}
	s.stamp(ctx, mirror.KeyLastRestoreAt, s.clock.Now().UTC())
	s.log.Info(ctx, "backup restored", "inserted", rep.Inserted, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

func (s *Service) stamp(ctx context.Context, key string, at time.Time) {
	if err := s.local.Metadata.SetTime(ctx, key, at); err != nil {
		s.log.Warn(ctx, "failed to record backup metadata", "key", key, "err", err)
	}
}
