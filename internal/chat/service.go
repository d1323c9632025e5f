// Package chat sends messages optimistically and keeps chats and their
// history in the local mirror for offline reads.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/mirror"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/optimistic"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/timex"
	"github.com/dmitrijs2005/socialsync/internal/view"
)

var messageCodec = optimistic.Codec[models.Message]{
	Table:  "messages",
	Encode: func(m models.Message) models.Row { return m.Row() },
	Decode: models.DecodeMessage,
}

type Options struct {
	Timeout  time.Duration
	OnNotice func(optimistic.Notice)
	Clock    timex.Clock
	Log      logging.Logger
}

// Service is one user's view of their chats.
type Service struct {
	store  remote.Store
	local  *mirror.Store
	owner  string
	opts   Options
	log    logging.Logger

	mu      sync.Mutex
	threads map[string]*Thread
	wg      sync.WaitGroup
}

func New(store remote.Store, local *mirror.Store, owner string, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = timex.System()
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Service{
		store:   store,
		local:   local,
		owner:   owner,
		opts:    opts,
		log:     opts.Log.With("module", "chat"),
		threads: make(map[string]*Thread),
	}
}

// Thread is an open conversation: its messages oldest first.
type Thread struct {
	ChatID string
	coord  *optimistic.Coordinator[models.Message]
}

func (t *Thread) Messages() []models.Message { return t.coord.List().Items() }

// replace swaps in a fresh history, keeping unconfirmed sends at the tail.
func (t *Thread) replace(history []models.Message) {
	tokens := make(map[string]bool, len(history))
	for _, m := range history {
		if m.ClientToken != "" {
			tokens[m.ClientToken] = true
		}
	}
	next := slices.Clone(history)
	for _, m := range t.coord.List().Items() {
		if m.ID.IsTemporary() && !tokens[m.ClientToken] {
			next = append(next, m)
		}
	}
	t.coord.List().Replace(next)
}

// Thread returns the open conversation for chatID, creating it empty.
func (s *Service) Thread(chatID string) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[chatID]; ok {
		return t
	}
	t := &Thread{
		ChatID: chatID,
		coord: optimistic.New(view.NewList[models.Message](), s.store, messageCodec, optimistic.Options{
			Timeout:       s.opts.Timeout,
			AppendCreates: true,
			OnNotice:      s.opts.OnNotice,
			Log:           s.opts.Log,
		}),
	}
	s.threads[chatID] = t
	return t
}

// Send appends a message to the thread at once and inserts it remotely.
// Confirmed messages are copied to the mirror.
func (s *Service) Send(ctx context.Context, chatID, content string) (models.Message, *optimistic.Ticket, error) {
	if chatID == "" {
		return models.Message{}, nil, fmt.Errorf("chat id is required: %w", common.ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return models.Message{}, nil, fmt.Errorf("message is empty: %w", common.ErrValidation)
	}
	th := s.Thread(chatID)
	m := models.Message{
		ClientToken: uuid.NewString(),
		ChatID:      chatID,
		SenderID:    s.owner,
		Content:     content,
		Kind:        models.KindMessage,
		CreatedAt:   s.opts.Clock.Now().UTC(),
	}
	_, ticket, err := th.coord.Apply(ctx, optimistic.Create(m))
	if err != nil {
		return models.Message{}, nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if ticket.Wait() != nil {
			return
		}
		confirmed, _, ok := th.coord.List().Get(ticket.ID())
		if !ok {
			return
		}
		if err := s.local.Messages.Put(context.WithoutCancel(ctx), confirmed); err != nil {
			s.log.Warn(ctx, "failed to mirror sent message", "message_id", confirmed.ID.String(), "err", err)
		}
	}()
	return m.WithID(models.Temporary(m.ClientToken)).WithSyncState(models.SyncPending), ticket, nil
}

// Flush waits for in-flight sends and their mirror writes.
func (s *Service) Flush() {
	s.mu.Lock()
	threads := make([]*Thread, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.mu.Unlock()
	for _, t := range threads {
		t.coord.Flush()
	}
	s.wg.Wait()
}

// History loads the latest limit messages of a chat, oldest first, and
// mirrors them. When the remote store fails the mirrored copy is returned.
func (s *Service) History(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	q := remote.Query{
		Filters: []remote.Filter{remote.Eq("chat_id", chatID)},
		Order:   []remote.Order{remote.Desc("created_at")},
		Limit:   limit,
	}
	rows, err := s.store.Select(ctx, "messages", q)
	if err != nil {
		s.log.Warn(ctx, "message history unavailable, reading mirror", "chat_id", chatID, "err", err)
		cached, lerr := s.local.Messages.List(ctx, chatID)
		if lerr != nil {
			return nil, fmt.Errorf("history of %s: %w", chatID, err)
		}
		if limit > 0 && len(cached) > limit {
			cached = cached[len(cached)-limit:]
		}
		return cached, nil
	}

	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		m, err := models.DecodeMessage(row)
		if err != nil {
			s.log.Warn(ctx, "skipping malformed message", "err", err)
			continue
		}
		msgs = append(msgs, m)
	}
	slices.Reverse(msgs)

	if err := s.local.Messages.BulkPut(ctx, msgs); err != nil {
		s.log.Warn(ctx, "failed to mirror message history", "chat_id", chatID, "err", err)
	}
	s.Thread(chatID).replace(msgs)
	return msgs, nil
}

// CacheChats refreshes the owner's chat list from the remote store into the
// mirror and returns it. On remote failure the mirrored list is returned.
func (s *Service) CacheChats(ctx context.Context) ([]models.Chat, error) {
	rows, err := s.store.Select(ctx, "chats", remote.Query{
		Order: []remote.Order{remote.Desc("last_message_at")},
	})
	if err != nil {
		s.log.Warn(ctx, "chat list unavailable, reading mirror", "err", err)
		cached, lerr := s.Chats(ctx)
		if lerr != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		return cached, nil
	}

	var chats []models.Chat
	for _, row := range rows {
		c, err := models.DecodeChat(row)
		if err != nil {
			s.log.Warn(ctx, "skipping malformed chat", "err", err)
			continue
		}
		if !slices.Contains(c.MemberIDs, s.owner) {
			continue
		}
		c.OwnerID = s.owner
		chats = append(chats, c)
	}
	if err := s.local.Chats.BulkPut(ctx, chats); err != nil {
		s.log.Warn(ctx, "failed to mirror chat list", "err", err)
	}
	return chats, nil
}

// Chats returns the mirrored chat list, most recent first.
func (s *Service) Chats(ctx context.Context) ([]models.Chat, error) {
	chats, err := s.local.Chats.List(ctx, s.owner)
	if err != nil {
		return nil, err
	}
	slices.Reverse(chats)
	return chats, nil
}
