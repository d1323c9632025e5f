package models

import (
	"fmt"
	"time"
)

// Message is a chat message. chat_id, sender_id and content are the columns
// the push notifier reads on insert.
type Message struct {
	ID          ID        `json:"id"`
	ClientToken string    `json:"client_token,omitempty"`
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	Content     string    `json:"content"`
	Kind        Kind      `json:"kind,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	EditedAt    time.Time `json:"edited_at,omitempty"`
	SyncState   SyncState `json:"sync_state,omitempty"`
}

type messageRow struct {
	ID          string     `json:"id"`
	ClientToken string     `json:"client_token,omitempty"`
	ChatID      string     `json:"chat_id"`
	SenderID    string     `json:"sender_id"`
	Content     string     `json:"content"`
	Kind        Kind       `json:"kind,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
}

func DecodeMessage(row Row) (Message, error) {
	var w messageRow
	if err := row.decodeInto(&w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch {
	case w.ID == "":
		return Message{}, fmt.Errorf("decode message: %w", errMissing("id"))
	case w.ChatID == "" || w.SenderID == "":
		return Message{}, fmt.Errorf("decode message %s: %w", w.ID, errMissing("chat_id/sender_id"))
	}
	m := Message{
		ID:          ParseID(w.ID),
		ClientToken: w.ClientToken,
		ChatID:      w.ChatID,
		SenderID:    w.SenderID,
		Content:     w.Content,
		Kind:        w.Kind,
		CreatedAt:   w.CreatedAt,
		SyncState:   SyncSynced,
	}
	if m.Kind == "" {
		m.Kind = KindMessage
	}
	if w.EditedAt != nil {
		m.EditedAt = *w.EditedAt
	}
	return m, nil
}

func (m Message) wire() messageRow {
	w := messageRow{
		ID:          m.ID.String(),
		ClientToken: m.ClientToken,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Content:     m.Content,
		Kind:        m.Kind,
		CreatedAt:   m.CreatedAt,
	}
	if !m.EditedAt.IsZero() {
		w.EditedAt = &m.EditedAt
	}
	return w
}

// Row returns the insert payload for a new message.
func (m Message) Row() Row {
	row := Row{
		"chat_id":   m.ChatID,
		"sender_id": m.SenderID,
		"content":   m.Content,
		"kind":      string(m.Kind),
	}
	if m.ClientToken != "" {
		row["client_token"] = m.ClientToken
	}
	return row
}

// BackupRow is the full row, including id and created_at, used when a
// message is restored from a backup file.
func (m Message) BackupRow() Row {
	return toRow(m.wire())
}

func (m Message) Patch(patch Row) (Message, error) {
	next, err := DecodeMessage(toRow(m.wire()).Merge(patch))
	if err != nil {
		return m, err
	}
	next.SyncState = m.SyncState
	return next, nil
}

func (m Message) EntityID() ID { return m.ID }
func (m Message) Token() string { return m.ClientToken }

func (m Message) WithID(id ID) Message {
	m.ID = id
	return m
}

func (m Message) WithSyncState(s SyncState) Message {
	m.SyncState = s
	return m
}

// Messages carry no toggleable relations.
func (m Message) Relation(string) Relation { return Relation{} }
func (m Message) WithRelation(string, Relation) Message { return m }

// Chat is a conversation summary cached for offline reads. OwnerID is the
// device user the summary was fetched for; it is not a remote column.
type Chat struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Title         string    `json:"title"`
	MemberIDs     []string  `json:"member_ids,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

func DecodeChat(row Row) (Chat, error) {
	var c Chat
	if err := row.decodeInto(&c); err != nil {
		return Chat{}, fmt.Errorf("decode chat: %w", err)
	}
	if c.ID == "" {
		return Chat{}, fmt.Errorf("decode chat: %w", errMissing("id"))
	}
	return c, nil
}
