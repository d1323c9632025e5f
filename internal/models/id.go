package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	tempPrefix  = "temp-"
	localPrefix = "local-"
)

// ErrAlreadyPermanent is returned when remapping an id that is not temporary.
var ErrAlreadyPermanent = errors.New("id is already permanent")

// ID identifies an entity. A Temporary id is a client-fabricated placeholder
// for an optimistic create; a Permanent id is assigned by the server.
type ID struct {
	token  string
	server string
}

// Temporary wraps a client token.
func Temporary(token string) ID { return ID{token: token} }

// Permanent wraps a server-assigned id.
func Permanent(serverID string) ID { return ID{server: serverID} }

// NewTemporary mints a fresh temporary id.
func NewTemporary() ID { return Temporary(uuid.NewString()) }

// ParseID is the inverse of ID.String.
func ParseID(s string) ID {
	if tok, ok := strings.CutPrefix(s, tempPrefix); ok {
		return Temporary(tok)
	}
	return Permanent(s)
}

func (id ID) IsTemporary() bool { return id.server == "" && id.token != "" }
func (id ID) IsZero() bool      { return id.server == "" && id.token == "" }

// Token returns the client token of a temporary id.
func (id ID) Token() string { return id.token }

// ServerID returns the server id, empty for temporary ids.
func (id ID) ServerID() string { return id.server }

func (id ID) String() string {
	if id.IsTemporary() {
		return tempPrefix + id.token
	}
	return id.server
}

// RemapTo turns a temporary id into the confirmed server id.
func (id ID) RemapTo(serverID string) (ID, error) {
	if !id.IsTemporary() {
		return id, fmt.Errorf("remap %s: %w", id, ErrAlreadyPermanent)
	}
	if serverID == "" {
		return id, errors.New("remap: empty server id")
	}
	return Permanent(serverID), nil
}

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	*id = ParseID(string(b))
	return nil
}

// NewLocalID mints an id for a record created while offline. Such ids live
// only in the local mirror until the record is migrated.
func NewLocalID() string { return localPrefix + uuid.NewString() }

// IsLocalID reports whether id was minted by NewLocalID.
func IsLocalID(id string) bool { return strings.HasPrefix(id, localPrefix) }
