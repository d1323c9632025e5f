package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// PINStore persists an owner's hashed vault PIN.
type PINStore interface {
	// Load returns common.ErrPINNotConfigured when the owner has no PIN.
	Load(ctx context.Context, owner string) (salt, digest []byte, err error)
	Save(ctx context.Context, owner string, salt, digest []byte) error
}

// RemotePINStore keeps the PIN digest on the owner's profile row.
type RemotePINStore struct {
	Store remote.Store
}

const (
	colPINHash = "bag_pin_hash"
	colPINSalt = "bag_pin_salt"
)

func (s RemotePINStore) Load(ctx context.Context, owner string) ([]byte, []byte, error) {
	rows, err := s.Store.Select(ctx, "profiles", remote.Query{
		Filters: []remote.Filter{remote.Eq("id", owner)},
		Limit:   1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load pin: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("profile %s: %w", owner, common.ErrNotFound)
	}
	hash, salt := rows[0].String(colPINHash), rows[0].String(colPINSalt)
	if hash == "" || salt == "" {
		return nil, nil, common.ErrPINNotConfigured
	}

	digest, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return nil, nil, fmt.Errorf("decode pin hash: %w", err)
	}
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, nil, fmt.Errorf("decode pin salt: %w", err)
	}
	return saltBytes, digest, nil
}

func (s RemotePINStore) Save(ctx context.Context, owner string, salt, digest []byte) error {
	n, err := s.Store.Update(ctx, "profiles", []remote.Filter{remote.Eq("id", owner)}, models.Row{
		colPINHash: base64.StdEncoding.EncodeToString(digest),
		colPINSalt: base64.StdEncoding.EncodeToString(salt),
	})
	if err != nil {
		return fmt.Errorf("save pin: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile %s: %w", owner, common.ErrNotFound)
	}
	return nil
}

func pinConfigured(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrPINNotConfigured):
		return false, nil
	}
	return false, err
}
