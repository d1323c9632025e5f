package stories

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// Relations answers the follow and block questions visibility depends on.
// The backend's access-control layer owns these relations.
type Relations interface {
	// BlockedBy returns the owners who blocked viewer.
	BlockedBy(ctx context.Context, viewer string) (map[string]bool, error)
	// Following returns the owners viewer follows.
	Following(ctx context.Context, viewer string) (map[string]bool, error)
}

// RemoteRelations reads the follows and blocks tables.
type RemoteRelations struct {
	Store remote.Store
}

func (r RemoteRelations) BlockedBy(ctx context.Context, viewer string) (map[string]bool, error) {
	rows, err := r.Store.Select(ctx, "blocks", remote.Where(remote.Eq("blocked_id", viewer)))
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.String("blocker_id")] = true
	}
	return out, nil
}

func (r RemoteRelations) Following(ctx context.Context, viewer string) (map[string]bool, error) {
	rows, err := r.Store.Select(ctx, "follows", remote.Where(remote.Eq("follower_id", viewer)))
	if err != nil {
		return nil, fmt.Errorf("load follows: %w", err)
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.String("following_id")] = true
	}
	return out, nil
}
