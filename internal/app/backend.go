// Package app wires configuration, the local mirror and the remote backend
// into the components the socialsync binaries run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/socialsync/internal/auth"
	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/config"
	"github.com/dmitrijs2005/socialsync/internal/filex"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/mirror"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/blob"
	"github.com/dmitrijs2005/socialsync/internal/remote/memory"
	"github.com/dmitrijs2005/socialsync/internal/remote/postgres"
	"github.com/dmitrijs2005/socialsync/internal/remote/realtime"
)

// Backend bundles one device's view of the system: the remote store and its
// change feed, blob storage and the local mirror.
type Backend struct {
	Store  remote.Store
	Sub    remote.Subscriber
	Blobs  remote.BlobStore
	Pinger remote.Pinger
	Mirror *mirror.Store

	// Memory is set when the backend runs in-process.
	Memory *memory.Store

	listener *realtime.Listener
	closers  []func() error
}

// Open connects to Postgres and S3 as configured, starts nothing yet and
// opens the mirror at cfg.LocalDBPath.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger) (*Backend, error) {
	b := &Backend{}

	db, err := postgres.Open(ctx, cfg.RemoteDSN)
	if err != nil {
		return nil, fmt.Errorf("remote init error: %w", err)
	}
	b.closers = append(b.closers, db.Close)
	pg := postgres.New(db)
	b.Store, b.Pinger = pg, pg

	b.listener = realtime.NewListener(cfg.RemoteDSN, log)
	b.Sub = b.listener

	blobs, err := blob.New(ctx, blob.Options{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("blob init error: %w", err)
	}
	b.Blobs = blobs

	if err := b.openMirror(ctx, cfg.LocalDBPath); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// OpenMemory builds a backend on the in-process store. It serves demos and
// tests; nothing outlives the process except the mirror file.
func OpenMemory(ctx context.Context, cfg *config.Config, mem *memory.Store) (*Backend, error) {
	if mem == nil {
		mem = memory.New()
	}
	b := &Backend{Store: mem, Sub: mem, Blobs: mem, Pinger: mem, Memory: mem}
	if err := b.openMirror(ctx, cfg.LocalDBPath); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) openMirror(ctx context.Context, path string) error {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return fmt.Errorf("mirror init error: %w", err)
	}
	m, err := mirror.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("mirror init error: %w", err)
	}
	b.Mirror = m
	b.closers = append(b.closers, m.Close)
	return nil
}

// RunRealtime blocks delivering backend changes until ctx is cancelled. The
// in-process store publishes synchronously, so it returns at once.
func (b *Backend) RunRealtime(ctx context.Context) error {
	if b.listener == nil {
		return nil
	}
	return b.listener.Run(ctx)
}

// Close releases everything Open acquired, in reverse order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// BindOwner claims the local mirror for owner, dropping whatever another
// account cached in it.
func (b *Backend) BindOwner(ctx context.Context, owner string, log logging.Logger) error {
	wiped, err := b.Mirror.BindOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("bind mirror: %w", err)
	}
	if wiped {
		log.Warn(ctx, "local mirror belonged to another account, cache cleared", "owner", owner)
	}
	return nil
}

// Owner resolves the signed-in user from the configured access token.
func Owner(cfg *config.Config) (string, error) {
	if cfg.AccessToken == "" {
		return "", fmt.Errorf("no access token configured: %w", common.ErrUnauthorized)
	}
	return auth.OwnerFromToken(cfg.AccessToken, []byte(cfg.JWTSecret))
}

// NewLogger builds the logger selected by cfg.LogFormat and cfg.LogLevel.
func NewLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(cfg.LogFormat, w, level)
}
