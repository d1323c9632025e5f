// Package realtime turns Postgres NOTIFY payloads emitted by the schema's
// change triggers into remote.Change events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// Channel is the NOTIFY channel written by socialsync_notify().
const Channel = "socialsync_changes"

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// conn is the part of *pgx.Conn the listener uses.
type conn interface {
	Exec(ctx context.Context, sql string) error
	WaitForNotification(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

type pgxConn struct{ c *pgx.Conn }

func (p pgxConn) Exec(ctx context.Context, sql string) error {
	_, err := p.c.Exec(ctx, sql)
	return err
}

func (p pgxConn) WaitForNotification(ctx context.Context) (string, error) {
	n, err := p.c.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return n.Payload, nil
}

func (p pgxConn) Close(ctx context.Context) error { return p.c.Close(ctx) }

// after is swapped in tests.
var after = time.After

// dial is swapped in tests.
var dial = func(ctx context.Context, dsn string) (conn, error) {
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pgxConn{c: c}, nil
}

// Listener holds one dedicated connection that LISTENs on Channel and
// publishes decoded changes to its hub. It implements remote.Subscriber.
type Listener struct {
	*remote.Hub

	dsn string
	log logging.Logger
}

func NewListener(dsn string, log logging.Logger) *Listener {
	if log == nil {
		log = logging.Nop()
	}
	return &Listener{Hub: remote.NewHub(), dsn: dsn, log: log.With("module", "realtime")}
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff.
// The backoff starts over after every connection that reached LISTEN.
// Changes committed while disconnected are not replayed.
func (l *Listener) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		listening, err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if listening {
			backoff = minBackoff
		}
		l.log.Warn(ctx, "realtime connection lost", "err", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			return nil
		case <-after(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// listen reports whether LISTEN succeeded before the connection ended.
func (l *Listener) listen(ctx context.Context) (bool, error) {
	c, err := dial(ctx, l.dsn)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = c.Close(context.Background()) }()

	if err := c.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	l.log.Info(ctx, "listening", "channel", Channel)

	for {
		payload, err := c.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		change, err := Decode(payload)
		if err != nil {
			l.log.Warn(ctx, "dropping malformed notification", "err", err)
			continue
		}
		l.Publish(change)
	}
}

// Decode parses a trigger payload.
func Decode(payload string) (remote.Change, error) {
	var c remote.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return remote.Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Table == "" {
		return remote.Change{}, errors.New("decode change: missing table")
	}
	switch c.Type {
	case remote.EventInsert, remote.EventUpdate, remote.EventDelete:
	default:
		return remote.Change{}, fmt.Errorf("decode change: unknown type %q", c.Type)
	}
	return c, nil
}

var _ remote.Subscriber = (*Listener)(nil)
