package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/chat"
	"github.com/dmitrijs2005/socialsync/internal/config"
	"github.com/dmitrijs2005/socialsync/internal/feed"
	"github.com/dmitrijs2005/socialsync/internal/health"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// Daemon keeps one owner's device in sync: it tracks connectivity, follows
// the realtime feed, refreshes the chat cache on reconnect and serves gRPC
// health.
type Daemon struct {
	config  *config.Config
	logger  logging.Logger
	backend *Backend
	owner   string

	monitor *remote.Monitor
	feed    *feed.Adapter
	chats   *chat.Service
}

func NewDaemon(cfg *config.Config, l logging.Logger, b *Backend, owner string) *Daemon {
	d := &Daemon{
		config:  cfg,
		logger:  l.With("owner", owner),
		backend: b,
		owner:   owner,
	}
	d.monitor = remote.NewMonitor(b.Pinger, cfg.OnlineCheckInterval, cfg.RemoteTimeout, d.logger)
	d.feed = feed.NewAdapter(b.Store, b.Sub, owner, feed.Options{
		PageSize: cfg.FeedPageSize,
		Timeout:  cfg.RemoteTimeout,
		OnChange: d.logChange,
		Log:      d.logger,
	})
	d.chats = chat.New(b.Store, b.Mirror, owner, chat.Options{Timeout: cfg.RemoteTimeout, Log: d.logger})
	return d
}

// Feed exposes the followed feed.
func (d *Daemon) Feed() *feed.Adapter { return d.feed }

func (d *Daemon) logChange(e feed.Event) {
	d.logger.Info(context.Background(), "feed change merged", "type", string(e.Type), "post_id", e.ID.String(), "result", e.Result.String())
}

func (d *Daemon) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until ctx is cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	d.logger.Info(ctx, "Starting daemon...")
	d.initSignalHandler(cancelFunc)

	if err := d.backend.BindOwner(ctx, d.owner, d.logger); err != nil {
		return err
	}
	if err := d.feed.Start(ctx); err != nil {
		return err
	}
	defer d.feed.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.monitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.backend.RunRealtime(ctx); err != nil {
			d.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		srv := health.NewServer(d.config.HealthAddr, d.logger, d.monitor.Online, d.config.OnlineCheckInterval)
		if err := srv.Run(ctx); err != nil {
			d.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.syncLoop(ctx)
	}()

	wg.Wait()
	d.logger.Info(context.Background(), "Daemon stopped")
	return nil
}

// syncLoop reloads the feed and the chat cache whenever the backend becomes
// reachable, including at startup.
func (d *Daemon) syncLoop(ctx context.Context) {
	t := time.NewTicker(d.config.OnlineCheckInterval)
	defer t.Stop()

	online := false
	for {
		now := d.monitor.Online()
		if now && !online {
			d.resync(ctx)
		}
		online = now

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (d *Daemon) resync(ctx context.Context) {
	rctx, cancel := context.WithTimeout(ctx, d.config.RemoteTimeout)
	defer cancel()

	if err := d.feed.Load(rctx); err != nil {
		d.logger.Warn(ctx, "feed reload failed", "err", err)
	} else {
		d.logger.Info(ctx, "feed loaded", "posts", d.feed.List().Len())
	}
	if chats, err := d.chats.CacheChats(rctx); err != nil {
		d.logger.Warn(ctx, "chat cache refresh failed", "err", err)
	} else {
		d.logger.Info(ctx, "chat cache refreshed", "chats", len(chats))
	}
}
