// Package cli implements socialctl, the command-line client for stories,
// the vault, chat backups and the feed.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/socialsync/internal/app"
	"github.com/dmitrijs2005/socialsync/internal/config"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath  string
	OfflineDemo bool
	Owner       string
	Verbose     bool
}

// session is what every subcommand runs against. It is built by the root's
// PersistentPreRunE and released by its PersistentPostRunE.
type session struct {
	cfg     *config.Config
	log     logging.Logger
	backend *app.Backend
	monitor *remote.Monitor
	owner   string
	clock   timex.Clock
}

// Test seams.
var (
	loadConfig  = config.Load
	openBackend = func(ctx context.Context, cfg *config.Config, log logging.Logger, demo bool) (*app.Backend, error) {
		if demo {
			return app.OpenMemory(ctx, cfg, nil)
		}
		return app.Open(ctx, cfg, log)
	}
	newClock = timex.System
)

// NewRootCommand creates the socialctl command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// Execute runs socialctl with args and releases the session even when a
// command fails.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	cmd, s := newRootCommand()
	defer func() { _ = s.close() }()

	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand() (*cobra.Command, *session) {
	opts := &RootOptions{}
	s := &session{}

	cmd := &cobra.Command{
		Use:           "socialctl",
		Short:         "socialctl - socialsync command-line client",
		Long:          "Browse stories, manage the vault, back up chats and follow the feed of a socialsync account.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd, opts)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return s.close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&opts.OfflineDemo, "offline-demo", false, "run against an in-process backend")
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "demo", "owner id used with --offline-demo")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewStoriesCommand(s))
	cmd.AddCommand(NewVaultCommand(s))
	cmd.AddCommand(NewBackupCommand(s))
	cmd.AddCommand(NewFeedCommand(s))

	return cmd, s
}

func (s *session) open(cmd *cobra.Command, opts *RootOptions) error {
	var args []string
	if opts.ConfigPath != "" {
		args = []string{"-c", opts.ConfigPath}
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := logging.NewText(cmd.ErrOrStderr(), level)

	owner := opts.Owner
	if !opts.OfflineDemo {
		if owner, err = app.Owner(cfg); err != nil {
			return fmt.Errorf("sign in required: %w", err)
		}
	}

	ctx := cmd.Context()
	b, err := openBackend(ctx, cfg, log, opts.OfflineDemo)
	if err != nil {
		return err
	}

	if err := b.BindOwner(ctx, owner, log); err != nil {
		_ = b.Close()
		return err
	}
	if opts.OfflineDemo && b.Memory != nil {
		seedProfile(b, owner)
	}

	s.cfg, s.log, s.backend, s.owner, s.clock = cfg, log, b, owner, newClock()
	s.monitor = remote.NewMonitor(b.Pinger, cfg.OnlineCheckInterval, cfg.RemoteTimeout, log)
	s.monitor.Check(ctx)
	return nil
}

// seedProfile gives the demo owner the profile row the vault PIN lives on.
func seedProfile(b *app.Backend, owner string) {
	for _, r := range b.Memory.Rows("profiles") {
		if r.String("id") == owner {
			return
		}
	}
	b.Memory.Seed("profiles", remote.Row{"id": owner, "username": owner})
}

func (s *session) close() error {
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

// timeout bounds one remote round trip.
func (s *session) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RemoteTimeout)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
