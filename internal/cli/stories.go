package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/stories"
)

// NewStoriesCommand creates the stories command group.
func NewStoriesCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "List, watch and post stories",
	}
	cmd.AddCommand(newStoriesListCommand(s))
	cmd.AddCommand(newStoriesViewCommand(s))
	cmd.AddCommand(newStoriesCreateCommand(s))
	return cmd
}

func (s *session) stories() *stories.Service {
	return stories.NewService(s.backend.Store, stories.Options{
		Blobs:       s.backend.Blobs,
		MediaBucket: s.cfg.MediaBucket,
		Clock:       s.clock,
		Log:         s.log,
	})
}

func newStoriesListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active stories grouped by owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()

			active, err := s.stories().ListActive(ctx, s.owner)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			now := s.clock.Now()
			if len(active.Own) == 0 && len(active.Others) == 0 {
				printf(w, "no active stories\n")
				return nil
			}
			if len(active.Own) > 0 {
				printf(w, "your stories (%d)\n", len(active.Own))
				for _, st := range active.Own {
					printStory(cmd, st, now)
				}
			}
			for _, g := range active.Others {
				printf(w, "%s (%d)\n", g.OwnerID, len(g.Stories))
				for _, st := range g.Stories {
					printStory(cmd, st, now)
				}
			}
			return nil
		},
	}
}

func printStory(cmd *cobra.Command, st models.Story, now time.Time) {
	printf(cmd.OutOrStdout(), "  %s\t%s\t%s\texpires in %s\tviews %d\n",
		st.ID, st.Kind, st.Privacy, st.ExpiresAt.Sub(now).Truncate(time.Minute), st.ViewCount)
}

func newStoriesViewCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "view <owner>",
		Short: "Play an owner's active stories, recording views",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := s.stories()

			lctx, cancel := s.timeout(cmd.Context())
			active, err := svc.ListActive(lctx, s.owner)
			cancel()
			if err != nil {
				return err
			}

			group := models.StoryGroup{OwnerID: args[0]}
			if args[0] == s.owner {
				group.Stories = active.Own
			}
			for _, g := range active.Others {
				if g.OwnerID == args[0] {
					group = g
				}
			}
			if len(group.Stories) == 0 {
				printf(cmd.OutOrStdout(), "no active stories from %s\n", args[0])
				return nil
			}
			return play(cmd.Context(), cmd, s, svc, group)
		},
	}
}

// play runs a Player over group, printing each item as it comes up, until
// the group ends or ctx is cancelled.
func play(ctx context.Context, cmd *cobra.Command, s *session, svc *stories.Service, group models.StoryGroup) error {
	items := make(chan int, len(group.Stories))
	closed := make(chan struct{})

	p := stories.NewPlayer(group, 0, stories.PlayerOptions{
		Clock:   s.clock,
		OnItem:  func(i int, _ models.Story) { items <- i },
		OnClose: func() { close(closed) },
	})
	defer p.Close()

	w := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			printf(w, "end of %s's stories\n", group.OwnerID)
			return nil
		case i := <-items:
			st := group.Stories[i]
			printf(w, "[%d/%d] %s %s\n", i+1, len(group.Stories), st.Kind, storyText(st))

			vctx, cancel := s.timeout(ctx)
			svc.RecordView(vctx, st, s.owner)
			cancel()

			if st.Kind.TimedMedia() {
				p.MediaReady(stories.DefaultItemDuration)
			}
		}
	}
}

func storyText(st models.Story) string {
	switch {
	case st.MediaRef != "" && st.Body != "":
		return st.Body + " <" + st.MediaRef + ">"
	case st.MediaRef != "":
		return "<" + st.MediaRef + ">"
	}
	return st.Body
}

func newStoriesCreateCommand(s *session) *cobra.Command {
	var (
		kind    string
		body    string
		privacy string
		ttl     time.Duration
		media   string
		options []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if body == "" && media == "" && kind == string(models.KindText) {
				text, err := PromptLine(bufio.NewReader(cmd.InOrStdin()), "Story text", cmd.ErrOrStderr())
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				body = text
			}
			in := stories.CreateInput{
				OwnerID:     s.owner,
				Kind:        models.Kind(kind),
				Body:        body,
				Privacy:     models.Privacy(privacy),
				TTL:         ttl,
				PollOptions: options,
			}
			if media != "" {
				data, err := os.ReadFile(media)
				if err != nil {
					return fmt.Errorf("read media: %w", err)
				}
				in.Media = data
				in.MediaName = filepath.Base(media)
				in.ContentType = mime.TypeByExtension(filepath.Ext(media))
			}

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			st, err := s.stories().Create(ctx, in)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "story %s posted, expires %s\n", st.ID, st.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(models.KindText), "story kind (text|image|video|voice|poll|link|file)")
	cmd.Flags().StringVar(&body, "body", "", "story text, or the question of a poll")
	cmd.Flags().StringVar(&privacy, "privacy", string(models.PrivacyPublic), "audience (public|followers|only_me)")
	cmd.Flags().DurationVar(&ttl, "ttl", models.StoryTTL24h, "lifetime (12h|24h|48h)")
	cmd.Flags().StringVar(&media, "media", "", "path of a media file to attach")
	cmd.Flags().StringArrayVar(&options, "option", nil, "poll option, repeatable")
	return cmd
}
