package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/socialsync/internal/feed"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
)

// NewFeedCommand creates the feed command group.
func NewFeedCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Read the main feed",
	}
	cmd.AddCommand(newFeedTailCommand(s))
	return cmd
}

func newFeedTailCommand(s *session) *cobra.Command {
	var (
		count  int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the newest posts, optionally following new ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				count = s.cfg.FeedPageSize
			}
			w := cmd.OutOrStdout()

			events := make(chan feed.Event, 64)
			a := feed.NewAdapter(s.backend.Store, s.backend.Sub, s.owner, feed.Options{
				PageSize: count,
				Log:      s.log,
				OnChange: func(e feed.Event) {
					select {
					case events <- e:
					default:
						s.log.Warn(cmd.Context(), "feed output is lagging, dropping event", "post_id", e.ID.String())
					}
				},
			})

			ctx, cancel := s.timeout(cmd.Context())
			err := a.Load(ctx)
			cancel()
			if err != nil {
				return err
			}
			posts := a.List().Items()
			for i := len(posts) - 1; i >= 0; i-- {
				printf(w, "%s\n", formatPost(posts[i]))
			}
			if !follow {
				return nil
			}

			ctx = cmd.Context()
			if err := a.Start(ctx); err != nil {
				return err
			}
			defer a.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case e := <-events:
					switch e.Type {
					case remote.EventDelete:
						printf(w, "- %s deleted\n", e.ID)
					default:
						if p, _, ok := a.List().Get(e.ID); ok {
							printf(w, "%s %s\n", eventMark(e.Type), formatPost(p))
						}
					}
				}
			}
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of posts to show; the configured page size when 0")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new posts until interrupted")
	return cmd
}

func eventMark(t remote.EventType) string {
	if t == remote.EventInsert {
		return "+"
	}
	return "~"
}

func formatPost(p models.Post) string {
	author := p.OwnerID
	if p.Author != nil && p.Author.Username != "" {
		author = "@" + p.Author.Username
	}
	line := p.CreatedAt.Format("2006-01-02 15:04") + " " + author + ": " + p.Body
	if p.MediaRef != "" {
		line += " <" + p.MediaRef + ">"
	}
	if like, ok := p.Relations[models.RelationLike]; ok {
		line += fmt.Sprintf(" [%d likes]", like.Count)
		if like.On {
			line += " (liked)"
		}
	}
	return line
}
