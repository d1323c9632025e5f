package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/socialsync/internal/backup"
)

// NewBackupCommand creates the chat backup command group.
func NewBackupCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export and restore chat message backups",
	}
	cmd.AddCommand(newBackupExportCommand(s))
	cmd.AddCommand(newBackupRestoreCommand(s))
	return cmd
}

func (s *session) backups() *backup.Service {
	return backup.New(s.backend.Store, s.backend.Mirror, backup.Options{Clock: s.clock, Log: s.log})
}

func newBackupExportCommand(s *session) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every message of your chats to a backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create backup file: %w", err)
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			file, err := s.backups().Export(ctx, s.owner, w)
			if err != nil {
				return err
			}
			if out != "" {
				printf(cmd.ErrOrStderr(), "exported %d messages to %s\n", file.MessageCount, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "backup file path; stdout when empty")
	return cmd
}

func newBackupRestoreCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore messages from a backup without overwriting existing ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open backup file: %w", err)
			}
			defer f.Close()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			rep, err := s.backups().Restore(ctx, s.owner, f)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "restored %d, skipped %d existing, %d failed\n", rep.Inserted, rep.Skipped, rep.Failed)
			return nil
		},
	}
}
