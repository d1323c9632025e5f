package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/vault"
)

// NewVaultCommand creates the vault command group. Every invocation starts
// locked, so item commands prompt for the PIN first.
func NewVaultCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the PIN-protected vault",
	}
	cmd.AddCommand(newVaultUnlockCommand(s))
	cmd.AddCommand(newVaultListCommand(s))
	cmd.AddCommand(newVaultAddCommand(s))
	cmd.AddCommand(newVaultGetCommand(s))
	cmd.AddCommand(newVaultEditCommand(s))
	cmd.AddCommand(newVaultRemoveCommand(s))
	cmd.AddCommand(newVaultSyncCommand(s))
	cmd.AddCommand(newVaultPINCommand(s))
	return cmd
}

func (s *session) vault() *vault.Controller {
	return vault.New(s.owner, vault.RemotePINStore{Store: s.backend.Store}, s.backend.Mirror.Vault, s.backend.Store, vault.Options{
		Quota:     s.cfg.VaultQuotaBytes,
		Unlimited: s.cfg.VaultUnlimitedOwners,
		Bucket:    s.cfg.BagBucket,
		Blobs:     s.backend.Blobs,
		Online:    s.monitor.Online,
		Timeout:   s.cfg.RemoteTimeout,
		Clock:     s.clock,
		Log:       s.log,
	})
}

// unlocked prompts for the PIN and returns an unlocked controller.
func (s *session) unlocked(cmd *cobra.Command) (*vault.Controller, error) {
	c := s.vault()
	pin, err := GetPIN(cmd.ErrOrStderr(), "Vault PIN")
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.timeout(cmd.Context())
	defer cancel()
	if err := c.Unlock(ctx, pin); err != nil {
		if errors.Is(err, common.ErrPINNotConfigured) {
			return nil, fmt.Errorf("%w: run 'socialctl vault pin' first", err)
		}
		return nil, err
	}
	return c, nil
}

func newVaultUnlockCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Check the PIN and show vault usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			if _, err := c.ListItems(ctx); err != nil {
				return err
			}
			used, err := c.Usage(ctx)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "vault unlocked: %d of %d bytes used\n", used, s.cfg.VaultQuotaBytes)
			return nil
		},
	}
}

func newVaultListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List vault items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			items, err := c.ListItems(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(items) == 0 {
				printf(w, "vault is empty\n")
				return nil
			}
			for _, it := range items {
				printf(w, "%s\t%s\t%s\t%s\t%d bytes\t%s\n",
					it.ID, it.Type, it.Title, it.Category, it.SizeBytes(), it.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newVaultAddCommand(s *session) *cobra.Command {
	var (
		itemType string
		title    string
		category string
		content  string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a note, link or file to the vault",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" && content == "" {
				text, err := GetMultiline(bufio.NewReader(cmd.InOrStdin()), "Content", cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				content = text
			}

			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()

			var it models.VaultItem
			if file != "" {
				it, err = addFile(ctx, c, file, title)
			} else {
				it, err = c.AddItem(ctx, vault.NewItem{
					Type:     models.VaultItemType(itemType),
					Title:    title,
					Category: category,
					Content:  content,
				})
			}
			if err != nil {
				return err
			}
			// Wait for the background push so the process does not exit
			// before the item reaches the backend.
			c.Flush()
			state := models.SyncSynced
			if cached, ok := c.Cached()[it.ID]; ok && cached.SyncState != "" {
				state = cached.SyncState
			}
			if models.IsLocalID(it.ID) {
				state = models.SyncPending
			}
			printf(cmd.OutOrStdout(), "added %s %q (%s)\n", it.Type, it.Title, state)
			return nil
		},
	}

	cmd.Flags().StringVar(&itemType, "type", string(models.VaultNote), "item type (note|link|message)")
	cmd.Flags().StringVar(&title, "title", "", "item title")
	cmd.Flags().StringVar(&category, "category", "", "item category")
	cmd.Flags().StringVar(&content, "content", "", "item content; read from stdin when empty")
	cmd.Flags().StringVar(&file, "file", "", "path of a file to upload instead of text content")
	return cmd
}

func addFile(ctx context.Context, c *vault.Controller, path, title string) (models.VaultItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.VaultItem{}, fmt.Errorf("read file: %w", err)
	}
	name := filepath.Base(path)
	return c.AddFile(ctx, name, mime.TypeByExtension(filepath.Ext(name)), data, title)
}

func newVaultGetCommand(s *session) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a vault item, or save its file with --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			it, data, err := c.Download(ctx, args[0])
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			printf(cmd.OutOrStdout(), "saved %q to %s (%d bytes)\n", it.Title, out, len(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the item body to this file")
	return cmd
}

func newVaultEditCommand(s *session) *cobra.Command {
	var title, category, content string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the title, category or content of a vault item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch vault.ItemPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("category") {
				patch.Category = &category
			}
			if flags.Changed("content") {
				patch.Content = &content
			}
			if patch == (vault.ItemPatch{}) {
				return fmt.Errorf("nothing to change: %w", common.ErrValidation)
			}

			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			it, err := c.UpdateItem(ctx, args[0], patch)
			if err != nil {
				return err
			}
			c.Flush()
			printf(cmd.OutOrStdout(), "updated %s %q\n", it.ID, it.Title)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().StringVar(&content, "content", "", "new content")
	return cmd
}

func newVaultRemoveCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a vault item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			if err := c.DeleteItem(ctx, args[0]); err != nil {
				return err
			}
			c.Flush()
			printf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

// newVaultSyncCommand pushes every item whose last remote write failed or
// that was created offline, including pending deletes.
func newVaultSyncCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Retry vault changes that have not reached the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.unlocked(cmd)
			if err != nil {
				return err
			}
			defer c.Lock()

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			n, err := c.Resync(ctx)
			printf(cmd.OutOrStdout(), "vault synced: %d item(s)\n", n)
			return err
		},
	}
}

func newVaultPINCommand(s *session) *cobra.Command {
	var change bool

	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Set up the vault PIN, or change it with --change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := s.vault()
			defer c.Lock()
			prompt := cmd.ErrOrStderr()

			var old string
			if change {
				var err error
				if old, err = GetPIN(prompt, "Current PIN"); err != nil {
					return err
				}
			}
			pin, err := GetNewPIN(prompt)
			if err != nil {
				return err
			}

			ctx, cancel := s.timeout(cmd.Context())
			defer cancel()
			if change {
				err = c.ChangePIN(ctx, old, pin)
			} else {
				err = c.SetupPIN(ctx, pin)
			}
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "vault pin saved\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&change, "change", false, "change an existing PIN")
	return cmd
}
