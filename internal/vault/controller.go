// Package vault implements the PIN-gated private bag: a locked/unlocked
// session, quota enforcement, local-first writes and the migration of
// items created offline.
package vault

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/cryptox"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/models"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/blob"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

// DefaultQuota is the storage allowance of a non-exempt owner.
const DefaultQuota int64 = 50 * 1024 * 1024

const (
	tableItems = "vault_items"
	minPINLen  = 4
)

// Mirror is the local table vault items are written to first.
type Mirror interface {
	Get(ctx context.Context, id string) (models.VaultItem, error)
	Put(ctx context.Context, v models.VaultItem) error
	BulkPut(ctx context.Context, vs []models.VaultItem) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, scope string) ([]models.VaultItem, error)
	Usage(ctx context.Context, scope string) (int64, error)
	Swap(ctx context.Context, oldID string, v models.VaultItem) error
}

type Options struct {
	Quota int64
	// Unlimited lists owners exempt from the quota.
	Unlimited []string
	Bucket    string
	Blobs     remote.BlobStore
	// Online reports backend connectivity. Nil means always online.
	Online  func() bool
	Timeout time.Duration
	Clock   timex.Clock
	Log     logging.Logger
}

// Controller starts Locked. Every item read or write requires Unlocked.
type Controller struct {
	owner  string
	pins   PINStore
	local  Mirror
	remote remote.Store
	opts   Options
	log    logging.Logger

	mu       sync.Mutex
	unlocked bool
	index    map[string]models.VaultItem

	// tails holds, per item, the completion channel of the newest
	// background write, so remote writes for one item run in order.
	tails map[string]chan struct{}

	// writes serialises read-modify-write cycles on the mirror.
	writes sync.Mutex
	wg     sync.WaitGroup
}

func New(owner string, pins PINStore, local Mirror, store remote.Store, opts Options) *Controller {
	if opts.Quota <= 0 {
		opts.Quota = DefaultQuota
	}
	if opts.Bucket == "" {
		opts.Bucket = "bag"
	}
	if opts.Online == nil {
		opts.Online = func() bool { return true }
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = timex.System()
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Controller{
		owner:  owner,
		pins:   pins,
		local:  local,
		remote: store,
		opts:   opts,
		log:    opts.Log.With("module", "vault", "owner_id", owner),
		index:  make(map[string]models.VaultItem),
		tails:  make(map[string]chan struct{}),
	}
}

func (c *Controller) Unlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocked
}

func (c *Controller) checkUnlocked() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.unlocked {
		return common.ErrLocked
	}
	return nil
}

// Unlock opens the session when pin matches the stored one. An owner who
// never set a PIN gets common.ErrPINNotConfigured and must call SetupPIN.
func (c *Controller) Unlock(ctx context.Context, pin string) error {
	salt, digest, err := c.pins.Load(ctx, c.owner)
	if err != nil {
		return err
	}
	if !cryptox.VerifyPIN(pin, salt, digest) {
		c.log.Warn(ctx, "vault unlock rejected")
		return common.ErrAuthMismatch
	}
	c.mu.Lock()
	c.unlocked = true
	c.mu.Unlock()
	c.log.Info(ctx, "vault unlocked")
	return nil
}

// Lock closes the session and drops every cached item. It is idempotent.
func (c *Controller) Lock() {
	c.mu.Lock()
	c.unlocked = false
	c.index = make(map[string]models.VaultItem)
	c.mu.Unlock()
}

// SetupPIN stores the first PIN and unlocks the session.
func (c *Controller) SetupPIN(ctx context.Context, pin string) error {
	if err := validatePIN(pin); err != nil {
		return err
	}
	configured, err := pinConfigured(loadErr(c.pins.Load(ctx, c.owner)))
	if err != nil {
		return err
	}
	if configured {
		return common.ErrPINAlreadyConfigured
	}
	if err := c.savePIN(ctx, pin); err != nil {
		return err
	}
	c.mu.Lock()
	c.unlocked = true
	c.mu.Unlock()
	return nil
}

// ChangePIN replaces the PIN after verifying oldPIN. The change takes effect
// only once the remote store has accepted it.
func (c *Controller) ChangePIN(ctx context.Context, oldPIN, newPIN string) error {
	if err := validatePIN(newPIN); err != nil {
		return err
	}
	salt, digest, err := c.pins.Load(ctx, c.owner)
	if err != nil {
		return err
	}
	if !cryptox.VerifyPIN(oldPIN, salt, digest) {
		return common.ErrAuthMismatch
	}
	return c.savePIN(ctx, newPIN)
}

func (c *Controller) savePIN(ctx context.Context, pin string) error {
	salt := cryptox.NewSalt()
	digest := cryptox.HashPIN(pin, salt)
	defer common.WipeByteArray(digest)
	return c.pins.Save(ctx, c.owner, salt, digest)
}

func loadErr(_, _ []byte, err error) error { return err }

func validatePIN(pin string) error {
	if len(pin) < minPINLen {
		return fmt.Errorf("pin must have at least %d characters: %w", minPINLen, common.ErrValidation)
	}
	return nil
}

// ListItems returns the owner's items, oldest first. When online the mirror
// is refreshed from the remote store first; a failed refresh falls back to
// the mirror alone.
func (c *Controller) ListItems(ctx context.Context) ([]models.VaultItem, error) {
	if err := c.checkUnlocked(); err != nil {
		return nil, err
	}
	if c.opts.Online() {
		if err := c.refresh(ctx); err != nil {
			c.log.Warn(ctx, "vault refresh failed, serving local items", "err", err)
		}
	}
	stored, err := c.local.List(ctx, c.owner)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.unlocked {
		return nil, common.ErrLocked
	}
	items := stored[:0:0]
	for _, it := range stored {
		if it.SyncState == models.SyncDeleted {
			continue
		}
		c.index[it.ID] = it
		items = append(items, it)
	}
	return items, nil
}

// refresh makes the synced part of the mirror match the remote store: remote
// items are copied in and synced items the remote no longer has are dropped.
// Entries with unconfirmed local changes, tombstones included, are left
// alone. The write lock is held across the select so a background write
// cannot confirm an item between the snapshot and the reconcile.
func (c *Controller) refresh(ctx context.Context) error {
	c.writes.Lock()
	defer c.writes.Unlock()

	rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	rows, err := c.remote.Select(rctx, tableItems, remote.Query{
		Filters: []remote.Filter{remote.Eq("owner_id", c.owner)},
		Order:   []remote.Order{remote.Asc("created_at")},
	})
	if err != nil {
		return err
	}
	local, err := c.local.List(ctx, c.owner)
	if err != nil {
		return err
	}
	states := make(map[string]models.SyncState, len(local))
	for _, it := range local {
		states[it.ID] = it.SyncState
	}

	seen := make(map[string]bool, len(rows))
	var fresh []models.VaultItem
	for _, row := range rows {
		it, err := models.DecodeVaultItem(row)
		if err != nil {
			c.log.Warn(ctx, "skipping malformed vault item", "err", err)
			continue
		}
		seen[it.ID] = true
		if st, ok := states[it.ID]; ok && st != models.SyncSynced {
			continue
		}
		fresh = append(fresh, it)
	}
	if err := c.local.BulkPut(ctx, fresh); err != nil {
		return err
	}

	for _, it := range local {
		if it.SyncState != models.SyncSynced || models.IsLocalID(it.ID) || seen[it.ID] {
			continue
		}
		if err := c.local.Delete(ctx, it.ID); err != nil {
			return err
		}
		c.forget(it.ID)
		c.log.Debug(ctx, "dropped vault item deleted remotely", "item_id", it.ID)
	}
	return nil
}

// live reads an item from the mirror, treating tombstones as absent.
func (c *Controller) live(ctx context.Context, id string) (models.VaultItem, error) {
	it, err := c.local.Get(ctx, id)
	if err != nil {
		return models.VaultItem{}, err
	}
	if it.SyncState == models.SyncDeleted {
		return models.VaultItem{}, fmt.Errorf("vault item %s: %w", id, common.ErrNotFound)
	}
	return it, nil
}

// GetItem returns one item.
func (c *Controller) GetItem(ctx context.Context, id string) (models.VaultItem, error) {
	if err := c.checkUnlocked(); err != nil {
		return models.VaultItem{}, err
	}
	return c.live(ctx, id)
}

// Usage is the owner's stored byte count.
func (c *Controller) Usage(ctx context.Context) (int64, error) {
	if err := c.checkUnlocked(); err != nil {
		return 0, err
	}
	return c.local.Usage(ctx, c.owner)
}

func (c *Controller) exempt() bool {
	return slices.Contains(c.opts.Unlimited, c.owner)
}

func (c *Controller) checkQuota(ctx context.Context, delta int64) error {
	if c.exempt() || delta <= 0 {
		return nil
	}
	usage, err := c.local.Usage(ctx, c.owner)
	if err != nil {
		return err
	}
	if usage+delta > c.opts.Quota {
		return fmt.Errorf("%d bytes used, %d requested, quota %d: %w", usage, delta, c.opts.Quota, common.ErrQuotaExceeded)
	}
	return nil
}

// NewItem is the input of AddItem.
type NewItem struct {
	Type     models.VaultItemType
	Title    string
	Category string
	Content  string
	Metadata map[string]string
}

// AddItem stores an item locally and sends it to the remote store in the
// background. A remote failure leaves the item in place marked
// models.SyncFailed. Offline, the item gets a local id and stays local
// until MigrateLocalItem.
func (c *Controller) AddItem(ctx context.Context, in NewItem) (models.VaultItem, error) {
	if err := c.checkUnlocked(); err != nil {
		return models.VaultItem{}, err
	}
	if in.Type == "" {
		in.Type = models.VaultNote
	}
	if !in.Type.Valid() {
		return models.VaultItem{}, fmt.Errorf("unknown vault item type %q: %w", in.Type, common.ErrValidation)
	}
	if strings.TrimSpace(in.Content) == "" && strings.TrimSpace(in.Title) == "" {
		return models.VaultItem{}, fmt.Errorf("vault item is empty: %w", common.ErrValidation)
	}

	online := c.opts.Online()
	id := uuid.NewString()
	if !online {
		id = models.NewLocalID()
	}
	item := models.VaultItem{
		ID:        id,
		OwnerID:   c.owner,
		Type:      in.Type,
		Title:     in.Title,
		Category:  in.Category,
		Content:   in.Content,
		Metadata:  in.Metadata,
		CreatedAt: c.opts.Clock.Now().UTC(),
		SyncState: models.SyncPending,
	}
	if err := c.checkQuota(ctx, item.SizeBytes()); err != nil {
		return models.VaultItem{}, err
	}
	if err := c.local.Put(ctx, item); err != nil {
		return models.VaultItem{}, err
	}
	c.remember(item)

	if online {
		c.push(ctx, item, func(ctx context.Context) error {
			_, err := c.remote.Insert(ctx, tableItems, item.Row())
			if errors.Is(err, common.ErrDuplicate) {
				return nil
			}
			return err
		})
	}
	return item, nil
}

// AddFile uploads data to blob storage and records it as an item whose
// content is the object's URL. Uploads need connectivity.
func (c *Controller) AddFile(ctx context.Context, name, contentType string, data []byte, title string) (models.VaultItem, error) {
	if err := c.checkUnlocked(); err != nil {
		return models.VaultItem{}, err
	}
	if len(data) == 0 {
		return models.VaultItem{}, fmt.Errorf("file %q is empty: %w", name, common.ErrValidation)
	}
	if c.opts.Blobs == nil {
		return models.VaultItem{}, fmt.Errorf("file upload: %w", common.ErrNotSupported)
	}
	if !c.opts.Online() {
		return models.VaultItem{}, fmt.Errorf("file upload: %w", common.ErrUnavailable)
	}
	size := int64(len(data))
	if err := c.checkQuota(ctx, size); err != nil {
		return models.VaultItem{}, err
	}

	key := blob.ObjectKey(c.owner, name, c.opts.Clock.Now())
	if err := c.opts.Blobs.Upload(ctx, c.opts.Bucket, key, data, contentType); err != nil {
		return models.VaultItem{}, fmt.Errorf("upload %q: %w", name, err)
	}
	if title == "" {
		title = name
	}
	return c.AddItem(ctx, NewItem{
		Type:    typeFor(contentType),
		Title:   title,
		Content: c.opts.Blobs.PublicURL(c.opts.Bucket, key),
		Metadata: map[string]string{
			"size":         strconv.FormatInt(size, 10),
			"name":         name,
			"content_type": contentType,
			"path":         key,
		},
	})
}

// Download returns an item with its file body. Text items carry their body
// in Content and are returned as is.
func (c *Controller) Download(ctx context.Context, id string) (models.VaultItem, []byte, error) {
	it, err := c.GetItem(ctx, id)
	if err != nil {
		return models.VaultItem{}, nil, err
	}
	path := it.Metadata["path"]
	if path == "" {
		return it, []byte(it.Content), nil
	}
	fetcher, ok := c.opts.Blobs.(remote.BlobFetcher)
	if !ok {
		return models.VaultItem{}, nil, fmt.Errorf("file download: %w", common.ErrNotSupported)
	}
	if !c.opts.Online() {
		return models.VaultItem{}, nil, fmt.Errorf("file download: %w", common.ErrUnavailable)
	}
	data, err := fetcher.Fetch(ctx, c.opts.Bucket, path)
	if err != nil {
		return models.VaultItem{}, nil, fmt.Errorf("download %q: %w", it.Title, err)
	}
	return it, data, nil
}

func typeFor(contentType string) models.VaultItemType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.VaultImage
	case strings.HasPrefix(contentType, "video/"):
		return models.VaultVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.VaultAudio
	}
	return models.VaultFile
}

// ItemPatch holds the editable fields; nil fields are left unchanged.
type ItemPatch struct {
	Title    *string
	Category *string
	Content  *string
}

func (p ItemPatch) row() models.Row {
	row := models.Row{}
	if p.Title != nil {
		row["title"] = *p.Title
	}
	if p.Category != nil {
		row["category"] = *p.Category
	}
	if p.Content != nil {
		row["content"] = *p.Content
	}
	return row
}

// UpdateItem edits an item locally and remotely. Editing an offline-created
// item while online migrates it to a permanent id first; the returned item
// carries the id it now lives under.
func (c *Controller) UpdateItem(ctx context.Context, id string, patch ItemPatch) (models.VaultItem, error) {
	if err := c.checkUnlocked(); err != nil {
		return models.VaultItem{}, err
	}
	if models.IsLocalID(id) && c.opts.Online() {
		migrated, err := c.MigrateLocalItem(ctx, id)
		if err != nil {
			return models.VaultItem{}, err
		}
		id = migrated.ID
	}

	c.writes.Lock()
	defer c.writes.Unlock()
	item, err := c.live(ctx, id)
	if err != nil {
		return models.VaultItem{}, err
	}
	next := item
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Category != nil {
		next.Category = *patch.Category
	}
	if patch.Content != nil {
		next.Content = *patch.Content
	}
	next.UpdatedAt = c.opts.Clock.Now().UTC()
	if err := c.checkQuota(ctx, next.SizeBytes()-item.SizeBytes()); err != nil {
		return models.VaultItem{}, err
	}

	if models.IsLocalID(id) {
		if err := c.local.Put(ctx, next); err != nil {
			return models.VaultItem{}, err
		}
		c.remember(next)
		return next, nil
	}

	next.SyncState = models.SyncPending
	if err := c.local.Put(ctx, next); err != nil {
		return models.VaultItem{}, err
	}
	c.remember(next)
	remotePatch := patch.row()
	remotePatch["updated_at"] = next.UpdatedAt
	c.push(ctx, next, func(ctx context.Context) error {
		n, err := c.remote.Update(ctx, tableItems, []remote.Filter{remote.Eq("id", id)}, remotePatch)
		if err == nil && n == 0 {
			_, err = c.remote.Insert(ctx, tableItems, next.Row())
		}
		return err
	})
	return next, nil
}

// DeleteItem hides an item at once and deletes it remotely in the
// background. Until the remote delete is confirmed the mirror keeps an
// empty tombstone, so refresh cannot bring the item back and Resync can
// replay the delete. Local-only items are dropped outright.
func (c *Controller) DeleteItem(ctx context.Context, id string) error {
	if err := c.checkUnlocked(); err != nil {
		return err
	}

	c.writes.Lock()
	item, err := c.live(ctx, id)
	if err == nil {
		if models.IsLocalID(id) {
			err = c.local.Delete(ctx, id)
		} else {
			err = c.local.Put(ctx, models.VaultItem{
				ID:        item.ID,
				OwnerID:   item.OwnerID,
				Type:      item.Type,
				CreatedAt: item.CreatedAt,
				UpdatedAt: c.opts.Clock.Now().UTC(),
				SyncState: models.SyncDeleted,
			})
		}
	}
	c.writes.Unlock()
	if err != nil {
		return err
	}
	c.forget(id)
	if models.IsLocalID(id) {
		return nil
	}

	bg := context.WithoutCancel(ctx)
	c.serial(id, func() {
		if err := c.sendDelete(bg, id); err != nil {
			c.log.Warn(bg, "remote vault delete failed, tombstone kept", "item_id", id, "err", err)
		}
	})
	return nil
}

// sendDelete deletes id remotely and then drops its tombstone.
func (c *Controller) sendDelete(ctx context.Context, id string) error {
	rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if _, err := c.remote.Delete(rctx, tableItems, []remote.Filter{remote.Eq("id", id)}); err != nil {
		return err
	}

	c.writes.Lock()
	defer c.writes.Unlock()
	it, err := c.local.Get(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if it.SyncState != models.SyncDeleted {
		return nil
	}
	return c.local.Delete(ctx, id)
}

// MigrateLocalItem gives an offline-created item a permanent id. The item
// is inserted remotely under the new id, then the local record is swapped
// in one transaction. If the swap fails the remote insert is undone and the
// local id stays valid.
func (c *Controller) MigrateLocalItem(ctx context.Context, localID string) (models.VaultItem, error) {
	if err := c.checkUnlocked(); err != nil {
		return models.VaultItem{}, err
	}
	if !models.IsLocalID(localID) {
		return models.VaultItem{}, fmt.Errorf("%s is not a local id: %w", localID, common.ErrValidation)
	}

	c.writes.Lock()
	defer c.writes.Unlock()

	item, err := c.local.Get(ctx, localID)
	if err != nil {
		return models.VaultItem{}, err
	}
	migrated := item
	migrated.ID = uuid.NewString()

	rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	if _, err := c.remote.Insert(rctx, tableItems, migrated.Row()); err != nil {
		return models.VaultItem{}, fmt.Errorf("migrate %s: %w", localID, err)
	}

	migrated.SyncState = models.SyncSynced
	if err := c.local.Swap(ctx, localID, migrated); err != nil {
		if _, derr := c.remote.Delete(rctx, tableItems, []remote.Filter{remote.Eq("id", migrated.ID)}); derr != nil {
			c.log.Error(ctx, "failed to undo remote insert of migrated item", "item_id", migrated.ID, "err", derr)
		}
		return models.VaultItem{}, fmt.Errorf("migrate %s: %w", localID, err)
	}

	c.mu.Lock()
	if _, ok := c.index[localID]; ok {
		delete(c.index, localID)
		c.index[migrated.ID] = migrated
	}
	c.mu.Unlock()
	c.log.Info(ctx, "migrated local vault item", "local_id", localID, "item_id", migrated.ID)
	return migrated, nil
}

// Resync retries items that are not confirmed yet, replays pending deletes
// and migrates local ones. It returns how many items were brought in sync.
func (c *Controller) Resync(ctx context.Context) (int, error) {
	if err := c.checkUnlocked(); err != nil {
		return 0, err
	}
	if !c.opts.Online() {
		return 0, common.ErrUnavailable
	}
	c.Flush()
	items, err := c.local.List(ctx, c.owner)
	if err != nil {
		return 0, err
	}

	n := 0
	var errs []error
	for _, it := range items {
		switch {
		case it.SyncState == models.SyncSynced:
			continue
		case it.SyncState == models.SyncDeleted:
			if err := c.sendDelete(ctx, it.ID); err != nil {
				errs = append(errs, fmt.Errorf("resync delete %s: %w", it.ID, err))
				continue
			}
			n++
			continue
		}
		if models.IsLocalID(it.ID) {
			if _, err := c.MigrateLocalItem(ctx, it.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
			continue
		}
		rctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		_, err := c.remote.Insert(rctx, tableItems, it.Row())
		if errors.Is(err, common.ErrDuplicate) {
			_, err = c.remote.Update(rctx, tableItems, []remote.Filter{remote.Eq("id", it.ID)}, it.Row())
		}
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("resync %s: %w", it.ID, err))
			continue
		}
		if err := c.setSyncState(ctx, it.ID, models.SyncSynced); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Flush waits for background remote writes.
func (c *Controller) Flush() { c.wg.Wait() }

// Cached returns the items seen by this session.
func (c *Controller) Cached() map[string]models.VaultItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.VaultItem, len(c.index))
	for k, v := range c.index {
		out[k] = v
	}
	return out
}

func (c *Controller) remember(it models.VaultItem) {
	c.mu.Lock()
	c.index[it.ID] = it
	c.mu.Unlock()
}

func (c *Controller) forget(id string) {
	c.mu.Lock()
	delete(c.index, id)
	c.mu.Unlock()
}

// push runs send in the background and records its outcome on the local
// copy.
func (c *Controller) push(ctx context.Context, item models.VaultItem, send func(context.Context) error) {
	bg := context.WithoutCancel(ctx)
	c.serial(item.ID, func() {
		rctx, cancel := context.WithTimeout(bg, c.opts.Timeout)
		defer cancel()

		state := models.SyncSynced
		if err := send(rctx); err != nil {
			c.log.Warn(rctx, "remote vault write failed, item kept locally", "item_id", item.ID, "err", err)
			state = models.SyncFailed
		}
		if err := c.setSyncState(rctx, item.ID, state); err != nil && !errors.Is(err, common.ErrNotFound) {
			c.log.Warn(rctx, "failed to record vault sync state", "item_id", item.ID, "err", err)
		}
	})
}

// serial runs fn in the background once every earlier background write for
// the same item has finished.
func (c *Controller) serial(id string, fn func()) {
	done := make(chan struct{})
	c.mu.Lock()
	prev := c.tails[id]
	c.tails[id] = done
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if prev != nil {
			<-prev
		}
		fn()
		close(done)
		c.mu.Lock()
		if c.tails[id] == done {
			delete(c.tails, id)
		}
		c.mu.Unlock()
	}()
}

// setSyncState records the outcome of a remote write. A tombstone is never
// revived by a write that finished after the delete.
func (c *Controller) setSyncState(ctx context.Context, id string, state models.SyncState) error {
	c.writes.Lock()
	defer c.writes.Unlock()
	it, err := c.local.Get(ctx, id)
	if err != nil {
		return err
	}
	if it.SyncState == models.SyncDeleted {
		return nil
	}
	it.SyncState = state
	if err := c.local.Put(ctx, it); err != nil {
		return err
	}
	c.mu.Lock()
	if _, ok := c.index[id]; ok {
		c.index[id] = it
	}
	c.mu.Unlock()
	return nil
}
