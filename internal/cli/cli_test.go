package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/app"
	"github.com/dmitrijs2005/socialsync/internal/common"
	"github.com/dmitrijs2005/socialsync/internal/config"
	"github.com/dmitrijs2005/socialsync/internal/logging"
	"github.com/dmitrijs2005/socialsync/internal/remote"
	"github.com/dmitrijs2005/socialsync/internal/remote/memory"
	"github.com/dmitrijs2005/socialsync/internal/stories"
	"github.com/dmitrijs2005/socialsync/internal/testutil"
	"github.com/dmitrijs2005/socialsync/internal/timex"
)

type harness struct {
	mem   *memory.Store
	clock *testutil.FakeClock
	cfg   config.Config
	dir   string

	mu   sync.Mutex
	pins []string
}

// newHarness points every seam at a shared in-process backend so state
// survives across invocations like it would against a real backend.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mem:   memory.New(),
		clock: testutil.NewFakeClock(time.Now().UTC().Truncate(time.Second)),
		dir:   t.TempDir(),
	}
	h.cfg.LoadDefaults()
	h.cfg.LocalDBPath = filepath.Join(h.dir, "mirror.db")
	h.cfg.RemoteTimeout = 2 * time.Second

	origLoad, origOpen, origClock, origRead := loadConfig, openBackend, newClock, readPassword
	t.Cleanup(func() {
		loadConfig, openBackend, newClock, readPassword = origLoad, origOpen, origClock, origRead
	})

	loadConfig = func([]string) (*config.Config, error) {
		c := h.cfg
		return &c, nil
	}
	openBackend = func(ctx context.Context, cfg *config.Config, _ logging.Logger, demo bool) (*app.Backend, error) {
		return app.OpenMemory(ctx, cfg, h.mem)
	}
	newClock = func() timex.Clock { return h.clock }
	readPassword = func(int) ([]byte, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.pins) == 0 {
			return nil, errors.New("no pin queued")
		}
		p := h.pins[0]
		h.pins = h.pins[1:]
		return []byte(p), nil
	}
	return h
}

func (h *harness) queuePINs(pins ...string) {
	h.mu.Lock()
	h.pins = append(h.pins, pins...)
	h.mu.Unlock()
}

func (h *harness) run(ctx context.Context, stdin string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	err := Execute(ctx, append([]string{"--offline-demo", "--owner", "me"}, args...), strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

func TestRoot_RequiresToken(t *testing.T) {
	h := newHarness(t)

	var out bytes.Buffer
	err := Execute(context.Background(), []string{"stories", "list"}, strings.NewReader(""), &out, &out)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Zero(t, h.mem.TotalCalls())
}

func TestStories_CreateAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.run(ctx, "", "stories", "list")
	require.NoError(t, err)
	assert.Equal(t, "no active stories\n", out)

	out, err = h.run(ctx, "", "stories", "create", "--body", "hello", "--ttl", "12h")
	require.NoError(t, err)
	assert.Contains(t, out, "posted")

	out, err = h.run(ctx, "", "stories", "create", "--kind", "poll", "--body", "tea?", "--option", "yes", "--option", "no", "--privacy", "followers")
	require.NoError(t, err)
	assert.Contains(t, out, "posted")

	_, err = h.run(ctx, "", "stories", "create", "--kind", "poll", "--body", "lonely", "--option", "only")
	require.ErrorIs(t, err, common.ErrValidation)

	out, err = h.run(ctx, "", "stories", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "your stories (2)")
	assert.Contains(t, out, "followers")
}

func TestStories_CreatePromptsForText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.run(ctx, "typed on stdin\n", "stories", "create")
	require.NoError(t, err)
	assert.Contains(t, out, "posted")
	rows := h.mem.Rows("stories")
	require.Len(t, rows, 1)
	assert.Equal(t, "typed on stdin", rows[0].String("body"))

	_, err = h.run(ctx, "", "stories", "create")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestStories_CreateWithMedia(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "pic.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))

	_, err := h.run(context.Background(), "", "stories", "create", "--kind", "image", "--media", path)
	require.NoError(t, err)

	rows := h.mem.Rows("stories")
	require.Len(t, rows, 1)
	assert.True(t, strings.HasPrefix(rows[0].String("media_ref"), "memory://media/me/"))
}

func TestStories_ViewPlaysGroupAndRecordsViews(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()
	for i, id := range []string{"s1", "s2"} {
		h.mem.Seed("stories", remote.Row{
			"id": id, "owner_id": "bob", "kind": "text", "body": "hi " + id, "privacy_level": "public",
			"created_at": now.Add(time.Duration(i-10) * time.Minute), "expires_at": now.Add(24 * time.Hour),
		})
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.run(context.Background(), "", "stories", "view", "bob")
		done <- result{out, err}
	}()

	var res result
	deadline := time.After(5 * time.Second)
loop:
	for {
		select {
		case res = <-done:
			break loop
		case <-deadline:
			t.Fatal("playback did not finish")
		default:
			h.clock.Advance(stories.DefaultItemDuration)
			time.Sleep(time.Millisecond)
		}
	}

	require.NoError(t, res.err)
	assert.Contains(t, res.out, "[1/2] text hi s1")
	assert.Contains(t, res.out, "[2/2] text hi s2")
	assert.Contains(t, res.out, "end of bob's stories")
	assert.Len(t, h.mem.Rows("story_views"), 2)
}

func TestStories_ViewUnknownOwner(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(context.Background(), "", "stories", "view", "nobody")
	require.NoError(t, err)
	assert.Equal(t, "no active stories from nobody\n", out)
}

func TestVault_PINAddList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.queuePINs("1234")
	_, err := h.run(ctx, "", "vault", "list")
	require.ErrorIs(t, err, common.ErrPINNotConfigured)

	h.queuePINs("1234", "9999")
	_, err = h.run(ctx, "", "vault", "pin")
	require.ErrorIs(t, err, common.ErrValidation)

	h.queuePINs("1234", "1234")
	out, err := h.run(ctx, "", "vault", "pin")
	require.NoError(t, err)
	assert.Equal(t, "vault pin saved\n", out)

	h.queuePINs("1234")
	out, err = h.run(ctx, "line one\nline two\n\n", "vault", "add", "--title", "wifi", "--category", "home")
	require.NoError(t, err)
	assert.Equal(t, "added note \"wifi\" (synced)\n", out)

	rows := h.mem.Rows("vault_items")
	require.Len(t, rows, 1)
	assert.Equal(t, "line one\nline two", rows[0].String("content"))

	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "wifi\thome")

	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "vault unlocked: 17 of 52428800 bytes used")

	h.queuePINs("0000")
	_, err = h.run(ctx, "", "vault", "unlock")
	require.ErrorIs(t, err, common.ErrAuthMismatch)

	h.queuePINs("1234", "5678", "5678")
	_, err = h.run(ctx, "", "vault", "pin", "--change")
	require.NoError(t, err)

	h.queuePINs("5678")
	_, err = h.run(ctx, "", "vault", "unlock")
	require.NoError(t, err)
}

func TestVault_AddFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := filepath.Join(h.dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("file body"), 0o600))

	h.queuePINs("1234", "1234")
	_, err := h.run(ctx, "", "vault", "pin")
	require.NoError(t, err)

	h.queuePINs("1234")
	out, err := h.run(ctx, "", "vault", "add", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")

	rows := h.mem.Rows("vault_items")
	require.Len(t, rows, 1)
	md, ok := rows[0]["metadata"].(map[string]any)
	require.True(t, ok)
	path, _ = md["path"].(string)
	data, ok := h.mem.Blob("bag", path)
	require.True(t, ok)
	assert.Equal(t, "file body", string(data))

	dst := filepath.Join(h.dir, "copy.txt")
	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "get", rows[0].String("id"), "-o", dst)
	require.NoError(t, err)
	assert.Contains(t, out, "(9 bytes)")
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "file body", string(data))
}

func TestVault_SyncEditRemove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.queuePINs("1234", "1234")
	_, err := h.run(ctx, "", "vault", "pin")
	require.NoError(t, err)

	h.mem.FailOn("insert", "vault_items", common.ErrUnavailable)
	h.queuePINs("1234")
	out, err := h.run(ctx, "", "vault", "add", "--title", "wifi", "--content", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "added note \"wifi\" (failed)\n", out)
	assert.Empty(t, h.mem.Rows("vault_items"))

	h.mem.SetFault(nil)
	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "sync")
	require.NoError(t, err)
	assert.Equal(t, "vault synced: 1 item(s)\n", out)
	rows := h.mem.Rows("vault_items")
	require.Len(t, rows, 1)
	id := rows[0].String("id")

	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "sync")
	require.NoError(t, err)
	assert.Equal(t, "vault synced: 0 item(s)\n", out)

	_, err = h.run(ctx, "", "vault", "edit", id)
	require.ErrorIs(t, err, common.ErrValidation)

	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "edit", id, "--title", "home wifi")
	require.NoError(t, err)
	assert.Equal(t, "updated "+id+" \"home wifi\"\n", out)
	rows = h.mem.Rows("vault_items")
	require.Len(t, rows, 1)
	assert.Equal(t, "home wifi", rows[0].String("title"))
	assert.Equal(t, "hunter2", rows[0].String("content"))

	h.mem.FailOn("delete", "vault_items", common.ErrUnavailable)
	h.queuePINs("1234")
	_, err = h.run(ctx, "", "vault", "rm", id)
	require.NoError(t, err)
	assert.Len(t, h.mem.Rows("vault_items"), 1)

	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "list")
	require.NoError(t, err)
	assert.Equal(t, "vault is empty\n", out)

	h.mem.SetFault(nil)
	h.queuePINs("1234")
	out, err = h.run(ctx, "", "vault", "sync")
	require.NoError(t, err)
	assert.Equal(t, "vault synced: 1 item(s)\n", out)
	assert.Empty(t, h.mem.Rows("vault_items"))
}

func TestBackup_ExportRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	h.mem.Seed("chats", remote.Row{"id": "c1", "member_ids": []string{"me", "bob"}})
	h.mem.Seed("messages",
		remote.Row{"id": "m1", "chat_id": "c1", "sender_id": "me", "content": "hi", "kind": "message", "created_at": at},
		remote.Row{"id": "m2", "chat_id": "c1", "sender_id": "bob", "content": "yo", "kind": "message", "created_at": at.Add(time.Minute)},
	)

	path := filepath.Join(h.dir, "backup.json")
	_, err := h.run(ctx, "", "backup", "export", "--out", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"messageCount": 2`)

	out, err := h.run(ctx, "", "backup", "restore", path)
	require.NoError(t, err)
	assert.Equal(t, "restored 0, skipped 2 existing, 0 failed\n", out)

	stdout, err := h.run(ctx, "", "backup", "export")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"userId": "me"`)
}

func TestFeed_TailOldestFirst(t *testing.T) {
	h := newHarness(t)
	h.mem.Seed("profiles", remote.Row{"id": "bob", "username": "bob"})
	h.mem.Seed("posts",
		remote.Row{"id": "p1", "owner_id": "bob", "kind": "text", "body": "older", "created_at": "2025-06-01T10:00:00Z"},
		remote.Row{"id": "p2", "owner_id": "bob", "kind": "text", "body": "newer", "created_at": "2025-06-01T11:00:00Z"},
		remote.Row{"id": "p3", "owner_id": "bob", "kind": "text", "body": "newest", "created_at": "2025-06-01T12:00:00Z"},
	)

	out, err := h.run(context.Background(), "", "feed", "tail", "-n", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "@bob: newer")
	assert.Contains(t, lines[1], "@bob: newest")
}

func TestFeed_Follow(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, []string{"--offline-demo", "--owner", "me", "feed", "tail", "-f"}, strings.NewReader(""), &out, &out)
	}()

	require.Eventually(t, func() bool { return h.mem.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	_, err := h.mem.Insert(context.Background(), "posts", remote.Row{"owner_id": "bob", "kind": "text", "body": "live"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "+ ") && strings.Contains(out.String(), "live") }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not stop")
	}
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
