package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"ideaboard/api/internal/bugs"
	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/kv"
)

// run executes the real root command with args and returns stdout, stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	bugStatus = ""
	feedLimit = 20
	demote = false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return out.String(), errOut.String(), err
}

func redisEnv(t *testing.T) *kv.RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	url := "redis://" + s.Addr()
	t.Setenv("REDIS_URL", url)
	store, err := kv.NewRedisStore(url)
	if err != nil {
		t.Fatalf("failed to create kv store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRootShowsHelpWithoutSubcommand(t *testing.T) {
	out, _, err := run(t)
	if err != nil {
		t.Fatalf("expected help, got error %v", err)
	}
	if !strings.Contains(out, "Usage:") || !strings.Contains(out, "ideactl") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRootRejectsUnknownFlags(t *testing.T) {
	_, _, err := run(t, "--status=open")
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Fatalf("expected unknown flag error, got %v", err)
	}
}

func TestPromoteRequiresEmail(t *testing.T) {
	if _, _, err := run(t, "promote"); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestBugsListsReportsWithCommentCounts(t *testing.T) {
	store := redisEnv(t)
	ctx := context.Background()
	tracker := bugs.NewTracker(store)
	first, err := tracker.CreateBug(ctx, "Broken login", "Button does nothing", bugs.Author{Name: "Pat"})
	if err != nil {
		t.Fatalf("CreateBug failed: %v", err)
	}
	if _, err := tracker.AddComment(ctx, first.ID, "Same here", bugs.Author{}); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	second, err := tracker.CreateBug(ctx, "Slow feed", "Takes seconds", bugs.Author{UserID: "u1", Name: "Ann"})
	if err != nil {
		t.Fatalf("CreateBug failed: %v", err)
	}
	if _, err := tracker.UpdateStatus(ctx, second.ID, string(bugs.StatusClosed)); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	out, _, err := run(t, "bugs")
	if err != nil {
		t.Fatalf("bugs failed: %v", err)
	}
	if !strings.Contains(out, "Broken login (Pat, 1 comments)") || !strings.Contains(out, "Slow feed (Ann, 0 comments)") {
		t.Fatalf("unexpected listing %q", out)
	}

	out, _, err = run(t, "bugs", "--status", "open")
	if err != nil {
		t.Fatalf("bugs --status failed: %v", err)
	}
	if !strings.Contains(out, "Broken login") || strings.Contains(out, "Slow feed") {
		t.Fatalf("status filter not applied: %q", out)
	}
}

func TestBugsRejectsUnknownStatus(t *testing.T) {
	redisEnv(t)
	_, errOut, err := run(t, "bugs", "--status", "done")
	if err == nil {
		t.Fatal("expected invalid status error")
	}
	if !strings.Contains(errOut, "Invalid status") {
		t.Fatalf("expected explanation on stderr, got %q", errOut)
	}
}

func TestFeedPrintsSharedIdeasNewestFirst(t *testing.T) {
	store := redisEnv(t)
	repo := ideas.NewRepository(store)
	ctx := context.Background()
	items := []ideas.Idea{
		{ID: "a1", Title: "Older", IsShared: true, OwnerName: "Ann", CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-02-01T00:00:00.000Z"},
		{ID: "a2", Title: "Private", CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-06-01T00:00:00.000Z"},
		{ID: "a3", Title: "Newer", IsShared: true, OwnerName: "Ann", CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "2024-04-01T00:00:00.000Z"},
	}
	if err := repo.SaveUserIdeas(ctx, "alice", items); err != nil {
		t.Fatalf("SaveUserIdeas failed: %v", err)
	}

	out, _, err := run(t, "feed")
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if strings.Contains(out, "Private") {
		t.Fatalf("private idea leaked into feed: %q", out)
	}
	newer, older := strings.Index(out, "Newer"), strings.Index(out, "Older")
	if newer < 0 || older < 0 || newer > older {
		t.Fatalf("expected newest first, got %q", out)
	}
}

func TestFeedWarnsWhenEmpty(t *testing.T) {
	redisEnv(t)
	out, _, err := run(t, "feed")
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if !strings.Contains(out, "No shared ideas") {
		t.Fatalf("expected empty warning, got %q", out)
	}
}
