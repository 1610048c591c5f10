package bugs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"ideaboard/api/internal/kv"
)

func setupTracker(t *testing.T) *Tracker {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := kv.NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create kv store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewTracker(store)
}

func TestGuestBugScenario(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	bug, err := tracker.CreateBug(ctx, "Crash", "on save", Author{Name: "Ann"})
	if err != nil {
		t.Fatalf("CreateBug failed: %v", err)
	}
	if bug.Status != StatusOpen || bug.ReportedBy != GuestID || bug.ReporterName != "Ann" {
		t.Fatalf("unexpected bug: %#v", bug)
	}
	if bug.ID == "" || bug.CreatedAt == "" || bug.CreatedAt != bug.UpdatedAt {
		t.Fatalf("expected id and matching timestamps, got %#v", bug)
	}

	list, err := tracker.ListBugs(ctx, "")
	if err != nil {
		t.Fatalf("ListBugs failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != bug.ID {
		t.Fatalf("expected the new bug listed, got %#v", list)
	}
}

func TestGuestNameDefaults(t *testing.T) {
	tracker := setupTracker(t)
	bug, err := tracker.CreateBug(context.Background(), "t", "d", Author{})
	if err != nil {
		t.Fatalf("CreateBug failed: %v", err)
	}
	if bug.ReporterName != GuestName {
		t.Fatalf("expected %q, got %q", GuestName, bug.ReporterName)
	}
}

func TestCreateBugValidation(t *testing.T) {
	tracker := setupTracker(t)
	tests := []struct {
		name, title, description string
	}{
		{"missing title", "", "d"},
		{"blank description", "t", "   "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tracker.CreateBug(context.Background(), tc.title, tc.description, Author{UserID: "u1", Name: "U"})
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBugsListedNewestFirst(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	first, _ := tracker.CreateBug(ctx, "first", "d", Author{UserID: "u1", Name: "U"})
	second, _ := tracker.CreateBug(ctx, "second", "d", Author{UserID: "u1", Name: "U"})

	list, err := tracker.ListBugs(ctx, "")
	if err != nil {
		t.Fatalf("ListBugs failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %#v", list)
	}
	if list[0].ReportedBy != "u1" {
		t.Fatalf("expected user reporter, got %q", list[0].ReportedBy)
	}
}

func TestUpdateStatus(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return current }

	bug, _ := tracker.CreateBug(ctx, "t", "d", Author{})
	current = current.Add(time.Hour)

	updated, err := tracker.UpdateStatus(ctx, bug.ID, "in-progress")
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != StatusInProgress || updated.UpdatedAt != "2024-01-01T01:00:00.000Z" {
		t.Fatalf("unexpected updated bug: %#v", updated)
	}

	if _, err := tracker.UpdateStatus(ctx, bug.ID, "wontfix"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := tracker.UpdateStatus(ctx, "missing", "closed"); !errors.Is(err, ErrBugNotFound) {
		t.Fatalf("expected ErrBugNotFound, got %v", err)
	}

	open, _ := tracker.ListBugs(ctx, StatusOpen)
	if len(open) != 0 {
		t.Fatalf("expected no open bugs, got %#v", open)
	}
	inProgress, _ := tracker.ListBugs(ctx, StatusInProgress)
	if len(inProgress) != 1 {
		t.Fatalf("expected one in-progress bug, got %#v", inProgress)
	}
}

func TestComments(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	bug, _ := tracker.CreateBug(ctx, "t", "d", Author{})

	empty, err := tracker.ListComments(ctx, bug.ID)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no comments, got %#v err=%v", empty, err)
	}

	if _, err := tracker.AddComment(ctx, bug.ID, "  ", Author{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank text, got %v", err)
	}
	if _, err := tracker.AddComment(ctx, "missing", "hi", Author{}); !errors.Is(err, ErrBugNotFound) {
		t.Fatalf("expected ErrBugNotFound, got %v", err)
	}

	first, err := tracker.AddComment(ctx, bug.ID, "me too", Author{Name: "Ann", Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if first.UserID != GuestID || first.UserName != "Ann" || first.UserEmail != "ann@example.com" || first.BugID != bug.ID {
		t.Fatalf("unexpected comment: %#v", first)
	}
	if _, err := tracker.AddComment(ctx, bug.ID, "fixed?", Author{UserID: "u1", Name: "Dev"}); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}

	comments, err := tracker.ListComments(ctx, bug.ID)
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(comments) != 2 || comments[0].ID != first.ID || comments[1].UserID != "u1" {
		t.Fatalf("expected comments oldest first, got %#v", comments)
	}

	counts, err := tracker.CommentCounts(ctx)
	if err != nil {
		t.Fatalf("CommentCounts failed: %v", err)
	}
	if counts[bug.ID] != 2 {
		t.Fatalf("expected 2 comments counted, got %v", counts)
	}
}

func TestParseStatus(t *testing.T) {
	for _, ok := range []string{"open", "in-progress", "closed"} {
		if _, err := ParseStatus(ok); err != nil {
			t.Fatalf("expected %q valid, got %v", ok, err)
		}
	}
	for _, bad := range []string{"", "OPEN", "done"} {
		if _, err := ParseStatus(bad); !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("expected %q invalid, got %v", bad, err)
		}
	}
}
