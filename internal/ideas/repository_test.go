package ideas

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"ideaboard/api/internal/kv"
)

func setupRepository(t *testing.T) (*Repository, *kv.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := kv.NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create kv store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewRepository(store), store, s
}

type fakeNamer struct {
	names map[string]string
	calls int
}

func (f *fakeNamer) OwnerName(_ context.Context, userID string) (string, error) {
	f.calls++
	name, ok := f.names[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

func sampleIdea(id string, shared bool, updatedAt string) Idea {
	return Idea{
		ID:          id,
		Title:       "Idea " + id,
		Description: "desc",
		Priority:    PriorityHigh,
		Status:      StatusInProgress,
		IsShared:    shared,
		CreatedAt:   "2024-01-01T00:00:00.000Z",
		UpdatedAt:   updatedAt,
	}
}

func TestGetUserIdeasEmptyWhenAbsent(t *testing.T) {
	repo, _, _ := setupRepository(t)

	items, err := repo.GetUserIdeas(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetUserIdeas failed: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", items)
	}
}

func TestSaveThenGetRoundTrip(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	saved := []Idea{
		sampleIdea("a", true, "2024-01-02T00:00:00.000Z"),
		sampleIdea("b", false, "2024-01-03T00:00:00.000Z"),
	}
	saved[0].Tags = []string{"ui"}
	saved[0].Collaborators = []Collaborator{{ID: "u2", Name: "Bea"}}
	if err := repo.SaveUserIdeas(ctx, "u1", saved); err != nil {
		t.Fatalf("SaveUserIdeas failed: %v", err)
	}

	got, err := repo.GetUserIdeas(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserIdeas failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ideas, got %d", len(got))
	}
	for i, idea := range got {
		if idea.ID != saved[i].ID {
			t.Fatalf("expected order preserved, got %s at %d", idea.ID, i)
		}
		if idea.OwnerID != "u1" {
			t.Fatalf("expected owner u1, got %q", idea.OwnerID)
		}
	}
	if len(got[0].Collaborators) != 1 || got[0].Collaborators[0].Name != "Bea" {
		t.Fatalf("unexpected collaborators: %#v", got[0].Collaborators)
	}
	if len(got[1].Tags) != 0 || got[1].Tags == nil {
		t.Fatalf("expected empty tags, got %#v", got[1].Tags)
	}
}

func TestSaveForcesOwnerAndStripsOwnerCollaborator(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	idea := sampleIdea("a", false, "")
	idea.OwnerID = "someone-else"
	idea.Collaborators = []Collaborator{{ID: "u1"}, {ID: "u2"}, {ID: "u2", Name: "dup"}}
	if err := repo.SaveUserIdeas(ctx, "u1", []Idea{idea}); err != nil {
		t.Fatalf("SaveUserIdeas failed: %v", err)
	}

	got, err := repo.FindIdea(ctx, "u1", "a")
	if err != nil {
		t.Fatalf("FindIdea failed: %v", err)
	}
	if got.OwnerID != "u1" {
		t.Fatalf("expected owner forced to u1, got %q", got.OwnerID)
	}
	if len(got.Collaborators) != 1 || got.Collaborators[0].ID != "u2" {
		t.Fatalf("unexpected collaborators: %#v", got.Collaborators)
	}
	if got.UpdatedAt != got.CreatedAt {
		t.Fatalf("expected updatedAt backfilled from createdAt, got %q", got.UpdatedAt)
	}
}

func TestSaveValidation(t *testing.T) {
	repo, _, _ := setupRepository(t)

	tests := []struct {
		name  string
		ideas []Idea
	}{
		{"missing id", []Idea{{Title: "x"}}},
		{"duplicate id", []Idea{{ID: "a"}, {ID: "a"}}},
		{"bad priority", []Idea{{ID: "a", Priority: "urgent"}}},
		{"bad status", []Idea{{ID: "a", Status: "done"}}},
		{"bad createdAt", []Idea{{ID: "a", CreatedAt: "yesterday"}}},
		{"bad updatedAt", []Idea{{ID: "a", CreatedAt: "2024-01-01T00:00:00.000Z", UpdatedAt: "01/02/2024"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := repo.SaveUserIdeas(context.Background(), "u1", tc.ideas)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestSaveCanonicalizesTimestamps(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	idea := sampleIdea("a", false, "2024-05-01T11:30:00+02:00")
	idea.CreatedAt = "2024-05-01T08:00:00Z"
	if err := repo.SaveUserIdeas(ctx, "u1", []Idea{idea}); err != nil {
		t.Fatalf("SaveUserIdeas failed: %v", err)
	}

	got, err := repo.FindIdea(ctx, "u1", "a")
	if err != nil {
		t.Fatalf("FindIdea failed: %v", err)
	}
	if got.CreatedAt != "2024-05-01T08:00:00.000Z" || got.UpdatedAt != "2024-05-01T09:30:00.000Z" {
		t.Fatalf("expected UTC millisecond timestamps, got %q / %q", got.CreatedAt, got.UpdatedAt)
	}
}

func TestGetUserIdeasCanonicalizesStoredTimestamps(t *testing.T) {
	repo, _, s := setupRepository(t)

	s.Set(Key("u1"), `[
		{"id":"a","createdAt":"2024-05-01T10:00:00Z","updatedAt":"2024-05-01T12:15:00.5+01:00"},
		{"id":"b","createdAt":"sometime","updatedAt":""}
	]`)

	items, err := repo.GetUserIdeas(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUserIdeas failed: %v", err)
	}
	if items[0].CreatedAt != "2024-05-01T10:00:00.000Z" || items[0].UpdatedAt != "2024-05-01T11:15:00.500Z" {
		t.Fatalf("unexpected timestamps %q / %q", items[0].CreatedAt, items[0].UpdatedAt)
	}
	if items[1].CreatedAt != "sometime" || items[1].UpdatedAt != "sometime" {
		t.Fatalf("unparseable legacy values must be kept, got %q / %q", items[1].CreatedAt, items[1].UpdatedAt)
	}
}

func TestGetUserIdeasNormalizesLegacyRecords(t *testing.T) {
	repo, _, s := setupRepository(t)
	namer := &fakeNamer{names: map[string]string{"u1": "Ann"}}
	repo.WithOwnerNames(namer)

	s.Set(Key("u1"), `[
		{"id":"old","title":"Legacy","createdAt":"2023-05-01T10:00:00.000Z","priority":"extreme",
		 "collaborators":[{"id":"u1","name":"me"},{"id":"u3","name":"Cy"},{"id":"u3","name":"Cy again"}]},
		null,
		"not an idea",
		{"id":"new","title":"Fresh","ownerId":"u1","ownerName":"Annie","isShared":true,
		 "createdAt":"2024-01-01T00:00:00.000Z","updatedAt":"2024-01-02T00:00:00.000Z"}
	]`)

	items, err := repo.GetUserIdeas(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUserIdeas failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected malformed entries skipped, got %d ideas", len(items))
	}

	legacy := items[0]
	if legacy.OwnerID != "u1" || legacy.OwnerName != "Ann" {
		t.Fatalf("expected owner backfilled, got id=%q name=%q", legacy.OwnerID, legacy.OwnerName)
	}
	if legacy.Priority != PriorityMedium || legacy.Status != StatusIdea {
		t.Fatalf("expected enum defaults, got %q/%q", legacy.Priority, legacy.Status)
	}
	if legacy.UpdatedAt != legacy.CreatedAt {
		t.Fatalf("expected updatedAt = createdAt, got %q", legacy.UpdatedAt)
	}
	if len(legacy.Collaborators) != 1 || legacy.Collaborators[0].ID != "u3" {
		t.Fatalf("unexpected collaborators: %#v", legacy.Collaborators)
	}
	if legacy.Tags == nil || legacy.Images == nil {
		t.Fatal("expected empty slices instead of nil")
	}
	if items[1].OwnerName != "Annie" {
		t.Fatalf("expected stored ownerName kept, got %q", items[1].OwnerName)
	}
	if namer.calls != 1 {
		t.Fatalf("expected a single owner lookup, got %d", namer.calls)
	}
}

func TestGetUserIdeasNonArrayValue(t *testing.T) {
	repo, _, s := setupRepository(t)
	s.Set(Key("u1"), `{"id":"not-a-list"}`)

	items, err := repo.GetUserIdeas(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUserIdeas failed: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %#v", items)
	}
}

func TestFindIdeaNotFound(t *testing.T) {
	repo, _, _ := setupRepository(t)
	if _, err := repo.FindIdea(context.Background(), "u1", "missing"); !errors.Is(err, ErrIdeaNotFound) {
		t.Fatalf("expected ErrIdeaNotFound, got %v", err)
	}
}

func TestSharedViews(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	if err := repo.SaveUserIdeas(ctx, "u1", []Idea{
		sampleIdea("a1", true, "2024-01-02T00:00:00.000Z"),
		sampleIdea("a2", false, "2024-01-03T00:00:00.000Z"),
	}); err != nil {
		t.Fatalf("save u1: %v", err)
	}
	if err := repo.SaveUserIdeas(ctx, "u2", []Idea{
		sampleIdea("b1", true, "2024-01-04T00:00:00.000Z"),
		sampleIdea("b2", false, "2024-01-05T00:00:00.000Z"),
	}); err != nil {
		t.Fatalf("save u2: %v", err)
	}

	mine, err := repo.SharedIdeasOf(ctx, "u1")
	if err != nil {
		t.Fatalf("SharedIdeasOf failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "a1" {
		t.Fatalf("unexpected SharedIdeasOf result: %#v", mine)
	}

	others := repo.SharedIdeasExcluding(ctx, "u1")
	if len(others) != 1 || others[0].ID != "b1" {
		t.Fatalf("unexpected SharedIdeasExcluding result: %#v", others)
	}
	if others[0].OwnerID != "u2" {
		t.Fatalf("expected owner u2, got %q", others[0].OwnerID)
	}

	all := repo.AllSharedIdeas(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 shared ideas, got %d", len(all))
	}
	for _, idea := range all {
		if !idea.IsShared {
			t.Fatalf("unshared idea %s leaked into shared view", idea.ID)
		}
	}
}

func TestSharedScanFailureYieldsEmpty(t *testing.T) {
	repo, store, _ := setupRepository(t)
	_ = store.Close()

	if got := repo.AllSharedIdeas(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty result on scan failure, got %#v", got)
	}
}
