package ideas

import (
	"context"
	"errors"
	"testing"
)

func TestAddCollaboratorSetSemantics(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	if err := repo.SaveUserIdeas(ctx, "owner", []Idea{sampleIdea("i1", true, "2024-01-01T00:00:00.000Z")}); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.AddCollaborator(ctx, "owner", "i1", "c1", "Cleo"); err != nil {
			t.Fatalf("AddCollaborator failed: %v", err)
		}
	}

	idea, err := repo.FindIdea(ctx, "owner", "i1")
	if err != nil {
		t.Fatalf("FindIdea: %v", err)
	}
	if len(idea.Collaborators) != 1 || idea.Collaborators[0] != (Collaborator{ID: "c1", Name: "Cleo"}) {
		t.Fatalf("expected exactly one collaborator, got %#v", idea.Collaborators)
	}
	if idea.UpdatedAt <= "2024-01-01T00:00:00.000Z" {
		t.Fatalf("expected updatedAt bumped, got %q", idea.UpdatedAt)
	}

	if err := repo.RemoveCollaborator(ctx, "owner", "i1", "c1"); err != nil {
		t.Fatalf("RemoveCollaborator failed: %v", err)
	}
	idea, _ = repo.FindIdea(ctx, "owner", "i1")
	if len(idea.Collaborators) != 0 {
		t.Fatalf("expected no collaborators, got %#v", idea.Collaborators)
	}
}

func TestAddCollaboratorValidation(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	if err := repo.AddCollaborator(ctx, "owner", "i1", "  ", "x"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank id, got %v", err)
	}
	if err := repo.AddCollaborator(ctx, "owner", "i1", "owner", "me"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for owner, got %v", err)
	}
}

func TestCollaboratorMutationByNonOwnerIsNoop(t *testing.T) {
	repo, _, s := setupRepository(t)
	ctx := context.Background()

	if err := repo.SaveUserIdeas(ctx, "owner", []Idea{sampleIdea("i1", true, "2024-01-01T00:00:00.000Z")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, _ := s.Get(Key("owner"))

	if err := repo.AddCollaborator(ctx, "intruder", "i1", "c1", "Cleo"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if err := repo.RemoveCollaborator(ctx, "intruder", "i1", "c1"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}

	after, _ := s.Get(Key("owner"))
	if before != after {
		t.Fatalf("owner collection changed:\nbefore=%s\nafter=%s", before, after)
	}
	if s.Exists(Key("intruder")) {
		t.Fatal("expected no write under the caller's key")
	}
}

func TestRemoveAbsentCollaboratorDoesNotWrite(t *testing.T) {
	repo, _, s := setupRepository(t)
	ctx := context.Background()

	if err := repo.SaveUserIdeas(ctx, "owner", []Idea{sampleIdea("i1", true, "2024-01-01T00:00:00.000Z")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, _ := s.Get(Key("owner"))
	if err := repo.RemoveCollaborator(ctx, "owner", "i1", "nobody"); err != nil {
		t.Fatalf("RemoveCollaborator failed: %v", err)
	}
	after, _ := s.Get(Key("owner"))
	if before != after {
		t.Fatal("expected collection untouched")
	}
}
