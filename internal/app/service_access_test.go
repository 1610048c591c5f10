package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/rbac"
)

func TestWriteOperationsRequireWriteRole(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	guest := Session{UserID: "g1", Role: string(rbac.RoleGuest)}
	member := Session{UserID: "u1", Role: "member"}

	writes := map[string]func(Session) error{
		"save ideas":          func(s Session) error { return env.svc.SaveIdeas(ctx, s, []ideas.Idea{}) },
		"save profile":        func(s Session) error { return env.svc.SaveProfile(ctx, s, "hi") },
		"follow":              func(s Session) error { return env.svc.Follow(ctx, s, "u2") },
		"unfollow":            func(s Session) error { return env.svc.Unfollow(ctx, s, "u2") },
		"add collaborator":    func(s Session) error { return env.svc.AddCollaborator(ctx, s, "i1", "u2", "Bea") },
		"remove collaborator": func(s Session) error { return env.svc.RemoveCollaborator(ctx, s, "i1", "u2") },
	}
	for name, call := range writes {
		t.Run(name, func(t *testing.T) {
			var domainErr *DomainError
			if err := call(guest); !errors.As(err, &domainErr) || domainErr.Status != http.StatusForbidden {
				t.Fatalf("expected 403 for a guest, got %v", err)
			}
			if err := call(Session{}); !errors.Is(err, errUnauthorized) {
				t.Fatalf("expected unauthorized without a session, got %v", err)
			}
			if err := call(member); err != nil {
				t.Fatalf("expected member to pass, got %v", err)
			}
		})
	}

	if _, _, err := env.svc.UserIdeas(ctx, guest); err != nil {
		t.Fatalf("guests may read, got %v", err)
	}
}
