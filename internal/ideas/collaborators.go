package ideas

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AddCollaborator adds {collaboratorID, name} to one of ownerID's ideas. It is
// a silent no-op when ownerID has no such idea, so callers cannot test for
// ideas they do not own.
func (r *Repository) AddCollaborator(ctx context.Context, ownerID, ideaID, collaboratorID, collaboratorName string) error {
	collaboratorID = strings.TrimSpace(collaboratorID)
	if collaboratorID == "" {
		return fmt.Errorf("%w: collaboratorId is required", ErrValidation)
	}
	if collaboratorID == ownerID {
		return fmt.Errorf("%w: owner cannot be a collaborator", ErrValidation)
	}

	return r.mutateOwned(ctx, ownerID, ideaID, func(idea *Idea) bool {
		if idea.HasCollaborator(collaboratorID) {
			return false
		}
		idea.Collaborators = append(idea.Collaborators, Collaborator{
			ID:   collaboratorID,
			Name: strings.TrimSpace(collaboratorName),
		})
		return true
	})
}

// RemoveCollaborator removes collaboratorID from one of ownerID's ideas, with
// the same not-found behavior as AddCollaborator.
func (r *Repository) RemoveCollaborator(ctx context.Context, ownerID, ideaID, collaboratorID string) error {
	return r.mutateOwned(ctx, ownerID, ideaID, func(idea *Idea) bool {
		kept := make([]Collaborator, 0, len(idea.Collaborators))
		for _, c := range idea.Collaborators {
			if c.ID != collaboratorID {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(idea.Collaborators) {
			return false
		}
		idea.Collaborators = kept
		return true
	})
}

// mutateOwned applies fn to the idea matching ideaID and ownerID and writes
// the collection back when fn reports a change.
func (r *Repository) mutateOwned(ctx context.Context, ownerID, ideaID string, fn func(*Idea) bool) error {
	items, err := r.GetUserIdeas(ctx, ownerID)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID != ideaID || items[i].OwnerID != ownerID {
			continue
		}
		if !fn(&items[i]) {
			return nil
		}
		items[i].UpdatedAt = Timestamp(time.Now())
		return r.SaveUserIdeas(ctx, ownerID, items)
	}
	return nil
}
