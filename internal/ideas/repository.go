// Package ideas stores each user's idea collection as a single key-value
// entry and derives the shared views other components read.
package ideas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"ideaboard/api/internal/kv"
)

const keyPrefix = "ideas:user:"

var (
	ErrValidation   = errors.New("invalid idea")
	ErrIdeaNotFound = errors.New("idea not found")
)

// OwnerNamer resolves a display name for records saved before ownerName
// existed.
type OwnerNamer interface {
	OwnerName(ctx context.Context, userID string) (string, error)
}

// Repository owns the ideas:user:<id> keys. Saves overwrite the whole
// collection; concurrent writers for the same user race and the last one wins.
type Repository struct {
	store kv.Store
	names OwnerNamer
}

func NewRepository(store kv.Store) *Repository {
	return &Repository{store: store}
}

// WithOwnerNames enables ownerName backfill through names.
func (r *Repository) WithOwnerNames(names OwnerNamer) *Repository {
	r.names = names
	return r
}

// Key returns the storage key for a user's collection.
func Key(userID string) string {
	return keyPrefix + userID
}

// GetUserIdeas returns the user's collection, empty when nothing is stored.
func (r *Repository) GetUserIdeas(ctx context.Context, userID string) ([]Idea, error) {
	raw, err := r.store.Get(ctx, Key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return []Idea{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ideas for %s: %w", userID, err)
	}
	items, skipped := decodeCollection(raw, userID)
	if skipped > 0 {
		log.Printf("ideas: skipped %d malformed entries for user %s", skipped, userID)
	}
	r.backfillOwnerNames(ctx, items)
	return items, nil
}

// SaveUserIdeas replaces the user's whole collection.
func (r *Repository) SaveUserIdeas(ctx context.Context, userID string, items []Idea) error {
	prepared, err := prepareForSave(userID, items)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(prepared)
	if err != nil {
		return fmt.Errorf("encode ideas for %s: %w", userID, err)
	}
	if err := r.store.Set(ctx, Key(userID), raw); err != nil {
		return fmt.Errorf("save ideas for %s: %w", userID, err)
	}
	return nil
}

// FindIdea returns one idea from the user's own collection.
func (r *Repository) FindIdea(ctx context.Context, userID, ideaID string) (Idea, error) {
	items, err := r.GetUserIdeas(ctx, userID)
	if err != nil {
		return Idea{}, err
	}
	for _, idea := range items {
		if idea.ID == ideaID {
			return idea, nil
		}
	}
	return Idea{}, ErrIdeaNotFound
}

// SharedIdeasOf returns the shared ideas in one user's collection.
func (r *Repository) SharedIdeasOf(ctx context.Context, userID string) ([]Idea, error) {
	items, err := r.GetUserIdeas(ctx, userID)
	if err != nil {
		return nil, err
	}
	return filterShared(items), nil
}

// SharedIdeasExcluding returns every shared idea except those stored under
// userID. A failed scan is logged and yields an empty result.
func (r *Repository) SharedIdeasExcluding(ctx context.Context, userID string) []Idea {
	return r.scanShared(ctx, Key(userID))
}

// AllSharedIdeas returns every shared idea of every user.
func (r *Repository) AllSharedIdeas(ctx context.Context) []Idea {
	return r.scanShared(ctx, "")
}

func (r *Repository) scanShared(ctx context.Context, skipKey string) []Idea {
	entries, err := r.store.GetByPrefix(ctx, keyPrefix)
	if err != nil {
		log.Printf("ideas: shared scan failed: %v", err)
		return []Idea{}
	}

	shared := []Idea{}
	for _, entry := range entries {
		if entry.Key == skipKey {
			continue
		}
		ownerID := strings.TrimPrefix(entry.Key, keyPrefix)
		items, skipped := decodeCollection(entry.Value, ownerID)
		if skipped > 0 {
			log.Printf("ideas: skipped %d malformed entries under %s", skipped, entry.Key)
		}
		shared = append(shared, filterShared(items)...)
	}
	r.backfillOwnerNames(ctx, shared)
	return shared
}

func (r *Repository) backfillOwnerNames(ctx context.Context, items []Idea) {
	if r.names == nil {
		return
	}
	resolved := make(map[string]string)
	for i := range items {
		if items[i].OwnerName != "" {
			continue
		}
		ownerID := items[i].OwnerID
		name, ok := resolved[ownerID]
		if !ok {
			var err error
			name, err = r.names.OwnerName(ctx, ownerID)
			if err != nil {
				name = ""
			}
			resolved[ownerID] = name
		}
		items[i].OwnerName = name
	}
}

func filterShared(items []Idea) []Idea {
	out := []Idea{}
	for _, idea := range items {
		if idea.IsShared {
			out = append(out, idea)
		}
	}
	return out
}
