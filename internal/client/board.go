package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ideaboard/api/internal/ideas"
)

// ErrNotLoaded is returned by mutations issued before Load has completed.
var ErrNotLoaded = errors.New("board not loaded")

// State is a copy of the board's data at one point in time.
type State struct {
	Loaded        bool
	Session       SessionInfo
	Ideas         []ideas.Idea
	SharedIdeas   []ideas.Idea
	PublicFeed    []ideas.Idea
	FollowingFeed []ideas.Idea
	Following     []string
}

// Board holds the signed-in user's client-side state. Mutations update local
// state and persist the whole collection before returning; feeds are
// re-fetched whenever a mutation changes what other users can see.
type Board struct {
	client *Client
	now    func() time.Time

	// saveMu is held by a mutation from snapshot through commit.
	saveMu sync.Mutex

	mu    sync.Mutex
	state State
}

func NewBoard(client *Client) *Board {
	return &Board{client: client, now: time.Now}
}

// Load fetches ideas, feeds and the follow list. Mutations are accepted only
// after it succeeds.
func (b *Board) Load(ctx context.Context) error {
	session, err := b.client.Session(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	own, shared, err := b.client.Ideas(ctx)
	if err != nil {
		return fmt.Errorf("load ideas: %w", err)
	}
	following, err := b.client.Following(ctx)
	if err != nil {
		return fmt.Errorf("load following: %w", err)
	}
	public, followingFeed, err := b.fetchFeeds(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = State{
		Loaded:        true,
		Session:       session,
		Ideas:         nonNil(own),
		SharedIdeas:   nonNil(shared),
		PublicFeed:    public,
		FollowingFeed: followingFeed,
		Following:     nonNilStrings(following),
	}
	return nil
}

func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Loaded
}

func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Loaded:        b.state.Loaded,
		Session:       b.state.Session,
		Ideas:         append([]ideas.Idea(nil), b.state.Ideas...),
		SharedIdeas:   append([]ideas.Idea(nil), b.state.SharedIdeas...),
		PublicFeed:    append([]ideas.Idea(nil), b.state.PublicFeed...),
		FollowingFeed: append([]ideas.Idea(nil), b.state.FollowingFeed...),
		Following:     append([]string(nil), b.state.Following...),
	}
}

// AddIdea appends a new idea with a fresh id and timestamps and saves.
func (b *Board) AddIdea(ctx context.Context, idea ideas.Idea) (ideas.Idea, error) {
	stamp := ideas.Timestamp(b.now())
	if strings.TrimSpace(idea.ID) == "" {
		idea.ID = uuid.NewString()
	}
	if idea.CreatedAt == "" {
		idea.CreatedAt = stamp
	}
	idea.UpdatedAt = stamp
	if idea.Priority == "" {
		idea.Priority = ideas.PriorityMedium
	}
	if idea.Status == "" {
		idea.Status = ideas.StatusIdea
	}

	err := b.mutate(ctx, func(items []ideas.Idea) ([]ideas.Idea, bool, error) {
		return append(items, idea), idea.IsShared, nil
	})
	if err != nil {
		return ideas.Idea{}, err
	}
	return idea, nil
}

// UpdateIdea replaces the idea with the same id and bumps its updatedAt.
func (b *Board) UpdateIdea(ctx context.Context, idea ideas.Idea) (ideas.Idea, error) {
	idea.UpdatedAt = ideas.Timestamp(b.now())
	err := b.mutate(ctx, func(items []ideas.Idea) ([]ideas.Idea, bool, error) {
		for i := range items {
			if items[i].ID != idea.ID {
				continue
			}
			if idea.CreatedAt == "" {
				idea.CreatedAt = items[i].CreatedAt
			}
			shareChanged := items[i].IsShared != idea.IsShared
			items[i] = idea
			return items, shareChanged, nil
		}
		return nil, false, ideas.ErrIdeaNotFound
	})
	if err != nil {
		return ideas.Idea{}, err
	}
	return idea, nil
}

func (b *Board) DeleteIdea(ctx context.Context, ideaID string) error {
	return b.mutate(ctx, func(items []ideas.Idea) ([]ideas.Idea, bool, error) {
		for i := range items {
			if items[i].ID == ideaID {
				wasShared := items[i].IsShared
				return append(items[:i], items[i+1:]...), wasShared, nil
			}
		}
		return nil, false, ideas.ErrIdeaNotFound
	})
}

// Save persists the current collection as is.
func (b *Board) Save(ctx context.Context) error {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()
	b.mu.Lock()
	if !b.state.Loaded {
		b.mu.Unlock()
		return ErrNotLoaded
	}
	items := append([]ideas.Idea(nil), b.state.Ideas...)
	b.mu.Unlock()
	return b.client.SaveIdeas(ctx, items)
}

func (b *Board) Follow(ctx context.Context, userID string) error {
	if !b.Loaded() {
		return ErrNotLoaded
	}
	if err := b.client.Follow(ctx, userID); err != nil {
		return err
	}
	return b.refreshFollowing(ctx)
}

func (b *Board) Unfollow(ctx context.Context, userID string) error {
	if !b.Loaded() {
		return ErrNotLoaded
	}
	if err := b.client.Unfollow(ctx, userID); err != nil {
		return err
	}
	return b.refreshFollowing(ctx)
}

// RefreshFeeds re-fetches both feeds.
func (b *Board) RefreshFeeds(ctx context.Context) error {
	public, following, err := b.fetchFeeds(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.PublicFeed = public
	b.state.FollowingFeed = following
	return nil
}

// mutate applies change to a copy of the collection, saves it and only then
// commits it locally. A failed save leaves the local state untouched.
// Mutations run one at a time.
func (b *Board) mutate(ctx context.Context, change func([]ideas.Idea) ([]ideas.Idea, bool, error)) error {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	b.mu.Lock()
	if !b.state.Loaded {
		b.mu.Unlock()
		return ErrNotLoaded
	}
	next, shareChanged, err := change(append([]ideas.Idea(nil), b.state.Ideas...))
	b.mu.Unlock()
	if err != nil {
		return err
	}

	if err := b.client.SaveIdeas(ctx, next); err != nil {
		return fmt.Errorf("save ideas: %w", err)
	}

	b.mu.Lock()
	b.state.Ideas = nonNil(next)
	b.mu.Unlock()

	if shareChanged {
		if err := b.RefreshFeeds(ctx); err != nil {
			log.Printf("client: refresh feeds after share change: %v", err)
		}
	}
	return nil
}

func (b *Board) refreshFollowing(ctx context.Context) error {
	following, err := b.client.Following(ctx)
	if err != nil {
		return err
	}
	feed, err := b.client.FollowingFeed(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Following = nonNilStrings(following)
	b.state.FollowingFeed = nonNil(feed)
	return nil
}

func (b *Board) fetchFeeds(ctx context.Context) ([]ideas.Idea, []ideas.Idea, error) {
	public, err := b.client.PublicFeed(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load public feed: %w", err)
	}
	following, err := b.client.FollowingFeed(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load following feed: %w", err)
	}
	return nonNil(public), nonNil(following), nil
}

func nonNil(items []ideas.Idea) []ideas.Idea {
	if items == nil {
		return []ideas.Idea{}
	}
	return items
}

func nonNilStrings(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
