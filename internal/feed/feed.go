// Package feed builds the read-only idea feeds. Feeds are computed on every
// request and never stored.
package feed

import (
	"context"
	"log"
	"sort"

	"ideaboard/api/internal/ideas"
)

// FollowingLister returns the ids a user follows.
type FollowingLister interface {
	ListFollowing(ctx context.Context, followerID string) ([]string, error)
}

type Aggregator struct {
	ideas  *ideas.Repository
	follow FollowingLister
}

func NewAggregator(repo *ideas.Repository, follow FollowingLister) *Aggregator {
	return &Aggregator{ideas: repo, follow: follow}
}

// Following returns the shared ideas of everyone userID follows, newest first.
func (a *Aggregator) Following(ctx context.Context, userID string) ([]ideas.Idea, error) {
	followees, err := a.follow.ListFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := []ideas.Idea{}
	for _, followee := range followees {
		shared, err := a.ideas.SharedIdeasOf(ctx, followee)
		if err != nil {
			log.Printf("feed: skip followee %s: %v", followee, err)
			continue
		}
		out = append(out, shared...)
	}
	SortNewestFirst(out)
	return out, nil
}

// Public returns every shared idea, the caller's included, newest first.
func (a *Aggregator) Public(ctx context.Context) []ideas.Idea {
	out := a.ideas.AllSharedIdeas(ctx)
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders by updatedAt descending. Ties keep their input order.
func SortNewestFirst(items []ideas.Idea) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt > items[j].UpdatedAt
	})
}
