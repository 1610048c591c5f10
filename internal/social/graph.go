// Package social keeps the follow graph and user profiles.
package social

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/kv"
)

const (
	followsPrefix = "follows:"
	profilePrefix = "profile:"

	MaxBioLength = 500
)

var (
	ErrInvalidTarget = errors.New("invalid follow target")
	ErrValidation    = errors.New("invalid profile")
)

type Profile struct {
	UserID string `json:"userId"`
	Bio    string `json:"bio"`
}

// UserSummary is the directory data the graph needs for each followee.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type FollowedUser struct {
	UserSummary
	Bio              string `json:"bio"`
	PublicIdeasCount int    `json:"publicIdeasCount"`
}

// Directory looks users up by id.
type Directory interface {
	LookupUser(ctx context.Context, userID string) (UserSummary, error)
}

type Graph struct {
	store     kv.Store
	ideas     *ideas.Repository
	directory Directory
}

func NewGraph(store kv.Store, ideasRepo *ideas.Repository, directory Directory) *Graph {
	return &Graph{store: store, ideas: ideasRepo, directory: directory}
}

func followsKey(userID string) string { return followsPrefix + userID }
func profileKey(userID string) string { return profilePrefix + userID }

// ListFollowing returns the ids followerID follows, in follow order.
func (g *Graph) ListFollowing(ctx context.Context, followerID string) ([]string, error) {
	var following []string
	if _, err := kv.GetJSON(ctx, g.store, followsKey(followerID), &following); err != nil {
		return nil, fmt.Errorf("load following for %s: %w", followerID, err)
	}
	if following == nil {
		following = []string{}
	}
	return following, nil
}

// Follow adds targetID to followerID's list. Following twice is a no-op.
func (g *Graph) Follow(ctx context.Context, followerID, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" || targetID == followerID {
		return ErrInvalidTarget
	}

	following, err := g.ListFollowing(ctx, followerID)
	if err != nil {
		return err
	}
	for _, id := range following {
		if id == targetID {
			return nil
		}
	}
	following = append(following, targetID)
	if err := kv.SetJSON(ctx, g.store, followsKey(followerID), following); err != nil {
		return fmt.Errorf("save following for %s: %w", followerID, err)
	}
	return nil
}

// Unfollow removes targetID. Unfollowing someone not followed is a no-op.
func (g *Graph) Unfollow(ctx context.Context, followerID, targetID string) error {
	following, err := g.ListFollowing(ctx, followerID)
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(following))
	for _, id := range following {
		if id != targetID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(following) {
		return nil
	}
	if err := kv.SetJSON(ctx, g.store, followsKey(followerID), kept); err != nil {
		return fmt.Errorf("save following for %s: %w", followerID, err)
	}
	return nil
}

// ListFollowingDetails resolves each followee. Users that cannot be resolved
// are left out.
func (g *Graph) ListFollowingDetails(ctx context.Context, followerID string) ([]FollowedUser, error) {
	following, err := g.ListFollowing(ctx, followerID)
	if err != nil {
		return nil, err
	}

	out := make([]FollowedUser, 0, len(following))
	for _, id := range following {
		user, err := g.directory.LookupUser(ctx, id)
		if err != nil {
			log.Printf("social: skip followee %s: %v", id, err)
			continue
		}
		profile, err := g.GetProfile(ctx, id)
		if err != nil {
			log.Printf("social: skip followee %s: %v", id, err)
			continue
		}
		shared, err := g.ideas.SharedIdeasOf(ctx, id)
		if err != nil {
			log.Printf("social: skip followee %s: %v", id, err)
			continue
		}
		out = append(out, FollowedUser{
			UserSummary:      user,
			Bio:              profile.Bio,
			PublicIdeasCount: len(shared),
		})
	}
	return out, nil
}

func (g *Graph) GetProfile(ctx context.Context, userID string) (Profile, error) {
	profile := Profile{UserID: userID}
	if _, err := kv.GetJSON(ctx, g.store, profileKey(userID), &profile); err != nil {
		return Profile{}, fmt.Errorf("load profile for %s: %w", userID, err)
	}
	profile.UserID = userID
	return profile, nil
}

func (g *Graph) SaveProfile(ctx context.Context, userID, bio string) error {
	bio = strings.TrimSpace(bio)
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return fmt.Errorf("%w: bio must be at most %d characters", ErrValidation, MaxBioLength)
	}
	if err := kv.SetJSON(ctx, g.store, profileKey(userID), Profile{UserID: userID, Bio: bio}); err != nil {
		return fmt.Errorf("save profile for %s: %w", userID, err)
	}
	return nil
}
