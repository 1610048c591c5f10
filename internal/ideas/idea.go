package ideas

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for createdAt/updatedAt.
// Fixed width keeps lexical order equal to chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Status string

const (
	StatusIdea       Status = "idea"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

type Collaborator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Idea struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Details       string         `json:"details"`
	Tags          []string       `json:"tags"`
	Images        []string       `json:"images"`
	WebsiteURL    string         `json:"websiteUrl,omitempty"`
	Priority      Priority       `json:"priority"`
	Status        Status         `json:"status"`
	IsShared      bool           `json:"isShared"`
	OwnerID       string         `json:"ownerId"`
	OwnerName     string         `json:"ownerName"`
	Collaborators []Collaborator `json:"collaborators"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
}

// Timestamp formats t in TimeLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func validStatus(s Status) bool {
	switch s {
	case StatusIdea, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// HasCollaborator reports whether id is already a collaborator.
func (i Idea) HasCollaborator(id string) bool {
	for _, c := range i.Collaborators {
		if c.ID == id {
			return true
		}
	}
	return false
}

// normalize fills defaults for fields that older records may lack. It never
// fails; unknown enum values fall back to their defaults.
func normalize(idea Idea, ownerID string) Idea {
	if idea.OwnerID == "" {
		idea.OwnerID = ownerID
	}
	if idea.Tags == nil {
		idea.Tags = []string{}
	}
	if idea.Images == nil {
		idea.Images = []string{}
	}
	if !validPriority(idea.Priority) {
		idea.Priority = PriorityMedium
	}
	if !validStatus(idea.Status) {
		idea.Status = StatusIdea
	}
	if created, err := canonicalTime(idea.CreatedAt); err == nil {
		idea.CreatedAt = created
	}
	if updated, err := canonicalTime(idea.UpdatedAt); err == nil {
		idea.UpdatedAt = updated
	}
	if idea.UpdatedAt == "" {
		idea.UpdatedAt = idea.CreatedAt
	}
	idea.Collaborators = cleanCollaborators(idea.Collaborators, idea.OwnerID)
	return idea
}

// canonicalTime rewrites any RFC 3339 timestamp in TimeLayout so that string
// order is chronological order. An empty value stays empty.
func canonicalTime(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", err
	}
	return Timestamp(t), nil
}

// cleanCollaborators drops blank ids, duplicates and the owner, keeping the
// first occurrence of each id.
func cleanCollaborators(in []Collaborator, ownerID string) []Collaborator {
	out := make([]Collaborator, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		id := strings.TrimSpace(c.ID)
		if id == "" || id == ownerID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, Collaborator{ID: id, Name: c.Name})
	}
	return out
}

// decodeCollection parses a stored collection. Anything that is not a JSON
// array yields no ideas; null or malformed elements are skipped.
func decodeCollection(raw []byte, ownerID string) ([]Idea, int) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return []Idea{}, 1
	}

	skipped := 0
	out := make([]Idea, 0, len(elements))
	for _, element := range elements {
		trimmed := strings.TrimSpace(string(element))
		if trimmed == "" || trimmed == "null" {
			skipped++
			continue
		}
		var idea Idea
		if err := json.Unmarshal(element, &idea); err != nil {
			skipped++
			continue
		}
		out = append(out, normalize(idea, ownerID))
	}
	return out, skipped
}

// prepareForSave validates a full collection and applies the ownership
// invariants before it is written.
func prepareForSave(ownerID string, in []Idea) ([]Idea, error) {
	out := make([]Idea, 0, len(in))
	ids := make(map[string]struct{}, len(in))
	for i, idea := range in {
		idea.ID = strings.TrimSpace(idea.ID)
		if idea.ID == "" {
			return nil, fmt.Errorf("%w: idea %d has no id", ErrValidation, i)
		}
		if _, dup := ids[idea.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate idea id %s", ErrValidation, idea.ID)
		}
		ids[idea.ID] = struct{}{}

		if idea.Priority == "" {
			idea.Priority = PriorityMedium
		} else if !validPriority(idea.Priority) {
			return nil, fmt.Errorf("%w: invalid priority %q", ErrValidation, idea.Priority)
		}
		if idea.Status == "" {
			idea.Status = StatusIdea
		} else if !validStatus(idea.Status) {
			return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, idea.Status)
		}

		idea.OwnerID = ownerID
		if idea.Tags == nil {
			idea.Tags = []string{}
		}
		if idea.Images == nil {
			idea.Images = []string{}
		}
		created, err := canonicalTime(idea.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: idea %s has invalid createdAt %q", ErrValidation, idea.ID, idea.CreatedAt)
		}
		updated, err := canonicalTime(idea.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: idea %s has invalid updatedAt %q", ErrValidation, idea.ID, idea.UpdatedAt)
		}
		idea.CreatedAt, idea.UpdatedAt = created, updated
		if idea.UpdatedAt == "" || idea.UpdatedAt < idea.CreatedAt {
			idea.UpdatedAt = idea.CreatedAt
		}
		idea.Collaborators = cleanCollaborators(idea.Collaborators, ownerID)
		out = append(out, idea)
	}
	return out, nil
}
