// Package bugs is the shared bug tracker. All reports live in one list and
// each report's comments in a list of their own.
package bugs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ideaboard/api/internal/kv"
)

const (
	bugsKey        = "bugs"
	commentsPrefix = "bug_comments:"

	GuestID   = "guest"
	GuestName = "Guest"

	timeLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrValidation    = errors.New("invalid bug report")
	ErrInvalidStatus = errors.New("invalid status")
	ErrBugNotFound   = errors.New("bug not found")
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusClosed     Status = "closed"
)

// ParseStatus accepts only the three tracker states.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.TrimSpace(raw)); s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

type Bug struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Status        Status `json:"status"`
	ReportedBy    string `json:"reportedBy"`
	ReporterName  string `json:"reporterName"`
	ReporterEmail string `json:"reporterEmail,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type Comment struct {
	ID        string `json:"id"`
	BugID     string `json:"bugId"`
	Text      string `json:"text"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Author identifies whoever files a bug or comment. An empty UserID is a
// guest; Name and Email then come from the submitted form.
type Author struct {
	UserID string
	Name   string
	Email  string
}

func (a Author) resolve() (id, name, email string) {
	name = strings.TrimSpace(a.Name)
	email = strings.TrimSpace(a.Email)
	if a.UserID == "" {
		id = GuestID
		if name == "" {
			name = GuestName
		}
		return id, name, email
	}
	return a.UserID, name, email
}

type Tracker struct {
	store kv.Store
	now   func() time.Time
}

func NewTracker(store kv.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

func (t *Tracker) timestamp() string {
	return t.now().UTC().Format(timeLayout)
}

func (t *Tracker) loadBugs(ctx context.Context) ([]Bug, error) {
	var list []Bug
	if _, err := kv.GetJSON(ctx, t.store, bugsKey, &list); err != nil {
		return nil, fmt.Errorf("load bugs: %w", err)
	}
	if list == nil {
		list = []Bug{}
	}
	return list, nil
}

func (t *Tracker) saveBugs(ctx context.Context, list []Bug) error {
	if err := kv.SetJSON(ctx, t.store, bugsKey, list); err != nil {
		return fmt.Errorf("save bugs: %w", err)
	}
	return nil
}

// CreateBug files a new open report at the head of the list.
func (t *Tracker) CreateBug(ctx context.Context, title, description string, reporter Author) (Bug, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return Bug{}, fmt.Errorf("%w: title and description are required", ErrValidation)
	}

	id, name, email := reporter.resolve()
	now := t.timestamp()
	bug := Bug{
		ID:            uuid.NewString(),
		Title:         title,
		Description:   description,
		Status:        StatusOpen,
		ReportedBy:    id,
		ReporterName:  name,
		ReporterEmail: email,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	list, err := t.loadBugs(ctx)
	if err != nil {
		return Bug{}, err
	}
	list = append([]Bug{bug}, list...)
	if err := t.saveBugs(ctx, list); err != nil {
		return Bug{}, err
	}
	return bug, nil
}

// ListBugs returns reports newest first, optionally only those in status.
func (t *Tracker) ListBugs(ctx context.Context, status Status) ([]Bug, error) {
	list, err := t.loadBugs(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return list, nil
	}
	filtered := []Bug{}
	for _, bug := range list {
		if bug.Status == status {
			filtered = append(filtered, bug)
		}
	}
	return filtered, nil
}

func (t *Tracker) GetBug(ctx context.Context, bugID string) (Bug, error) {
	list, err := t.loadBugs(ctx)
	if err != nil {
		return Bug{}, err
	}
	for _, bug := range list {
		if bug.ID == bugID {
			return bug, nil
		}
	}
	return Bug{}, ErrBugNotFound
}

// UpdateStatus moves a report to status and bumps its updatedAt.
func (t *Tracker) UpdateStatus(ctx context.Context, bugID, status string) (Bug, error) {
	next, err := ParseStatus(status)
	if err != nil {
		return Bug{}, err
	}

	list, err := t.loadBugs(ctx)
	if err != nil {
		return Bug{}, err
	}
	for i := range list {
		if list[i].ID != bugID {
			continue
		}
		list[i].Status = next
		list[i].UpdatedAt = t.timestamp()
		if err := t.saveBugs(ctx, list); err != nil {
			return Bug{}, err
		}
		return list[i], nil
	}
	return Bug{}, ErrBugNotFound
}

func commentsKey(bugID string) string {
	return commentsPrefix + bugID
}

// ListComments returns a report's comments oldest first.
func (t *Tracker) ListComments(ctx context.Context, bugID string) ([]Comment, error) {
	var list []Comment
	if _, err := kv.GetJSON(ctx, t.store, commentsKey(bugID), &list); err != nil {
		return nil, fmt.Errorf("load comments for %s: %w", bugID, err)
	}
	if list == nil {
		list = []Comment{}
	}
	return list, nil
}

// AddComment appends a comment to an existing report.
func (t *Tracker) AddComment(ctx context.Context, bugID, text string, author Author) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, fmt.Errorf("%w: comment text is required", ErrValidation)
	}
	if _, err := t.GetBug(ctx, bugID); err != nil {
		return Comment{}, err
	}

	id, name, email := author.resolve()
	comment := Comment{
		ID:        uuid.NewString(),
		BugID:     bugID,
		Text:      text,
		UserID:    id,
		UserName:  name,
		UserEmail: email,
		CreatedAt: t.timestamp(),
	}

	list, err := t.ListComments(ctx, bugID)
	if err != nil {
		return Comment{}, err
	}
	list = append(list, comment)
	if err := kv.SetJSON(ctx, t.store, commentsKey(bugID), list); err != nil {
		return Comment{}, fmt.Errorf("save comments for %s: %w", bugID, err)
	}
	return comment, nil
}

// CommentCounts returns the number of comments per bug id.
func (t *Tracker) CommentCounts(ctx context.Context) (map[string]int, error) {
	entries, err := t.store.GetByPrefix(ctx, commentsPrefix)
	if err != nil {
		return nil, fmt.Errorf("count comments: %w", err)
	}
	counts := make(map[string]int, len(entries))
	for _, entry := range entries {
		var list []Comment
		if err := json.Unmarshal(entry.Value, &list); err != nil {
			continue
		}
		counts[strings.TrimPrefix(entry.Key, commentsPrefix)] = len(list)
	}
	return counts, nil
}
