package search

import (
	"context"
	"fmt"
	"strings"

	"ideaboard/api/internal/store"
)

// UserDirectory is the subset of the Postgres user store used for fallback
// search and full reindexing.
type UserDirectory interface {
	SearchUsers(ctx context.Context, query string, limit int) ([]store.User, error)
	ListUsers(ctx context.Context, limit int) ([]store.User, error)
}

// PgUsers implements Searcher with ILIKE queries against the users table.
type PgUsers struct {
	users UserDirectory
}

func NewPgUsers(users UserDirectory) *PgUsers {
	return &PgUsers{users: users}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgUsers) Healthy() bool {
	return true
}

// SearchUsers matches name or email. An empty query lists users by name.
func (p *PgUsers) SearchUsers(ctx context.Context, q Query) ([]UserRecord, error) {
	limit := q.limit()
	text := strings.TrimSpace(q.Text)

	var (
		rows []store.User
		err  error
	)
	if text == "" {
		rows, err = p.users.ListUsers(ctx, limit+1)
	} else {
		rows, err = p.users.SearchUsers(ctx, text, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return trimUsers(toRecords(rows), q.ExcludeUserID, limit), nil
}

// LoadAllRecords returns every user for full reindexing.
func (p *PgUsers) LoadAllRecords(ctx context.Context) ([]UserRecord, error) {
	rows, err := p.users.ListUsers(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return toRecords(rows), nil
}

// RecordFromUser converts a directory row into its public search form.
func RecordFromUser(u store.User) UserRecord {
	return UserRecord{ID: u.ID, Name: u.Name, Email: u.Email}
}

func toRecords(rows []store.User) []UserRecord {
	out := make([]UserRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, RecordFromUser(row))
	}
	return out
}

func trimUsers(users []UserRecord, excludeID string, limit int) []UserRecord {
	out := make([]UserRecord, 0, limit)
	for _, u := range users {
		if excludeID != "" && u.ID == excludeID {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, u)
	}
	return out
}
