package search

import "context"

// MaxResults caps every user search.
const MaxResults = 10

// UserRecord is the data we index for a user and return to callers.
type UserRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Query describes a user search request.
type Query struct {
	Text          string
	Limit         int
	ExcludeUserID string
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > MaxResults {
		return MaxResults
	}
	return q.Limit
}

// Searcher can execute a user search.
type Searcher interface {
	SearchUsers(ctx context.Context, q Query) ([]UserRecord, error)
	Healthy() bool
}

// Indexer can push users into a search index.
type Indexer interface {
	IndexUser(u UserRecord) error
	IndexUsers(users []UserRecord) error
}

// Index is a writable search backend such as Meilisearch.
type Index interface {
	Searcher
	Indexer
	Close()
}

// Source is the system of record: it answers searches when no index is
// healthy and supplies every record for a full reindex.
type Source interface {
	SearchUsers(ctx context.Context, q Query) ([]UserRecord, error)
	LoadAllRecords(ctx context.Context) ([]UserRecord, error)
}
