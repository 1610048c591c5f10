package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"

	"ideaboard/api/internal/store"
)

type fakeDirectory struct {
	users      []store.User
	err        error
	lastQuery  string
	lastLimit  int
	listCalled bool
}

func (f *fakeDirectory) SearchUsers(_ context.Context, query string, limit int) ([]store.User, error) {
	f.lastQuery, f.lastLimit = query, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.take(limit), nil
}

func (f *fakeDirectory) ListUsers(_ context.Context, limit int) ([]store.User, error) {
	f.listCalled = true
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.take(limit), nil
}

func (f *fakeDirectory) take(limit int) []store.User {
	if limit <= 0 || limit > len(f.users) {
		return f.users
	}
	return f.users[:limit]
}

func manyUsers(n int) []store.User {
	users := make([]store.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, store.User{ID: fmt.Sprintf("u%02d", i), Name: fmt.Sprintf("User %02d", i), Email: fmt.Sprintf("u%02d@example.com", i)})
	}
	return users
}

func TestSearchUsersFallsBackToPostgres(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(3)}
	svc := NewService(nil, NewPgUsers(dir))

	got := svc.SearchUsers(context.Background(), Query{Text: " user "})
	if len(got) != 3 {
		t.Fatalf("expected 3 users, got %d", len(got))
	}
	if dir.lastQuery != "user" {
		t.Fatalf("expected trimmed query, got %q", dir.lastQuery)
	}
	if got[0] != (UserRecord{ID: "u00", Name: "User 00", Email: "u00@example.com"}) {
		t.Fatalf("unexpected first record: %#v", got[0])
	}
}

func TestSearchUsersCapsResults(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(25)}
	svc := NewService(nil, NewPgUsers(dir))

	got := svc.SearchUsers(context.Background(), Query{Text: "user", Limit: 50})
	if len(got) != MaxResults {
		t.Fatalf("expected %d users, got %d", MaxResults, len(got))
	}
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(12)}
	svc := NewService(nil, NewPgUsers(dir))

	got := svc.SearchUsers(context.Background(), Query{Text: "user", ExcludeUserID: "u00"})
	if len(got) != MaxResults {
		t.Fatalf("expected a full page after exclusion, got %d", len(got))
	}
	for _, u := range got {
		if u.ID == "u00" {
			t.Fatal("caller should be excluded")
		}
	}
}

func TestEmptyQueryListsUsers(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(2)}
	svc := NewService(nil, NewPgUsers(dir))

	got := svc.SearchUsers(context.Background(), Query{})
	if !dir.listCalled {
		t.Fatal("expected empty query to list users")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 users, got %d", len(got))
	}
}

func TestSearchUsersErrorYieldsEmpty(t *testing.T) {
	svc := NewService(nil, NewPgUsers(&fakeDirectory{err: errors.New("db down")}))

	got := svc.SearchUsers(context.Background(), Query{Text: "x"})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestReindexWithoutMeiliIsNoop(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(2)}
	svc := NewService(nil, NewPgUsers(dir))
	if n := svc.ReindexAllFromPG(context.Background()); n != 0 {
		t.Fatalf("expected nothing indexed, got %d", n)
	}
	svc.IndexUser(UserRecord{ID: "u1"})
	svc.Close()
}

type fakeIndex struct {
	healthy  bool
	searchFn func(Query) ([]UserRecord, error)
	indexed  []UserRecord
	closed   bool
	indexErr error
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) SearchUsers(_ context.Context, q Query) ([]UserRecord, error) {
	return f.searchFn(q)
}

func (f *fakeIndex) IndexUser(u UserRecord) error { return f.IndexUsers([]UserRecord{u}) }

func (f *fakeIndex) IndexUsers(users []UserRecord) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.indexed = append(f.indexed, users...)
	return nil
}

func (f *fakeIndex) Close() { f.closed = true }

func TestSearchUsersPrefersHealthyIndex(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(3)}
	index := &fakeIndex{healthy: true, searchFn: func(q Query) ([]UserRecord, error) {
		return []UserRecord{{ID: "idx", Name: q.Text}}, nil
	}}
	svc := &Service{index: index, source: NewPgUsers(dir)}

	got := svc.SearchUsers(context.Background(), Query{Text: "ann"})
	if len(got) != 1 || got[0].ID != "idx" {
		t.Fatalf("expected index result, got %#v", got)
	}
	if dir.lastQuery != "" {
		t.Fatal("source should not be queried when the index answers")
	}

	index.healthy = false
	if got := svc.SearchUsers(context.Background(), Query{Text: "user"}); len(got) != 3 {
		t.Fatalf("expected fallback to source when index is unhealthy, got %#v", got)
	}
}

func TestSearchUsersFallsBackOnIndexError(t *testing.T) {
	dir := &fakeDirectory{users: manyUsers(2)}
	index := &fakeIndex{healthy: true, searchFn: func(Query) ([]UserRecord, error) {
		return nil, errors.New("index unavailable")
	}}
	svc := &Service{index: index, source: NewPgUsers(dir)}

	if got := svc.SearchUsers(context.Background(), Query{Text: "user"}); len(got) != 2 {
		t.Fatalf("expected source results, got %#v", got)
	}
}

func TestReindexPushesEverySourceRecord(t *testing.T) {
	index := &fakeIndex{healthy: true}
	svc := &Service{index: index, source: NewPgUsers(&fakeDirectory{users: manyUsers(4)})}

	if n := svc.ReindexAllFromPG(context.Background()); n != 4 {
		t.Fatalf("expected 4 users indexed, got %d", n)
	}
	if len(index.indexed) != 4 || index.indexed[0].ID != "u00" {
		t.Fatalf("unexpected indexed records %#v", index.indexed)
	}

	index.indexErr = errors.New("rejected")
	if n := svc.ReindexAllFromPG(context.Background()); n != 0 {
		t.Fatalf("expected 0 after index failure, got %d", n)
	}

	svc.Close()
	if !index.closed {
		t.Fatal("expected Close to reach the index")
	}
}

func TestHitToUser(t *testing.T) {
	hit := meili.Hit{
		"id":    json.RawMessage(`"u1"`),
		"name":  json.RawMessage(`"Ann"`),
		"email": json.RawMessage(`"ann@example.com"`),
		"extra": json.RawMessage(`42`),
	}
	got := hitToUser(hit)
	if got != (UserRecord{ID: "u1", Name: "Ann", Email: "ann@example.com"}) {
		t.Fatalf("unexpected record: %#v", got)
	}
	if decodeString(hit, "extra") != "" {
		t.Fatal("non-string field should decode as empty")
	}
}
