package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"ideaboard/api/internal/config"
	"ideaboard/api/internal/kv"
	"ideaboard/api/internal/session"
	"ideaboard/api/internal/store"
)

// fakeUsers is an in-memory user directory.
type fakeUsers struct {
	mu     sync.Mutex
	users  map[string]store.User
	resets map[string]string
	pingFn func(context.Context) error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]store.User{}, resets: map[string]string{}}
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return store.User{}, store.ErrUserNotFound
}

func (f *fakeUsers) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return store.ErrEmailTaken
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeUsers) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeUsers) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", store.ErrResetNotFound
	}
	return userID, nil
}

func (f *fakeUsers) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

func (f *fakeUsers) ListUsers(_ context.Context, limit int) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(f.users))
	for _, user := range f.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUsers) SearchUsers(ctx context.Context, query string, limit int) ([]store.User, error) {
	all, _ := f.ListUsers(ctx, 0)
	query = strings.ToLower(query)
	var out []store.User
	for _, user := range all {
		if strings.Contains(strings.ToLower(user.Name), query) || strings.Contains(strings.ToLower(user.Email), query) {
			out = append(out, user)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUsers) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeUsers) setRole(userID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.Role = role
	f.users[userID] = user
}

func testConfig() config.Config {
	return config.Config{
		TokenSecret: "test-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		CORSOrigin:  "*",
		AppURL:      "http://localhost:5173",
	}
}

type testEnv struct {
	server *HTTPServer
	svc    *Service
	users  *fakeUsers
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)

	kvStore, err := kv.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("kv store: %v", err)
	}
	t.Cleanup(func() { _ = kvStore.Close() })

	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	users := newFakeUsers()
	svc := New(cfg, users, sessions, kvStore, nil)
	return &testEnv{
		server: NewHTTPServer(svc, cfg.CORSOrigin),
		svc:    svc,
		users:  users,
		redis:  mr,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

// signUp registers and signs in a user, returning the access token and user id.
func (e *testEnv) signUp(t *testing.T, emailAddr, name string) (string, string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/signup", "", map[string]string{
		"email":    emailAddr,
		"password": "password123",
		"name":     name,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("signup %s: expected 200, got %d body=%s", emailAddr, rr.Code, rr.Body.String())
	}

	rr = e.do(t, http.MethodPost, "/signin", "", map[string]string{
		"email":    emailAddr,
		"password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("signin %s: expected 200, got %d body=%s", emailAddr, rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	token, _ := payload["accessToken"].(string)
	userID, _ := payload["userId"].(string)
	if token == "" || userID == "" {
		t.Fatalf("signin %s: missing token or user id: %v", emailAddr, payload)
	}
	return token, userID
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
}
