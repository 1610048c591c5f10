// Package client is a typed HTTP client for the idea board API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ideaboard/api/internal/bugs"
	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/search"
	"ideaboard/api/internal/social"
)

// APIError is a non-2xx response decoded from the API's {code, error} body.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type SessionInfo struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
	Email         string `json:"email"`
	Role          string `json:"role"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type UserInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type BugSummary struct {
	bugs.Bug
	CommentCount int `json:"commentCount"`
}

// Export is a downloaded idea sheet.
type Export struct {
	Data        []byte
	ContentType string
	Filename    string
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu           sync.RWMutex
	token        string
	refreshToken string
}

// New creates a client for baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SetToken sets the bearer token sent with every request. It may be the
// anon key before sign-in.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = creds.AccessToken
	c.refreshToken = creds.RefreshToken
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (c *Client) SignUp(ctx context.Context, email, password, name string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/signup", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &out)
	return out.User, err
}

// SignIn stores the returned tokens on the client.
func (c *Client) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	var creds Credentials
	if err := c.do(ctx, http.MethodPost, "/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &creds); err != nil {
		return Credentials{}, err
	}
	c.setCredentials(creds)
	return creds, nil
}

// Refresh exchanges the stored refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context) (Credentials, error) {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()

	var creds Credentials
	if err := c.do(ctx, http.MethodPost, "/session/refresh", map[string]string{"refreshToken": refresh}, &creds); err != nil {
		return Credentials{}, err
	}
	c.setCredentials(creds)
	return creds, nil
}

func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()

	err := c.do(ctx, http.MethodPost, "/session/logout", map[string]string{"refreshToken": refresh}, nil)
	c.setCredentials(Credentials{})
	return err
}

func (c *Client) Session(ctx context.Context) (SessionInfo, error) {
	var out SessionInfo
	err := c.do(ctx, http.MethodGet, "/session", nil, &out)
	return out, err
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/reset-password", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	return c.do(ctx, http.MethodPost, "/reset-password/confirm", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}, nil)
}

// Ideas returns the caller's own ideas and the shared ideas of everyone else.
func (c *Client) Ideas(ctx context.Context) ([]ideas.Idea, []ideas.Idea, error) {
	var out struct {
		UserIdeas   []ideas.Idea `json:"userIdeas"`
		SharedIdeas []ideas.Idea `json:"sharedIdeas"`
	}
	if err := c.do(ctx, http.MethodGet, "/ideas", nil, &out); err != nil {
		return nil, nil, err
	}
	return out.UserIdeas, out.SharedIdeas, nil
}

// SaveIdeas replaces the caller's whole collection.
func (c *Client) SaveIdeas(ctx context.Context, items []ideas.Idea) error {
	if items == nil {
		items = []ideas.Idea{}
	}
	return c.do(ctx, http.MethodPost, "/ideas", map[string]any{"ideas": items}, nil)
}

func (c *Client) ExportIdea(ctx context.Context, ideaID, format string) (Export, error) {
	path := "/ideas/" + url.PathEscape(ideaID) + "/export"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return Export{}, err
	}
	resp, err := c.send(req)
	if err != nil {
		return Export{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Export{}, fmt.Errorf("read export: %w", err)
	}
	out := Export{Data: data, ContentType: resp.Header.Get("Content-Type")}
	if disposition := resp.Header.Get("Content-Disposition"); disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			out.Filename = params["filename"]
		}
	}
	return out, nil
}

func (c *Client) SearchUsers(ctx context.Context, query string) ([]search.UserRecord, error) {
	var out struct {
		Users []search.UserRecord `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/users/search?q="+url.QueryEscape(query), nil, &out)
	return out.Users, err
}

// UserIdeas returns another user's shared ideas.
func (c *Client) UserIdeas(ctx context.Context, userID string) ([]ideas.Idea, error) {
	var out struct {
		Ideas []ideas.Idea `json:"ideas"`
	}
	err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/ideas", nil, &out)
	return out.Ideas, err
}

func (c *Client) Profile(ctx context.Context) (social.Profile, error) {
	var out social.Profile
	err := c.do(ctx, http.MethodGet, "/profile", nil, &out)
	return out, err
}

func (c *Client) SaveProfile(ctx context.Context, bio string) error {
	return c.do(ctx, http.MethodPut, "/profile", map[string]string{"bio": bio}, nil)
}

func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/follow", map[string]string{"targetUserId": userID}, nil)
}

func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/unfollow", map[string]string{"targetUserId": userID}, nil)
}

func (c *Client) Following(ctx context.Context) ([]string, error) {
	var out struct {
		Following []string `json:"following"`
	}
	err := c.do(ctx, http.MethodGet, "/following", nil, &out)
	return out.Following, err
}

func (c *Client) FollowingDetails(ctx context.Context) ([]social.FollowedUser, error) {
	var out struct {
		Users []social.FollowedUser `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/following/details", nil, &out)
	return out.Users, err
}

func (c *Client) FollowingFeed(ctx context.Context) ([]ideas.Idea, error) {
	var out struct {
		Ideas []ideas.Idea `json:"ideas"`
	}
	err := c.do(ctx, http.MethodGet, "/feed/following", nil, &out)
	return out.Ideas, err
}

func (c *Client) PublicFeed(ctx context.Context) ([]ideas.Idea, error) {
	var out struct {
		Ideas []ideas.Idea `json:"ideas"`
	}
	err := c.do(ctx, http.MethodGet, "/feed/public", nil, &out)
	return out.Ideas, err
}

func (c *Client) AddCollaborator(ctx context.Context, ideaID, collaboratorID, collaboratorName string) error {
	return c.do(ctx, http.MethodPost, "/ideas/"+url.PathEscape(ideaID)+"/collaborators", map[string]string{
		"collaboratorId":   collaboratorID,
		"collaboratorName": collaboratorName,
	}, nil)
}

func (c *Client) RemoveCollaborator(ctx context.Context, ideaID, collaboratorID string) error {
	path := "/ideas/" + url.PathEscape(ideaID) + "/collaborators/" + url.PathEscape(collaboratorID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ReportBug files a report. Guests identify themselves through info.
func (c *Client) ReportBug(ctx context.Context, title, description string, info UserInfo) (bugs.Bug, error) {
	var out struct {
		Bug bugs.Bug `json:"bug"`
	}
	err := c.do(ctx, http.MethodPost, "/bugs", map[string]any{
		"title":       title,
		"description": description,
		"userInfo":    info,
	}, &out)
	return out.Bug, err
}

// Bugs lists reports, optionally only those in status.
func (c *Client) Bugs(ctx context.Context, status string) ([]BugSummary, error) {
	path := "/bugs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out struct {
		Bugs []BugSummary `json:"bugs"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Bugs, err
}

func (c *Client) AddComment(ctx context.Context, bugID, text string, info UserInfo) (bugs.Comment, error) {
	var out struct {
		Comment bugs.Comment `json:"comment"`
	}
	err := c.do(ctx, http.MethodPost, "/bugs/"+url.PathEscape(bugID)+"/comments", map[string]any{
		"text":     text,
		"userInfo": info,
	}, &out)
	return out.Comment, err
}

func (c *Client) Comments(ctx context.Context, bugID string) ([]bugs.Comment, error) {
	var out struct {
		Comments []bugs.Comment `json:"comments"`
	}
	err := c.do(ctx, http.MethodGet, "/bugs/"+url.PathEscape(bugID)+"/comments", nil, &out)
	return out.Comments, err
}

func (c *Client) UpdateBugStatus(ctx context.Context, bugID, status string) error {
	return c.do(ctx, http.MethodPatch, "/bugs/"+url.PathEscape(bugID)+"/status", map[string]string{"status": status}, nil)
}

func (c *Client) AdminUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "/admin/users", nil, &out)
	return out.Users, err
}
