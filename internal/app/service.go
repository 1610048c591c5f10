package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"ideaboard/api/internal/auth"
	"ideaboard/api/internal/authpw"
	"ideaboard/api/internal/bugs"
	"ideaboard/api/internal/config"
	"ideaboard/api/internal/email"
	"ideaboard/api/internal/export"
	"ideaboard/api/internal/feed"
	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/kv"
	"ideaboard/api/internal/rbac"
	"ideaboard/api/internal/search"
	"ideaboard/api/internal/social"
	"ideaboard/api/internal/store"
	"ideaboard/api/internal/util"
)

const adminListLimit = 500

// Session is the authenticated caller, resolved once per request.
// The zero value is a guest.
type Session struct {
	UserID      string
	DisplayName string
	Email       string
	Role        string
	JTI         string
	ExpiresAt   time.Time
}

func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// Credentials is the result of a sign-in or refresh.
type Credentials struct {
	Session
	AccessToken  string
	RefreshToken string
}

// UserInfo is the contact data a guest may attach to a bug or comment.
type UserInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type BugView struct {
	bugs.Bug
	CommentCount int `json:"commentCount"`
}

type AdminUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type userStore interface {
	authpw.UserStore
	ListUsers(ctx context.Context, limit int) ([]store.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]store.User, error)
	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	users    userStore
	sessions sessionStore
	tokens   *auth.Signer
	auth     *authpw.Service
	mailer   *email.Service
	search   *search.Service
	exporter *export.Service
	ideas    *ideas.Repository
	graph    *social.Graph
	feeds    *feed.Aggregator
	bugs     *bugs.Tracker
}

// New wires the domain components over one user directory, one session store
// and one key-value store. searchService may be nil, in which case user
// search runs against the directory only.
func New(cfg config.Config, users userStore, sessions sessionStore, kvStore kv.Store, searchService *search.Service) *Service {
	if searchService == nil {
		searchService = search.NewService(nil, search.NewPgUsers(users))
	}
	directory := userDirectory{users: users}
	repo := ideas.NewRepository(kvStore).WithOwnerNames(directory)
	graph := social.NewGraph(kvStore, repo, directory)

	return &Service{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		tokens:   auth.NewSigner(cfg.TokenSecret),
		auth:     authpw.NewService(users),
		mailer: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			AppURL:   cfg.AppURL,
		}),
		search:   searchService,
		exporter: export.NewService(),
		ideas:    repo,
		graph:    graph,
		feeds:    feed.NewAggregator(repo, graph),
		bugs:     bugs.NewTracker(kvStore),
	}
}

// userDirectory adapts the Postgres user table to the lookups the social
// graph and the ideas repository need.
type userDirectory struct {
	users userStore
}

func (d userDirectory) LookupUser(ctx context.Context, userID string) (social.UserSummary, error) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		return social.UserSummary{}, err
	}
	return social.UserSummary{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}

func (d userDirectory) OwnerName(ctx context.Context, userID string) (string, error) {
	user, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) require(session Session, action rbac.Action) error {
	if !session.Authenticated() {
		return errUnauthorized
	}
	if !s.Can(session.Role, action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", map[string]any{
			"action": string(action),
			"role":   session.Role,
		})
	}
	return nil
}

// Ping checks the user database.
func (s *Service) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

// PingRedis checks the Redis instance behind sessions and the key-value store.
func (s *Service) PingRedis(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

// AnonKeyAccepted reports whether token may call the public-key routes.
// With no anon key configured every caller is accepted.
func (s *Service) AnonKeyAccepted(ctx context.Context, token string) bool {
	if s.cfg.AnonKey == "" {
		return true
	}
	if token == "" {
		return false
	}
	if token == s.cfg.AnonKey {
		return true
	}
	_, err := s.SessionFromToken(ctx, token)
	return err == nil
}

func (s *Service) SignUp(ctx context.Context, emailAddr, password, name string) (store.User, error) {
	user, err := s.auth.SignUp(ctx, authpw.SignUpRequest{
		Email:    emailAddr,
		Password: password,
		Name:     name,
	})
	if err != nil {
		return store.User{}, err
	}

	s.search.IndexUser(search.RecordFromUser(user))
	if s.mailer.IsConfigured() {
		if err := s.mailer.SendWelcomeEmail(user.Email, user.Name); err != nil {
			log.Printf("app: welcome email to %s: %v", user.ID, err)
		}
	}
	return user, nil
}

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Credentials, error) {
	user, err := s.auth.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Credentials{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Credentials{}, errUnauthorized
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Credentials{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return Credentials{}, errUnauthorized
	}
	if err != nil {
		return Credentials{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Credentials{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Credentials, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := s.tokens.Issue(auth.Claims{
		Sub:   user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Credentials{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Credentials{}, err
	}

	return Credentials{
		Session: Session{
			UserID:      user.ID,
			DisplayName: user.Name,
			Email:       user.Email,
			Role:        user.Role,
			JTI:         jti,
			ExpiresAt:   expiresAt,
		},
		AccessToken:  token,
		RefreshToken: refresh,
	}, nil
}

// SessionFromToken validates an access token. Role and name come from the
// directory so a promotion takes effect without signing in again.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrUserNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		UserID:      user.ID,
		DisplayName: user.Name,
		Email:       user.Email,
		Role:        user.Role,
		JTI:         claims.JTI,
		ExpiresAt:   claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			log.Printf("app: revoke access token: %v", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			log.Printf("app: revoke refresh token: %v", err)
		}
	}
	return nil
}

// RequestPasswordReset never reveals whether the address is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) {
	user, token, err := s.auth.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		log.Printf("app: password reset request: %v", err)
		return
	}
	if token == "" {
		return
	}
	if !s.mailer.IsConfigured() {
		log.Printf("app: password reset for %s created but SMTP is not configured", user.ID)
		return
	}
	if err := s.mailer.SendPasswordResetEmail(user.Email, user.Name, token); err != nil {
		log.Printf("app: password reset email to %s: %v", user.ID, err)
	}
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.auth.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

// UserIdeas returns the caller's own collection and everyone else's shared ideas.
func (s *Service) UserIdeas(ctx context.Context, session Session) ([]ideas.Idea, []ideas.Idea, error) {
	if err := s.require(session, rbac.ActionRead); err != nil {
		return nil, nil, err
	}
	own, err := s.ideas.GetUserIdeas(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}
	return own, s.ideas.SharedIdeasExcluding(ctx, session.UserID), nil
}

func (s *Service) SaveIdeas(ctx context.Context, session Session, items []ideas.Idea) error {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return err
	}
	return s.ideas.SaveUserIdeas(ctx, session.UserID, items)
}

// ExportIdea renders one of the caller's ideas, or another user's shared
// idea, in the requested format.
func (s *Service) ExportIdea(ctx context.Context, session Session, ideaID, rawFormat string) (*export.Result, error) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, err
	}

	idea, err := s.ideas.FindIdea(ctx, session.UserID, ideaID)
	if errors.Is(err, ideas.ErrIdeaNotFound) {
		idea, err = s.findSharedIdea(ctx, session.UserID, ideaID)
	}
	if err != nil {
		return nil, err
	}

	return s.exporter.Export(ctx, export.Request{Idea: idea, Format: format})
}

func (s *Service) findSharedIdea(ctx context.Context, callerID, ideaID string) (ideas.Idea, error) {
	for _, idea := range s.ideas.SharedIdeasExcluding(ctx, callerID) {
		if idea.ID == ideaID {
			return idea, nil
		}
	}
	return ideas.Idea{}, ideas.ErrIdeaNotFound
}

func (s *Service) SearchUsers(ctx context.Context, session Session, query string) []search.UserRecord {
	return s.search.SearchUsers(ctx, search.Query{
		Text:          strings.TrimSpace(query),
		Limit:         search.MaxResults,
		ExcludeUserID: session.UserID,
	})
}

func (s *Service) PublicIdeasOf(ctx context.Context, userID string) ([]ideas.Idea, error) {
	return s.ideas.SharedIdeasOf(ctx, userID)
}

func (s *Service) Profile(ctx context.Context, session Session) (social.Profile, error) {
	return s.graph.GetProfile(ctx, session.UserID)
}

func (s *Service) SaveProfile(ctx context.Context, session Session, bio string) error {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return err
	}
	return s.graph.SaveProfile(ctx, session.UserID, bio)
}

func (s *Service) Follow(ctx context.Context, session Session, targetID string) error {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return err
	}
	return s.graph.Follow(ctx, session.UserID, strings.TrimSpace(targetID))
}

func (s *Service) Unfollow(ctx context.Context, session Session, targetID string) error {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return err
	}
	return s.graph.Unfollow(ctx, session.UserID, strings.TrimSpace(targetID))
}

func (s *Service) Following(ctx context.Context, session Session) ([]string, error) {
	return s.graph.ListFollowing(ctx, session.UserID)
}

func (s *Service) FollowingDetails(ctx context.Context, session Session) ([]social.FollowedUser, error) {
	return s.graph.ListFollowingDetails(ctx, session.UserID)
}

func (s *Service) FollowingFeed(ctx context.Context, session Session) ([]ideas.Idea, error) {
	return s.feeds.Following(ctx, session.UserID)
}

func (s *Service) PublicFeed(ctx context.Context) []ideas.Idea {
	return s.feeds.Public(ctx)
}

func (s *Service) AddCollaborator(ctx context.Context, session Session, ideaID, collaboratorID, collaboratorName string) error {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return err
	}
	return s.ideas.AddCollaborator(ctx, session.UserID, ideaID, strings.TrimSpace(collaboratorID), strings.TrimSpace(collaboratorName))
}

func (s *Service) RemoveCollaborator(ctx context.Context, session Session, ideaID, collaboratorID string) error {
	if err := s.require(session, rbac.ActionWrite); err != nil {
		return err
	}
	return s.ideas.RemoveCollaborator(ctx, session.UserID, ideaID, collaboratorID)
}

// author attributes a bug or comment to the signed-in user, or to the guest
// contact details when there is no session.
func author(session Session, info UserInfo) bugs.Author {
	if session.Authenticated() {
		return bugs.Author{UserID: session.UserID, Name: session.DisplayName, Email: session.Email}
	}
	return bugs.Author{Name: info.Name, Email: info.Email}
}

func (s *Service) ReportBug(ctx context.Context, session Session, title, description string, info UserInfo) (bugs.Bug, error) {
	if err := s.require(guestOr(session), rbac.ActionReport); err != nil {
		return bugs.Bug{}, err
	}
	return s.bugs.CreateBug(ctx, title, description, author(session, info))
}

func (s *Service) ListBugs(ctx context.Context, rawStatus string) ([]BugView, error) {
	var status bugs.Status
	if strings.TrimSpace(rawStatus) != "" {
		parsed, err := bugs.ParseStatus(rawStatus)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	list, err := s.bugs.ListBugs(ctx, status)
	if err != nil {
		return nil, err
	}
	counts, err := s.bugs.CommentCounts(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]BugView, 0, len(list))
	for _, bug := range list {
		views = append(views, BugView{Bug: bug, CommentCount: counts[bug.ID]})
	}
	return views, nil
}

func (s *Service) AddBugComment(ctx context.Context, session Session, bugID, text string, info UserInfo) (bugs.Comment, error) {
	if err := s.require(guestOr(session), rbac.ActionReport); err != nil {
		return bugs.Comment{}, err
	}
	return s.bugs.AddComment(ctx, bugID, text, author(session, info))
}

func (s *Service) BugComments(ctx context.Context, bugID string) ([]bugs.Comment, error) {
	if _, err := s.bugs.GetBug(ctx, bugID); err != nil {
		return nil, err
	}
	return s.bugs.ListComments(ctx, bugID)
}

func (s *Service) UpdateBugStatus(ctx context.Context, session Session, bugID, status string) (bugs.Bug, error) {
	if err := s.require(session, rbac.ActionTriage); err != nil {
		return bugs.Bug{}, err
	}
	return s.bugs.UpdateStatus(ctx, bugID, status)
}

func (s *Service) ListUsers(ctx context.Context, session Session) ([]AdminUser, error) {
	if err := s.require(session, rbac.ActionAdmin); err != nil {
		return nil, err
	}
	rows, err := s.users.ListUsers(ctx, adminListLimit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]AdminUser, 0, len(rows))
	for _, row := range rows {
		users = append(users, AdminUser{
			ID:        row.ID,
			Name:      row.Name,
			Email:     row.Email,
			Role:      row.Role,
			CreatedAt: ideas.Timestamp(row.CreatedAt),
		})
	}
	return users, nil
}

// guestOr gives an anonymous caller the guest role so the permission check
// runs against rbac rather than rejecting the request outright.
func guestOr(session Session) Session {
	if session.Authenticated() {
		return session
	}
	return Session{UserID: bugs.GuestID, Role: string(rbac.RoleGuest)}
}
