package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ideaboard/api/internal/ideas"
	"ideaboard/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	router     *mux.Router
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin}
	s.router = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.router)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	r.HandleFunc("/signup", s.anonKey(s.handleSignUp)).Methods(http.MethodPost)
	r.HandleFunc("/signin", s.anonKey(s.handleSignIn)).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", s.anonKey(s.handleRequestReset)).Methods(http.MethodPost)
	r.HandleFunc("/reset-password/confirm", s.anonKey(s.handleResetPassword)).Methods(http.MethodPost)
	r.HandleFunc("/session", s.optional(s.handleSession)).Methods(http.MethodGet)
	r.HandleFunc("/session/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/session/logout", s.optional(s.handleLogout)).Methods(http.MethodPost)

	r.HandleFunc("/ideas", s.user(s.handleListIdeas)).Methods(http.MethodGet)
	r.HandleFunc("/ideas", s.user(s.handleSaveIdeas)).Methods(http.MethodPost)
	r.HandleFunc("/ideas/{id}/export", s.user(s.handleExportIdea)).Methods(http.MethodGet)
	r.HandleFunc("/ideas/{id}/collaborators", s.user(s.handleAddCollaborator)).Methods(http.MethodPost)
	r.HandleFunc("/ideas/{id}/collaborators/{cid}", s.user(s.handleRemoveCollaborator)).Methods(http.MethodDelete)

	r.HandleFunc("/users/search", s.optional(s.handleSearchUsers)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/ideas", s.handleUserIdeas).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.user(s.handleGetProfile)).Methods(http.MethodGet)
	r.HandleFunc("/profile", s.user(s.handleSaveProfile)).Methods(http.MethodPut)

	r.HandleFunc("/follow", s.user(s.handleFollow)).Methods(http.MethodPost)
	r.HandleFunc("/unfollow", s.user(s.handleUnfollow)).Methods(http.MethodPost)
	r.HandleFunc("/following", s.user(s.handleFollowing)).Methods(http.MethodGet)
	r.HandleFunc("/following/details", s.user(s.handleFollowingDetails)).Methods(http.MethodGet)

	r.HandleFunc("/feed/following", s.user(s.handleFollowingFeed)).Methods(http.MethodGet)
	r.HandleFunc("/feed/public", s.handlePublicFeed).Methods(http.MethodGet)

	r.HandleFunc("/bugs", s.optional(s.handleReportBug)).Methods(http.MethodPost)
	r.HandleFunc("/bugs", s.handleListBugs).Methods(http.MethodGet)
	r.HandleFunc("/bugs/{id}/comments", s.optional(s.handleAddComment)).Methods(http.MethodPost)
	r.HandleFunc("/bugs/{id}/comments", s.handleListComments).Methods(http.MethodGet)
	r.HandleFunc("/bugs/{id}/status", s.user(s.handleUpdateBugStatus)).Methods(http.MethodPatch)

	r.HandleFunc("/admin/users", s.user(s.handleAdminUsers)).Methods(http.MethodGet)
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ready := true
	checks := map[string]any{}
	for name, ping := range map[string]func(context.Context) error{
		"database": s.service.Ping,
		"redis":    s.service.PingRedis,
	} {
		if err := ping(ctx); err != nil {
			ready = false
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":     false,
			"status": "not_ready",
			"checks": checks,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": "ready",
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userPayload(user)})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	creds, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsPayload(creds))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	creds, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsPayload(creds))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, _ *http.Request, session Session) {
	if !session.Authenticated() {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.DisplayName,
		"email":         session.Email,
		"role":          session.Role,
	})
}

func (s *HTTPServer) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	s.service.RequestPasswordReset(r.Context(), body.Email)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleListIdeas(w http.ResponseWriter, r *http.Request, session Session) {
	own, shared, err := s.service.UserIdeas(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userIdeas":   own,
		"sharedIdeas": shared,
	})
}

func (s *HTTPServer) handleSaveIdeas(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Ideas []ideas.Idea `json:"ideas"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Ideas == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "ideas must be an array", nil)
		return
	}
	if err := s.service.SaveIdeas(r.Context(), session, body.Ideas); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleExportIdea(w http.ResponseWriter, r *http.Request, session Session) {
	ideaID := mux.Vars(r)["id"]
	result, err := s.service.ExportIdea(r.Context(), session, ideaID, r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleAddCollaborator(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		CollaboratorID   string `json:"collaboratorId"`
		CollaboratorName string `json:"collaboratorName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.AddCollaborator(r.Context(), session, mux.Vars(r)["id"], body.CollaboratorID, body.CollaboratorName); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request, session Session) {
	vars := mux.Vars(r)
	if err := s.service.RemoveCollaborator(r.Context(), session, vars["id"], vars["cid"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleSearchUsers(w http.ResponseWriter, r *http.Request, session Session) {
	users := s.service.SearchUsers(r.Context(), session, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleUserIdeas(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.PublicIdeasOf(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ideas": items})
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request, session Session) {
	profile, err := s.service.Profile(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleSaveProfile(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Bio string `json:"bio"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.SaveProfile(r.Context(), session, body.Bio); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type followBody struct {
	TargetUserID string `json:"targetUserId"`
}

func (s *HTTPServer) handleFollow(w http.ResponseWriter, r *http.Request, session Session) {
	var body followBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Follow(r.Context(), session, body.TargetUserID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleUnfollow(w http.ResponseWriter, r *http.Request, session Session) {
	var body followBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Unfollow(r.Context(), session, body.TargetUserID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleFollowing(w http.ResponseWriter, r *http.Request, session Session) {
	following, err := s.service.Following(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"following": following})
}

func (s *HTTPServer) handleFollowingDetails(w http.ResponseWriter, r *http.Request, session Session) {
	users, err := s.service.FollowingDetails(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleFollowingFeed(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.FollowingFeed(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ideas": items})
}

func (s *HTTPServer) handlePublicFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ideas": s.service.PublicFeed(r.Context())})
}

func (s *HTTPServer) handleReportBug(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		UserInfo    UserInfo `json:"userInfo"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	bug, err := s.service.ReportBug(r.Context(), session, body.Title, body.Description, body.UserInfo)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bug": bug})
}

func (s *HTTPServer) handleListBugs(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListBugs(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bugs": list})
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Text     string   `json:"text"`
		UserInfo UserInfo `json:"userInfo"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.service.AddBugComment(r.Context(), session, mux.Vars(r)["id"], body.Text, body.UserInfo)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comment": comment})
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.service.BugComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *HTTPServer) handleUpdateBugStatus(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	bug, err := s.service.UpdateBugStatus(r.Context(), session, mux.Vars(r)["id"], body.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bug": bug})
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request, session Session) {
	users, err := s.service.ListUsers(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// user requires a valid access token.
func (s *HTTPServer) user(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next(w, r, session)
	}
}

// optional resolves a session when a valid token is present and otherwise
// continues as a guest.
func (s *HTTPServer) optional(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next(w, r, s.optionalSession(r))
	}
}

func (s *HTTPServer) anonKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.service.AnonKeyAccepted(r.Context(), bearerToken(r)) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			s.fail(w, r, err)
			return Session{}, false
		}
		writeError(w, status, code, message, details)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) optionalSession(r *http.Request) Session {
	token := bearerToken(r)
	if token == "" {
		return Session{}
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		return Session{}
	}
	return session
}

// fail writes the mapped error. Server errors are logged with their detail
// and answered with a generic message.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		requestID, _ := r.Context().Value(requestIDKey{}).(string)
		log.Printf("app: request %s %s %s failed: %v", requestID, r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, message, details)
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"role":      user.Role,
		"createdAt": ideas.Timestamp(user.CreatedAt),
	}
}

func credentialsPayload(creds Credentials) map[string]any {
	return map[string]any{
		"accessToken":  creds.AccessToken,
		"refreshToken": creds.RefreshToken,
		"userId":       creds.UserID,
		"userName":     creds.DisplayName,
		"email":        creds.Email,
		"role":         creds.Role,
		"expiresAt":    creds.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// decodeBody treats an empty body as an empty object.
func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
