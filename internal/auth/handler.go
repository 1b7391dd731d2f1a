package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"studysnap/internal/app/apiresp"
	"studysnap/internal/app/observability"
)

type contextKey string

const userContextKey contextKey = "auth_user"

const tokenCookieName = "studysnap_token"

const maxLoginBodyBytes = 1 << 16

type Handler struct {
	svc *Service
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.svc.LocalEnabled() {
		apiresp.WriteError(w, r, http.StatusNotFound, "local login is not enabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.svc.AuthenticateLocal(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	token, expiresAt, err := h.svc.IssueToken(*user)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "cannot issue token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	})
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{
		"access_token": token,
		"expires_at":   expiresAt,
		"user":         user,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, user)
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := readToken(r)
		if token == "" || !h.svc.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		user, err := h.svc.ParseToken(token)
		if err != nil {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		user, err := h.svc.ParseToken(readToken(r))
		if err != nil {
			apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func CurrentUser(ctx context.Context) (*User, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*User)
	return u, ok
}

// ContextWithUser injects an authenticated user into context and tags the
// access log entry of the request with its ID.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	if user != nil {
		observability.SetUserID(ctx, user.ID)
	}
	return context.WithValue(ctx, userContextKey, user)
}

func readToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	c, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
