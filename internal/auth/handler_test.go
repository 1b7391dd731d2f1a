package auth

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"studysnap/internal/app/observability"
)

func TestLoginHandler(t *testing.T) {
	h := NewHandler(newTestService(t))

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "ok", body: `{"username":"student","password":"s3cret"}`, code: http.StatusOK},
		{name: "wrong password", body: `{"username":"student","password":"nope"}`, code: http.StatusUnauthorized},
		{name: "bad json", body: `{"username":`, code: http.StatusBadRequest},
		{name: "oversized body", body: `{"username":"student","password":"s3cret","pad":"` + strings.Repeat("x", maxLoginBodyBytes) + `"}`, code: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()
			h.Login(w, req)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d (%s)", tc.code, w.Code, w.Body.String())
			}
			if tc.code == http.StatusOK && len(w.Result().Cookies()) == 0 {
				t.Fatalf("expected token cookie")
			}
		})
	}
}

func TestLoginHandlerDisabled(t *testing.T) {
	h := NewHandler(NewService(ServiceConfig{JWTSecret: "x"}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	h.Login(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRequireAuthAndOptionalAuth(t *testing.T) {
	svc := newTestService(t)
	h := NewHandler(svc)
	token, _, err := svc.IssueToken(User{ID: "u-42"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ""
		if u, ok := CurrentUser(r.Context()); ok {
			seen = u.ID
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	w := httptest.NewRecorder()
	h.RequireAuth(next).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h.RequireAuth(next).ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen != "u-42" {
		t.Fatalf("expected 200 for u-42, got %d user=%q", w.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil)
	w = httptest.NewRecorder()
	h.OptionalAuth(next).ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen != "" {
		t.Fatalf("expected anonymous pass-through, got %d user=%q", w.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: token})
	w = httptest.NewRecorder()
	h.OptionalAuth(next).ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen != "u-42" {
		t.Fatalf("expected cookie auth for u-42, got %d user=%q", w.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil)
	req.Header.Set("Authorization", "Bearer broken")
	w = httptest.NewRecorder()
	h.OptionalAuth(next).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for broken token, got %d", w.Code)
	}
}

func TestMe(t *testing.T) {
	h := NewHandler(newTestService(t))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: "u-7"}))
	w := httptest.NewRecorder()
	h.Me(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var env struct {
		OK   bool `json:"ok"`
		Data User `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.OK || env.Data.ID != "u-7" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestAccessLogCarriesAuthenticatedUser(t *testing.T) {
	svc := newTestService(t)
	h := NewHandler(svc)
	token, _, err := svc.IssueToken(User{ID: "u-42"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := observability.NewCollector(nil).Middleware(h.OptionalAuth(ok))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	chain.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"user_id":"u-42"`) {
		t.Fatalf("expected user_id in access log, got %s", buf.String())
	}
}
