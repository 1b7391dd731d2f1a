package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return NewService(ServiceConfig{
		JWTSecret:     "test-secret",
		LocalUser:     "student",
		LocalPassHash: string(hash),
	})
}

func TestIssueAndParseToken(t *testing.T) {
	svc := newTestService(t)
	token, expiresAt, err := svc.IssueToken(User{ID: "u-1", Email: "u1@example.test"})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %v", expiresAt)
	}

	user, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if user.ID != "u-1" || user.Email != "u1@example.test" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestParseTokenRejects(t *testing.T) {
	svc := newTestService(t)
	other := NewService(ServiceConfig{JWTSecret: "other-secret"})
	foreign, _, err := other.IssueToken(User{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue foreign token: %v", err)
	}

	expiredSvc := newTestService(t)
	expiredSvc.now = func() time.Time { return time.Now().Add(-24 * time.Hour) }
	expired, _, err := expiredSvc.IssueToken(User{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue expired token: %v", err)
	}

	noSubject, _, err := svc.IssueToken(User{})
	if err != nil {
		t.Fatalf("issue token without subject: %v", err)
	}

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: expired},
		{name: "missing subject", token: noSubject},
		{name: "alg none", token: noneToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ParseToken(tc.token)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestAuthenticateLocal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.AuthenticateLocal(ctx, "student", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != "local:student" {
		t.Fatalf("expected local:student, got %s", user.ID)
	}

	if _, err := svc.AuthenticateLocal(ctx, "student", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.AuthenticateLocal(ctx, "mallory", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	disabled := NewService(ServiceConfig{JWTSecret: "x"})
	if _, err := disabled.AuthenticateLocal(ctx, "student", "s3cret"); !errors.Is(err, ErrLocalAuthDisabled) {
		t.Fatalf("expected ErrLocalAuthDisabled, got %v", err)
	}
}

func TestServiceWithoutSecret(t *testing.T) {
	svc := NewService(ServiceConfig{})
	if svc.Enabled() {
		t.Fatalf("expected auth to be disabled without secret")
	}
	if _, _, err := svc.IssueToken(User{ID: "u"}); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("expected ErrAuthDisabled, got %v", err)
	}
}
