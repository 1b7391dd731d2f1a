package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrLocalAuthDisabled  = errors.New("local auth disabled")
	ErrAuthDisabled       = errors.New("auth disabled")
)

const defaultTokenTTL = 8 * time.Hour

// User is the identity carried by a verified bearer token. ID is the token
// subject as issued by the identity provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type ServiceConfig struct {
	JWTSecret     string
	Issuer        string
	TokenTTL      time.Duration
	LocalUser     string
	LocalPassHash string
}

type Service struct {
	secret        []byte
	issuer        string
	tokenTTL      time.Duration
	localUser     string
	localPassHash []byte
	now           func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "studysnap-local"
	}
	return &Service{
		secret:        []byte(strings.TrimSpace(cfg.JWTSecret)),
		issuer:        issuer,
		tokenTTL:      ttl,
		localUser:     strings.TrimSpace(cfg.LocalUser),
		localPassHash: []byte(strings.TrimSpace(cfg.LocalPassHash)),
		now:           time.Now,
	}
}

func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

func (s *Service) LocalEnabled() bool {
	return s.Enabled() && s.localUser != "" && len(s.localPassHash) > 0
}

func (s *Service) IssueToken(user User) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrAuthDisabled
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies an HS256 token and returns its user. Tokens without a
// subject or expiry are rejected.
func (s *Service) ParseToken(tokenStr string) (*User, error) {
	if !s.Enabled() {
		return nil, ErrAuthDisabled
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return &User{ID: sub, Email: claims.Email, Role: claims.Role}, nil
}

// AuthenticateLocal checks the single development account configured by
// AUTH_LOCAL_USER / AUTH_LOCAL_PASS_HASH.
func (s *Service) AuthenticateLocal(_ context.Context, username, password string) (*User, error) {
	if !s.LocalEnabled() {
		return nil, ErrLocalAuthDisabled
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.localUser)) == 1
	if err := bcrypt.CompareHashAndPassword(s.localPassHash, []byte(password)); err != nil || !userOK {
		return nil, ErrInvalidCredentials
	}
	return &User{ID: "local:" + s.localUser, Role: "local"}, nil
}
