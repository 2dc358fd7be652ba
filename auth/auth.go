/*
Package auth authenticates the single configured HR principal.

FLOW:
  POST /api/auth/login ──▶ Service.Login ──▶ HS256 token (sub = HR username)
  Authorization: Bearer <token> ──▶ Service.Parse ──▶ Principal in context
  leave.Engine.UpdateStatus ──▶ HRAuthorizer ──▶ principal must be HR

PASSWORDS:
  The configured HR password is either plain text or a bcrypt hash (any
  value starting with "$2"). Plain values are compared in constant time.
  Use `server hash-password` to produce a hash.
*/
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

	"github.com/warp/leave-engine/leave"
)

const issuer = "leave-engine"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid authentication credentials")
	ErrNoPrincipal        = errors.New("no authenticated principal")
	ErrNotHR              = errors.New("principal is not HR")
)

// Config configures a Service.
type Config struct {
	Secret   string
	Username string
	Password string // plain text or bcrypt hash
	TTL      time.Duration
}

// Principal is an authenticated caller.
type Principal struct {
	Username string
}

// Token is the login response.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service issues and verifies bearer tokens for the HR principal.
type Service struct {
	cfg Config
	now func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNow replaces the wall clock used for issuing and validating tokens.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. An empty secret is rejected.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: empty secret")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login checks the credentials against the configured HR principal and
// returns a signed token.
func (s *Service) Login(username, password string) (Token, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Username)) == 1
	passOK := VerifyPassword(password, s.cfg.Password)
	if !userOK || !passOK {
		return Token{}, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.cfg.TTL)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires.UTC()}, nil
}

// Parse validates a bearer token. Only tokens whose subject is the
// configured HR username are accepted.
func (s *Service) Parse(tokenString string) (Principal, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Subject != s.cfg.Username {
		return Principal{}, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	return Principal{Username: claims.Subject}, nil
}

// Authorizer returns the engine gate for status decisions.
func (s *Service) Authorizer() leave.Authorizer {
	return HRAuthorizer{Username: s.cfg.Username}
}

// VerifyPassword compares plain against a stored plain or bcrypt value.
func VerifyPassword(plain, stored string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(plain), []byte(stored)) == 1
}

// HashPassword returns a bcrypt hash suitable for HR_PASSWORD.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// =============================================================================
// CONTEXT
// =============================================================================

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// HRAuthorizer admits callers whose context carries the HR principal.
type HRAuthorizer struct {
	Username string
}

var _ leave.Authorizer = HRAuthorizer{}

func (a HRAuthorizer) AuthorizeDecision(ctx context.Context) error {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return ErrNoPrincipal
	}
	if p.Username != a.Username {
		return ErrNotHR
	}
	return nil
}
