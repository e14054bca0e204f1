package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

// CredentialLookup loads users by their normalized username.
type CredentialLookup interface {
	GetUserByUsername(ctx context.Context, username string) (rbac.User, error)
}

// PasswordVerifier checks plaintext secrets against stored digests.
type PasswordVerifier interface {
	Verify(plaintext, digest string) bool
	Burn(plaintext string)
}

// TokenIssuer mints access tokens.
type TokenIssuer interface {
	Issue(userID int64, ttl time.Duration) (string, time.Time, error)
	TTL() time.Duration
}

// Token is the login response payload.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int64     `json:"expires_in"`
}

// Service wraps authentication business rules.
type Service struct {
	lookup      CredentialLookup
	registrar   *users.Service
	passwords   PasswordVerifier
	tokens      TokenIssuer
	allowSignup bool
}

// NewService constructs a new Service. When allowSignup is false only admins may register accounts.
func NewService(lookup CredentialLookup, registrar *users.Service, passwords PasswordVerifier, tokens TokenIssuer, allowSignup bool) *Service {
	return &Service{
		lookup:      lookup,
		registrar:   registrar,
		passwords:   passwords,
		tokens:      tokens,
		allowSignup: allowSignup,
	}
}

// Login validates username/password credentials and issues an access token.
// Every credential failure yields shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (Token, rbac.User, error) {
	normalized, err := users.NormalizeUsername(username)
	if err != nil {
		s.passwords.Burn(password)
		return Token{}, rbac.User{}, shared.ErrInvalidCredentials
	}
	user, err := s.lookup.GetUserByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.passwords.Burn(password)
			return Token{}, rbac.User{}, shared.ErrInvalidCredentials
		}
		return Token{}, rbac.User{}, fmt.Errorf("load credentials: %w", err)
	}
	if !s.passwords.Verify(password, user.PasswordHash) {
		return Token{}, rbac.User{}, shared.ErrInvalidCredentials
	}
	ttl := s.tokens.TTL()
	raw, expiresAt, err := s.tokens.Issue(user.ID, ttl)
	if err != nil {
		return Token{}, rbac.User{}, fmt.Errorf("issue token: %w", err)
	}
	return Token{
		AccessToken: raw,
		TokenType:   TokenType,
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64((ttl + time.Second - 1) / time.Second),
	}, user, nil
}

// Register creates an account. Explicit role assignment is reserved for admins,
// and a closed signup policy restricts registration to admins entirely.
func (s *Service) Register(ctx context.Context, in users.CreateInput, caller *rbac.User) (rbac.User, error) {
	isAdmin := caller.HasRole(shared.RoleAdmin)
	if !s.allowSignup && !isAdmin {
		return rbac.User{}, shared.ErrForbidden
	}
	if len(in.RoleIDs) > 0 && !isAdmin {
		return rbac.User{}, shared.ErrForbidden
	}
	return s.registrar.Create(ctx, in)
}
