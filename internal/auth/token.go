package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every verification failure: bad signature, malformed
// payload, wrong algorithm or issuer, and expiry. Callers cannot tell them apart.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenType is the label returned alongside issued tokens.
const TokenType = "bearer"

// MinSecretLength is the minimum HMAC key size accepted.
const MinSecretLength = 32

// TokenConfig defines how access tokens are signed.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// TokenService issues and verifies stateless HS256 access tokens. There is no
// revocation list: a token stays valid until it expires or its subject is deleted.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
}

// NewTokenService validates cfg and constructs a TokenService.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	return &TokenService{secret: secret, issuer: cfg.Issuer, ttl: cfg.TTL, now: now}, nil
}

// TTL returns the default lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID expiring ttl from now.
func (s *TokenService) Issue(userID int64, ttl time.Duration) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("auth: token subject required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("auth: token ttl must be positive")
	}
	now := s.now()
	expiresAt := jwt.NewNumericDate(expiryAfter(now, ttl))
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks signature and expiry and returns the subject user ID.
func (s *TokenService) Verify(raw string) (int64, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// expiryAfter returns now+ttl rounded up to the claim precision, so truncation
// never moves the expiry to or before the issue instant.
func expiryAfter(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if truncated := exp.Truncate(jwt.TimePrecision); truncated.Before(exp) {
		return truncated.Add(jwt.TimePrecision)
	}
	return exp
}
