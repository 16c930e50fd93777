// Package refreshtoken manages the lifecycle of opaque refresh tokens: creation,
// lookup by value, expiry with delete-on-read, and terminal revocation.
//
// A user may hold any number of live refresh tokens; Create never revokes earlier ones.
package refreshtoken

import (
	"context"
	"errors"
	"time"

	"courier-auth/backend/internal/refreshtoken/domain"
	"courier-auth/backend/internal/refreshtoken/repository"
	"courier-auth/backend/internal/security"
)

var (
	// ErrTokenExpired is returned by VerifyExpiration after the expired token has been deleted.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenNotFound is returned when a presented refresh token is unknown or revoked.
	ErrTokenNotFound = errors.New("refresh token not found")
)

// DefaultTTL is the refresh token lifetime used when NewStore is given a non-positive TTL.
const DefaultTTL = 7 * 24 * time.Hour

// Store wraps a Repository with token generation, hashing and expiry rules.
type Store struct {
	repo repository.Repository
	ttl  time.Duration
	nowF func() time.Time
}

// NewStore returns a Store persisting to repo with the given token lifetime.
func NewStore(repo repository.Repository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, ttl: ttl, nowF: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.nowF = now
	return &c
}

// TTL returns the configured refresh token lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) now() time.Time {
	return time.Unix(s.nowF().Unix(), 0).UTC()
}

// Create generates and persists a new refresh token for userID expiring after the store TTL.
func (s *Store) Create(ctx context.Context, userID string) (*domain.RefreshToken, error) {
	if userID == "" {
		return nil, errors.New("refreshtoken: user id is required")
	}
	value, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	t := &domain.RefreshToken{
		Value:     value,
		TokenHash: security.HashRefreshToken(value),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// FindByValue returns the token for value, or nil if not found. Revoked tokens are
// returned as stored; callers decide how to treat them.
func (s *Store) FindByValue(ctx context.Context, value string) (*domain.RefreshToken, error) {
	if value == "" {
		return nil, nil
	}
	t, err := s.repo.GetByHash(ctx, security.HashRefreshToken(value))
	if err != nil || t == nil {
		return nil, err
	}
	if !security.RefreshTokenHashEqual(value, t.TokenHash) {
		return nil, nil
	}
	t.Value = value
	return t, nil
}

// VerifyExpiration returns t unchanged if it has not expired. Otherwise it deletes the
// token and returns ErrTokenExpired.
func (s *Store) VerifyExpiration(ctx context.Context, t *domain.RefreshToken) (*domain.RefreshToken, error) {
	if t == nil {
		return nil, ErrTokenNotFound
	}
	if !t.Expired(s.now()) {
		return t, nil
	}
	hash := t.TokenHash
	if hash == "" {
		hash = security.HashRefreshToken(t.Value)
	}
	if err := s.repo.DeleteByHash(ctx, hash); err != nil {
		return nil, err
	}
	return nil, ErrTokenExpired
}

// Revoke marks the token for value revoked. Revoking an unknown or already revoked
// token is a no-op.
func (s *Store) Revoke(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	return s.repo.RevokeByHash(ctx, security.HashRefreshToken(value))
}
