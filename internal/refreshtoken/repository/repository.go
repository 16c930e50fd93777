package repository

import (
	"context"

	"courier-auth/backend/internal/refreshtoken/domain"
)

// Repository defines persistence for refresh tokens keyed by the SHA-256 hash of their value.
// Every method is a single atomic operation against the backend.
type Repository interface {
	// Create persists t. t.TokenHash must be set; t.Value is never stored.
	Create(ctx context.Context, t *domain.RefreshToken) error
	// GetByHash returns the token for hash, or nil if not found.
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	// RevokeByHash marks the token revoked. Unknown hashes are a no-op.
	RevokeByHash(ctx context.Context, hash string) error
	// DeleteByHash removes the token. Unknown hashes are a no-op.
	DeleteByHash(ctx context.Context, hash string) error
}
