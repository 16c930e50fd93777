package repository

import (
	"context"
	"errors"

	"courier-auth/backend/internal/identity/domain"
)

// ErrDuplicate is returned by Create when the username or email is already taken.
var ErrDuplicate = errors.New("identity already exists")

// Repository defines persistence for identities. Lookups return (nil, nil) when
// nothing matches; errors are reserved for storage failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
}
