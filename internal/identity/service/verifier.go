package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"courier-auth/backend/internal/identity/domain"
	"courier-auth/backend/internal/security"
)

// dummyPassword is hashed once per verifier; unknown usernames are compared against it.
const dummyPassword = "courier-auth-unknown-user"

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// CredentialVerifier checks a username/password pair against the identity repository.
type CredentialVerifier struct {
	repo      IdentityRepo
	hasher    *security.Hasher
	dummyHash string
}

// NewCredentialVerifier returns a verifier. It hashes a dummy password up front so that
// unknown usernames cost one bcrypt comparison, the same as a wrong password.
func NewCredentialVerifier(ctx context.Context, repo IdentityRepo, hasher *security.Hasher) (*CredentialVerifier, error) {
	if repo == nil || hasher == nil {
		return nil, errors.New("identity: verifier requires repo and hasher")
	}
	dummy, err := hasher.Hash(ctx, []byte(dummyPassword))
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	return &CredentialVerifier{repo: repo, hasher: hasher, dummyHash: dummy}, nil
}

// Verify returns the identity for username when password matches its stored hash.
// Unknown username and wrong password both return ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, username, password string) (*domain.Identity, error) {
	var ident *domain.Identity
	if username != "" {
		var err error
		ident, err = v.repo.GetByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("identity: lookup: %w", err)
		}
	}
	hash := v.dummyHash
	if ident != nil && ident.PasswordHash != "" {
		hash = ident.PasswordHash
	}
	err := v.hasher.Compare(ctx, hash, []byte(password))
	switch {
	case err == nil && ident != nil && ident.PasswordHash != "":
		return ident, nil
	case err == nil, errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, ErrInvalidCredentials
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		// A corrupt stored hash is treated as a failed login.
		return nil, ErrInvalidCredentials
	}
}
