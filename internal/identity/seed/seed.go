// Package seed creates the demo identities used in development.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"courier-auth/backend/internal/identity/domain"
	"courier-auth/backend/internal/identity/repository"
	"courier-auth/backend/internal/mfa"
	"courier-auth/backend/internal/security"
)

// DemoPassword is the password of every demo identity.
const DemoPassword = "correctpw"

// Creator is the part of the identity repository seeding needs.
type Creator interface {
	Create(ctx context.Context, i *domain.Identity) error
}

// Result describes one demo identity after seeding.
type Result struct {
	Username string
	Email    string
	Created  bool
	// EnrollURL is the otpauth:// URL for MFA identities created in this run.
	EnrollURL string
}

type demoUser struct {
	username string
	email    string
	mfa      bool
}

var demoUsers = []demoUser{
	{username: "alice", email: "alice@example.com"},
	{username: "bob", email: "bob@example.com", mfa: true},
}

// DemoUsers creates alice (no MFA) and bob (TOTP enrolled). Identities that already exist
// are left untouched, so it is safe to run repeatedly.
func DemoUsers(ctx context.Context, repo Creator, hasher *security.Hasher, mfaIssuer string) ([]Result, error) {
	hash, err := hasher.Hash(ctx, []byte(DemoPassword))
	if err != nil {
		return nil, fmt.Errorf("seed: hash password: %w", err)
	}

	out := make([]Result, 0, len(demoUsers))
	for _, u := range demoUsers {
		ident := &domain.Identity{
			ID:           uuid.NewString(),
			Username:     u.username,
			Email:        u.email,
			PasswordHash: hash,
			Roles:        []string{domain.RoleUser},
		}
		res := Result{Username: u.username, Email: u.email}
		if u.mfa {
			enr, err := mfa.Enroll(mfaIssuer, u.email)
			if err != nil {
				return nil, err
			}
			ident.MFAEnabled = true
			ident.MFASecret = enr.Secret
			res.EnrollURL = enr.URL
		}

		err := repo.Create(ctx, ident)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			res.EnrollURL = ""
		case err != nil:
			return nil, fmt.Errorf("seed: create %s: %w", u.username, err)
		default:
			res.Created = true
		}
		out = append(out, res)
	}
	return out, nil
}
