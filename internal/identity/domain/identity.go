package domain

import "time"

// Identity is a user account as held by the credential store. The auth core reads it
// and never mutates it.
type Identity struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Roles        []string
	MFAEnabled   bool
	MFASecret    string // base32 TOTP secret; empty if not enrolled
	CreatedAt    time.Time
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Default role assigned when an identity has none.
const RoleUser = "USER"
