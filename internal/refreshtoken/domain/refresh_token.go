package domain

import "time"

// RefreshToken is an opaque, long-lived credential exchanged for new access tokens.
// Backends persist TokenHash; Value is only known to the caller that created or
// presented the token.
type RefreshToken struct {
	Value     string
	TokenHash string // hex SHA-256 of Value
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
