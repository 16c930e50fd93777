package security

import "time"

// testSecret is a fixed HS256 secret for unit tests only. Do not use in production.
const testSecret = "test-secret-0123456789abcdef-0123456789"

// NewTestTokenIssuer returns a TokenIssuer using the embedded test secret, issuer
// "test-issuer", a 15 minute access TTL and no leeway.
// For unit tests only. Callers must not use in production.
func NewTestTokenIssuer() *TokenIssuer {
	t, err := NewTokenIssuer([]byte(testSecret), "test-issuer", 15*time.Minute, 0)
	if err != nil {
		panic(err)
	}
	return t
}
