package security

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"
)

// MinSecretLength is the minimum HMAC secret size in bytes (256 bits for HS256).
const MinSecretLength = 32

// ErrInvalidSecret is returned when the signing secret is missing or too short.
var ErrInvalidSecret = errors.New("invalid signing secret")

// LoadSecret resolves the JWT signing secret from configuration.
// s may be "file:<path>" (file contents, trimmed), "base64:<value>" (std or raw std encoding),
// or the literal secret. The decoded secret must be at least MinSecretLength bytes.
func LoadSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidSecret
	}
	var secret []byte
	switch {
	case strings.HasPrefix(s, "file:"):
		b, err := os.ReadFile(strings.TrimPrefix(s, "file:"))
		if err != nil {
			return nil, err
		}
		secret = []byte(strings.TrimSpace(string(b)))
	case strings.HasPrefix(s, "base64:"):
		enc := strings.TrimPrefix(s, "base64:")
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			b, err = base64.RawStdEncoding.DecodeString(enc)
			if err != nil {
				return nil, ErrInvalidSecret
			}
		}
		secret = b
	default:
		secret = []byte(s)
	}
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidSecret
	}
	return secret, nil
}
