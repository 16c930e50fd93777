package mfa

import (
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// Enrollment is a freshly generated TOTP secret and its otpauth:// provisioning URL.
type Enrollment struct {
	Secret string // base32
	URL    string
}

// Enroll generates a new TOTP secret for accountName, labelled with issuer in authenticator apps.
func Enroll(issuer, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      Period,
		Digits:      Digits,
		Algorithm:   Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: generate TOTP key: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// GenerateCode returns the code for secret at t. Used by the seed command and tests.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    Period,
		Digits:    Digits,
		Algorithm: Algorithm,
	})
}
