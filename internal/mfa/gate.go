// Package mfa decides whether a login needs a second factor and verifies TOTP codes.
package mfa

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"courier-auth/backend/internal/identity/domain"
)

// ErrInvalidMFACode is returned when a code does not verify, or the identity has no usable enrolment.
var ErrInvalidMFACode = errors.New("invalid MFA code")

// TOTP parameters (RFC 6238 defaults understood by common authenticator apps).
const (
	Period      = 30
	Digits      = otp.DigitsSix
	Algorithm   = otp.AlgorithmSHA1
	DefaultSkew = 1
)

// Decision is the outcome of evaluating a password-verified login.
type Decision int

const (
	// DecisionNotRequired means tokens may be issued immediately.
	DecisionNotRequired Decision = iota
	// DecisionPending means the caller must complete a TOTP verification first.
	DecisionPending
)

func (d Decision) String() string {
	switch d {
	case DecisionNotRequired:
		return "MFA_NOT_REQUIRED"
	case DecisionPending:
		return "MFA_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// Gate holds no per-login state; a challenge is re-derived from the identity on every attempt.
type Gate struct {
	skew uint
	nowF func() time.Time
}

// NewGate returns a Gate accepting codes up to skew periods either side of now.
func NewGate(skew uint) *Gate {
	return &Gate{skew: skew, nowF: time.Now}
}

// WithClock returns a copy of g that reads time from now.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	c := *g
	c.nowF = now
	return &c
}

// Evaluate returns DecisionPending when the identity has MFA enabled.
func (g *Gate) Evaluate(i *domain.Identity) Decision {
	if i != nil && i.MFAEnabled {
		return DecisionPending
	}
	return DecisionNotRequired
}

// Verify checks code against the identity's enrolled TOTP secret.
// Returns ErrInvalidMFACode when MFA is disabled, no secret is enrolled, or the code does not match.
func (g *Gate) Verify(i *domain.Identity, code string) error {
	if i == nil || !i.MFAEnabled || i.MFASecret == "" {
		return ErrInvalidMFACode
	}
	code = strings.TrimSpace(code)
	if len(code) != Digits.Length() {
		return ErrInvalidMFACode
	}
	ok, err := totp.ValidateCustom(code, i.MFASecret, g.nowF().UTC(), g.opts())
	if err != nil || !ok {
		return ErrInvalidMFACode
	}
	return nil
}

func (g *Gate) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      g.skew,
		Digits:    Digits,
		Algorithm: Algorithm,
	}
}
