package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when a token cannot be parsed, fails signature or
	// time validation, or lacks the requested claim.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned by Claims when the token is well-formed but past exp.
	ErrExpiredToken = errors.New("token expired")
)

// Registered claim names set by Issue. Extra claims with these names are overwritten.
const (
	ClaimSubject   = "sub"
	ClaimIssuer    = "iss"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimID        = "jti"
)

// Application claims added by the auth service.
const (
	ClaimRoles  = "roles"
	ClaimUserID = "uid"
)

// TokenIssuer issues and verifies HS256 access tokens. All fields are fixed at
// construction; a TokenIssuer is safe for concurrent use.
type TokenIssuer struct {
	secret    []byte
	issuer    string
	accessTTL time.Duration
	leeway    time.Duration
	nowF      func() time.Time
}

// NewTokenIssuer returns a TokenIssuer signing with secret. The secret is copied.
// leeway is the tolerance applied to exp and iat checks; zero means strict comparison.
func NewTokenIssuer(secret []byte, issuer string, accessTTL, leeway time.Duration) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidSecret
	}
	if accessTTL <= 0 {
		return nil, errors.New("security: access TTL must be positive")
	}
	if leeway < 0 {
		leeway = 0
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &TokenIssuer{
		secret:    s,
		issuer:    issuer,
		accessTTL: accessTTL,
		leeway:    leeway,
		nowF:      time.Now,
	}, nil
}

// WithClock returns a copy of t that reads time from now. Used by tests.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	c := *t
	c.nowF = now
	return &c
}

// AccessTTL returns the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

func (t *TokenIssuer) now() time.Time {
	return t.nowF()
}

// Issue signs an access token for subject. Extra claims are merged first so the
// registered claims (sub, iss, iat, exp, jti) always win. Timestamps are whole seconds.
func (t *TokenIssuer) Issue(subject string, extra map[string]any) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("security: subject is required")
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Unix(t.now().Unix(), 0).UTC()
	expiresAt := now.Add(t.accessTTL)

	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims[ClaimSubject] = subject
	claims[ClaimIssuer] = t.issuer
	claims[ClaimIssuedAt] = now.Unix()
	claims[ClaimExpiresAt] = expiresAt.Unix()
	claims[ClaimID] = jti

	token, err := t.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (t *TokenIssuer) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Claims parses and validates tokenString (HS256 signature, iss, exp, iat) and returns its claims.
// Returns ErrExpiredToken for an otherwise valid token past exp, ErrMalformedToken for everything else.
func (t *TokenIssuer) Claims(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(t.leeway),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// Verify reports whether tokenString is validly signed, unexpired, and issued for expectedSubject.
func (t *TokenIssuer) Verify(tokenString, expectedSubject string) bool {
	claims, err := t.Claims(tokenString)
	if err != nil {
		return false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return false
	}
	return sub == expectedSubject
}

// ExtractClaim returns the named claim from a valid token. Any validation failure,
// including expiry, and a missing claim both yield ErrMalformedToken.
func (t *TokenIssuer) ExtractClaim(tokenString, name string) (any, error) {
	claims, err := t.Claims(tokenString)
	if err != nil {
		return nil, ErrMalformedToken
	}
	v, ok := claims[name]
	if !ok || v == nil {
		return nil, ErrMalformedToken
	}
	return v, nil
}

// Subject returns the sub claim of a valid token.
func (t *TokenIssuer) Subject(tokenString string) (string, error) {
	v, err := t.ExtractClaim(tokenString, ClaimSubject)
	if err != nil {
		return "", err
	}
	sub, ok := v.(string)
	if !ok || sub == "" {
		return "", ErrMalformedToken
	}
	return sub, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
