// Package service implements credential verification and the login, MFA, refresh,
// logout and forgot-password flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"courier-auth/backend/internal/audit"
	"courier-auth/backend/internal/identity/domain"
	"courier-auth/backend/internal/mfa"
	"courier-auth/backend/internal/refreshtoken"
	"courier-auth/backend/internal/security"
	"courier-auth/backend/internal/server/interceptors"
	"courier-auth/backend/internal/telemetry"
	telemetryotel "courier-auth/backend/internal/telemetry/otel"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// MFARequiredMessage is returned with a pending MFA login.
const MFARequiredMessage = "MFA code required"

// Operation names used in metrics.
const (
	opLogin          = "login"
	opVerifyMFA      = "verify_mfa"
	opRefresh        = "refresh"
	opLogout         = "logout"
	opForgotPassword = "forgot_password"
)

// TokenPair is an access token and the refresh token that accompanies it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// LoginResult is either Tokens, or MFARequired with Message when a second factor is pending.
type LoginResult struct {
	Tokens      *TokenPair
	MFARequired bool
	Message     string
}

// Deps holds the collaborators of AuthService. Audit, Events, Metrics and Log are optional.
type Deps struct {
	Identities IdentityRepo
	Verifier   *CredentialVerifier
	Gate       *mfa.Gate
	Tokens     *security.TokenIssuer
	Refresh    *refreshtoken.Store
	Audit      audit.AuditLogger
	Events     telemetry.EventEmitter
	Metrics    *telemetryotel.AuthMetrics
	Log        *zap.Logger
}

// AuthService orchestrates the auth flows. It holds no per-request state and is safe for concurrent use.
type AuthService struct {
	identities IdentityRepo
	verifier   *CredentialVerifier
	gate       *mfa.Gate
	tokens     *security.TokenIssuer
	refresh    *refreshtoken.Store
	audit      audit.AuditLogger
	events     telemetry.EventEmitter
	metrics    *telemetryotel.AuthMetrics
	log        *zap.Logger
}

// NewAuthService returns an AuthService. Identities, Verifier, Gate, Tokens and Refresh are required.
func NewAuthService(d Deps) (*AuthService, error) {
	if d.Identities == nil || d.Verifier == nil || d.Gate == nil || d.Tokens == nil || d.Refresh == nil {
		return nil, errors.New("identity: auth service is missing a required dependency")
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		identities: d.Identities,
		verifier:   d.Verifier,
		gate:       d.Gate,
		tokens:     d.Tokens,
		refresh:    d.Refresh,
		audit:      d.Audit,
		events:     d.Events,
		metrics:    d.Metrics,
		log:        log.Named("auth"),
	}, nil
}

// Login verifies credentials. When the identity has MFA enabled it returns MFARequired and no tokens;
// otherwise it issues an access token and a new refresh token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	ident, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.auditEvent(ctx, "", audit.ActionLoginFailure, audit.ResourceAuth, map[string]string{"username": username})
			s.metrics.Attempt(ctx, opLogin, telemetryotel.OutcomeFailure)
		}
		return nil, err
	}

	if s.gate.Evaluate(ident) == mfa.DecisionPending {
		s.auditEvent(ctx, ident.ID, audit.ActionMFAChallenge, audit.ResourceAuth, nil)
		s.emit(ctx, telemetry.NewEvent(telemetry.EventMFARequired, ident.ID, ident.Username))
		s.metrics.Attempt(ctx, opLogin, telemetryotel.OutcomeMFARequired)
		return &LoginResult{MFARequired: true, Message: MFARequiredMessage}, nil
	}

	pair, err := s.issue(ctx, ident, opLogin)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, ident.ID, audit.ActionLoginSuccess, audit.ResourceAuth, nil)
	s.emit(ctx, telemetry.NewEvent(telemetry.EventLoginSucceeded, ident.ID, ident.Username))
	s.metrics.Attempt(ctx, opLogin, telemetryotel.OutcomeSuccess)
	return &LoginResult{Tokens: pair}, nil
}

// VerifyMFA checks a TOTP code for the identity with email and issues tokens on success.
// An unknown email returns mfa.ErrInvalidMFACode, the same as a wrong code.
func (s *AuthService) VerifyMFA(ctx context.Context, email, code string) (*TokenPair, error) {
	email = strings.TrimSpace(email)
	var ident *domain.Identity
	if email != "" {
		var err error
		ident, err = s.identities.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("identity: lookup by email: %w", err)
		}
	}
	if ident == nil {
		s.auditEvent(ctx, "", audit.ActionMFAFailure, audit.ResourceAuth, nil)
		s.metrics.Attempt(ctx, opVerifyMFA, telemetryotel.OutcomeFailure)
		return nil, mfa.ErrInvalidMFACode
	}
	if err := s.gate.Verify(ident, code); err != nil {
		s.auditEvent(ctx, ident.ID, audit.ActionMFAFailure, audit.ResourceAuth, nil)
		s.metrics.Attempt(ctx, opVerifyMFA, telemetryotel.OutcomeFailure)
		return nil, err
	}

	pair, err := s.issue(ctx, ident, opVerifyMFA)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, ident.ID, audit.ActionMFASuccess, audit.ResourceAuth, nil)
	s.emit(ctx, telemetry.NewEvent(telemetry.EventMFAVerified, ident.ID, ident.Username))
	s.metrics.Attempt(ctx, opVerifyMFA, telemetryotel.OutcomeSuccess)
	return pair, nil
}

// Refresh issues a new access token for a valid refresh token. The refresh token is returned
// unchanged. Unknown and revoked tokens return refreshtoken.ErrTokenNotFound; expired tokens
// are deleted and return refreshtoken.ErrTokenExpired.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	t, err := s.refresh.FindByValue(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh: lookup: %w", err)
	}
	if t == nil || t.Revoked {
		s.metrics.Attempt(ctx, opRefresh, telemetryotel.OutcomeFailure)
		return nil, refreshtoken.ErrTokenNotFound
	}
	if t, err = s.refresh.VerifyExpiration(ctx, t); err != nil {
		s.metrics.Attempt(ctx, opRefresh, telemetryotel.OutcomeFailure)
		return nil, err
	}

	ident, err := s.identities.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("identity: lookup by id: %w", err)
	}
	if ident == nil {
		s.metrics.Attempt(ctx, opRefresh, telemetryotel.OutcomeFailure)
		return nil, refreshtoken.ErrTokenNotFound
	}

	access, expiresAt, err := s.tokens.Issue(ident.Username, accessClaims(ident))
	if err != nil {
		return nil, err
	}
	s.metrics.TokenIssued(ctx, opRefresh)
	s.auditEvent(ctx, ident.ID, audit.ActionTokenRefresh, audit.ResourceRefreshToken, nil)
	s.emit(ctx, telemetry.NewEvent(telemetry.EventTokenRefreshed, ident.ID, ident.Username))
	s.metrics.Attempt(ctx, opRefresh, telemetryotel.OutcomeSuccess)
	return &TokenPair{AccessToken: access, RefreshToken: refreshToken, ExpiresAt: expiresAt}, nil
}

// Logout revokes refreshToken. Unknown, empty and already revoked tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	t, err := s.refresh.FindByValue(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("logout: lookup: %w", err)
	}
	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("logout: revoke: %w", err)
	}
	s.metrics.Attempt(ctx, opLogout, telemetryotel.OutcomeSuccess)
	if t == nil || t.Revoked {
		return nil
	}
	s.metrics.TokenRevoked(ctx)
	s.auditEvent(ctx, t.UserID, audit.ActionLogout, audit.ResourceRefreshToken, nil)
	s.emit(ctx, telemetry.NewEvent(telemetry.EventLoggedOut, t.UserID, ""))
	return nil
}

// ForgotPassword records a reset request when email belongs to an identity. Callers get the
// same outcome whether or not it does; only storage failures return an error.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	ident, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("identity: lookup by email: %w", err)
	}
	if ident == nil {
		s.metrics.Attempt(ctx, opForgotPassword, telemetryotel.OutcomeFailure)
		return nil
	}
	s.auditEvent(ctx, ident.ID, audit.ActionPasswordResetRequested, audit.ResourcePassword, nil)
	ev := telemetry.NewEvent(telemetry.EventPasswordResetRequested, ident.ID, ident.Username)
	ev.Email = ident.Email
	s.emit(ctx, ev)
	s.metrics.Attempt(ctx, opForgotPassword, telemetryotel.OutcomeSuccess)
	return nil
}

// Me returns the identity named by the subject of a verified access token.
func (s *AuthService) Me(ctx context.Context, username string) (*domain.Identity, error) {
	ident, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("identity: lookup: %w", err)
	}
	if ident == nil {
		return nil, ErrUserNotFound
	}
	return ident, nil
}

func (s *AuthService) issue(ctx context.Context, ident *domain.Identity, op string) (*TokenPair, error) {
	access, expiresAt, err := s.tokens.Issue(ident.Username, accessClaims(ident))
	if err != nil {
		return nil, err
	}
	rt, err := s.refresh.Create(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh: create: %w", err)
	}
	s.metrics.TokenIssued(ctx, op)
	return &TokenPair{AccessToken: access, RefreshToken: rt.Value, ExpiresAt: expiresAt}, nil
}

// accessClaims always includes USER in roles; any other roles are carried as stored.
func accessClaims(ident *domain.Identity) map[string]any {
	roles := append([]string(nil), ident.Roles...)
	if !ident.HasRole(domain.RoleUser) {
		roles = append(roles, domain.RoleUser)
	}
	return map[string]any{
		security.ClaimRoles:  roles,
		security.ClaimUserID: ident.ID,
	}
}

func (s *AuthService) auditEvent(ctx context.Context, userID, action, resource string, meta map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, userID, action, resource, audit.Metadata(meta))
}

// emit stamps the client IP and sends ev. Failures are logged, never returned.
func (s *AuthService) emit(ctx context.Context, ev *telemetry.Event) {
	if s.events == nil {
		return
	}
	ev.IP = interceptors.ClientIP(ctx)
	if err := s.events.Emit(ctx, ev); err != nil {
		s.log.Warn("event emit failed", zap.String("event_type", ev.Type), zap.Error(err))
	}
}
