package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"courier-auth/backend/internal/identity/domain"
	identityrepo "courier-auth/backend/internal/identity/repository"
	"courier-auth/backend/internal/mfa"
	"courier-auth/backend/internal/refreshtoken"
	refreshrepo "courier-auth/backend/internal/refreshtoken/repository"
	"courier-auth/backend/internal/security"
	"courier-auth/backend/internal/server/interceptors"
	"courier-auth/backend/internal/telemetry"
)

const bobSecret = "JBSWY3DPEHPK3PXP"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type auditEntry struct {
	userID, action, resource, metadata string
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (r *recordingAudit) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, auditEntry{userID, action, resource, metadata})
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.action)
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*telemetry.Event
	err    error
}

func (r *recordingEvents) Emit(ctx context.Context, ev *telemetry.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc     *AuthService
	clock   *fakeClock
	tokens  *security.TokenIssuer
	refresh *refreshrepo.MemoryRepository
	audit   *recordingAudit
	events  *recordingEvents
}

func newTestAuthService(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC)}
	hasher := security.NewHasher(bcrypt.MinCost)

	identities := identityrepo.NewMemoryRepository()
	for _, u := range []struct {
		id, username, email, password string
		mfaEnabled                    bool
		secret                        string
	}{
		{"u-alice", "alice", "alice@example.com", "password", false, ""},
		{"u-bob", "bob", "bob@example.com", "password", true, bobSecret},
	} {
		hash, err := hasher.Hash(ctx, []byte(u.password))
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		err = identities.Create(ctx, &domain.Identity{
			ID: u.id, Username: u.username, Email: u.email, PasswordHash: hash,
			Roles: []string{domain.RoleUser}, MFAEnabled: u.mfaEnabled, MFASecret: u.secret,
			CreatedAt: clock.Now(),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	verifier, err := NewCredentialVerifier(ctx, identities, hasher)
	if err != nil {
		t.Fatalf("NewCredentialVerifier: %v", err)
	}
	tokens := security.NewTestTokenIssuer().WithClock(clock.Now)
	refresh := refreshrepo.NewMemoryRepository()
	f := &fixture{
		clock:   clock,
		tokens:  tokens,
		refresh: refresh,
		audit:   &recordingAudit{},
		events:  &recordingEvents{},
	}
	f.svc, err = NewAuthService(Deps{
		Identities: identities,
		Verifier:   verifier,
		Gate:       mfa.NewGate(mfa.DefaultSkew).WithClock(clock.Now),
		Tokens:     tokens,
		Refresh:    refreshtoken.NewStore(refresh, refreshtoken.DefaultTTL).WithClock(clock.Now),
		Audit:      f.audit,
		Events:     f.events,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return f
}

func TestNewAuthService_RequiresDeps(t *testing.T) {
	if _, err := NewAuthService(Deps{}); err == nil {
		t.Fatal("NewAuthService with no deps should fail")
	}
}

func TestAuthService_LoginIssuesTokens(t *testing.T) {
	f := newTestAuthService(t)
	ctx := interceptors.WithClientIP(context.Background(), "10.1.1.1")

	res, err := f.svc.Login(ctx, "alice", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.MFARequired || res.Tokens == nil {
		t.Fatalf("Login result = %+v, want tokens", res)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("tokens should be non-empty")
	}
	if !f.tokens.Verify(res.Tokens.AccessToken, "alice") {
		t.Error("access token should verify for alice")
	}
	if !res.Tokens.ExpiresAt.Equal(f.clock.Now().Add(15 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", res.Tokens.ExpiresAt)
	}
	uid, err := f.tokens.ExtractClaim(res.Tokens.AccessToken, security.ClaimUserID)
	if err != nil || uid != "u-alice" {
		t.Errorf("uid claim = %v, %v", uid, err)
	}
	roles, err := f.tokens.ExtractClaim(res.Tokens.AccessToken, security.ClaimRoles)
	if err != nil {
		t.Fatalf("roles claim: %v", err)
	}
	if list, ok := roles.([]any); !ok || len(list) != 1 || list[0] != domain.RoleUser {
		t.Errorf("roles claim = %#v", roles)
	}
	if f.refresh.Len() != 1 {
		t.Errorf("refresh tokens stored = %d, want 1", f.refresh.Len())
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != "login_success" {
		t.Errorf("audit actions = %v", got)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != telemetry.EventLoginSucceeded {
		t.Fatalf("event types = %v", got)
	}
	if ip := f.events.events[0].IP; ip != "10.1.1.1" {
		t.Errorf("event IP = %q", ip)
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	for _, tc := range []struct{ name, username, password string }{
		{"wrong password", "alice", "wrong"},
		{"unknown user", "mallory", "password"},
		{"empty", "", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.Login(ctx, tc.username, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Login: want ErrInvalidCredentials, got %v", err)
			}
			if res != nil {
				t.Error("result should be nil on failure")
			}
		})
	}
	if f.refresh.Len() != 0 {
		t.Errorf("failed logins stored %d refresh tokens", f.refresh.Len())
	}
	for _, a := range f.audit.actions() {
		if a != "login_failure" {
			t.Errorf("unexpected audit action %q", a)
		}
	}
	if len(f.events.types()) != 0 {
		t.Errorf("failed logins emitted events: %v", f.events.types())
	}
}

func TestAuthService_LoginMFAWithholdsTokens(t *testing.T) {
	f := newTestAuthService(t)
	res, err := f.svc.Login(context.Background(), "bob", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.MFARequired || res.Tokens != nil {
		t.Fatalf("Login result = %+v, want MFA required without tokens", res)
	}
	if res.Message != MFARequiredMessage {
		t.Errorf("Message = %q", res.Message)
	}
	if f.refresh.Len() != 0 {
		t.Error("no refresh token should be stored before MFA")
	}
	if got := f.events.types(); len(got) != 1 || got[0] != telemetry.EventMFARequired {
		t.Errorf("event types = %v", got)
	}
}

func TestAuthService_LoginMFAWrongPassword(t *testing.T) {
	f := newTestAuthService(t)
	if _, err := f.svc.Login(context.Background(), "bob", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login: want ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_VerifyMFA(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	code, err := mfa.GenerateCode(bobSecret, f.clock.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	pair, err := f.svc.VerifyMFA(ctx, "bob@example.com", code)
	if err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	if !f.tokens.Verify(pair.AccessToken, "bob") {
		t.Error("access token should verify for bob")
	}
	if pair.RefreshToken == "" || f.refresh.Len() != 1 {
		t.Error("a refresh token should be issued")
	}
	if got := f.events.types(); len(got) != 1 || got[0] != telemetry.EventMFAVerified {
		t.Errorf("event types = %v", got)
	}
}

func TestAuthService_VerifyMFAFailures(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	validCode, _ := mfa.GenerateCode(bobSecret, f.clock.Now())
	for _, tc := range []struct{ name, email, code string }{
		{"wrong code", "bob@example.com", "000000"},
		{"legacy bypass code", "bob@example.com", "123456"},
		{"unknown email", "nobody@example.com", validCode},
		{"empty email", "", validCode},
		{"mfa disabled", "alice@example.com", validCode},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pair, err := f.svc.VerifyMFA(ctx, tc.email, tc.code)
			if !errors.Is(err, mfa.ErrInvalidMFACode) {
				t.Fatalf("VerifyMFA: want ErrInvalidMFACode, got %v", err)
			}
			if pair != nil {
				t.Error("no tokens on failure")
			}
		})
	}
	if f.refresh.Len() != 0 {
		t.Errorf("failed MFA stored %d refresh tokens", f.refresh.Len())
	}
}

func TestAuthService_RefreshKeepsRefreshToken(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	res, err := f.svc.Login(ctx, "alice", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.clock.Advance(time.Minute)

	pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.RefreshToken != res.Tokens.RefreshToken {
		t.Error("refresh should return the same refresh token")
	}
	if pair.AccessToken == res.Tokens.AccessToken {
		t.Error("refresh should issue a new access token")
	}
	if !f.tokens.Verify(pair.AccessToken, "alice") {
		t.Error("refreshed access token should verify")
	}
	if f.refresh.Len() != 1 {
		t.Errorf("refresh should not create tokens, have %d", f.refresh.Len())
	}
	if got := f.events.types(); got[len(got)-1] != telemetry.EventTokenRefreshed {
		t.Errorf("last event = %v", got)
	}
}

func TestAuthService_RefreshUnknown(t *testing.T) {
	f := newTestAuthService(t)
	for _, value := range []string{"", "not-a-token"} {
		if _, err := f.svc.Refresh(context.Background(), value); !errors.Is(err, refreshtoken.ErrTokenNotFound) {
			t.Errorf("Refresh(%q): want ErrTokenNotFound, got %v", value, err)
		}
	}
}

func TestAuthService_RefreshExpired(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	res, err := f.svc.Login(ctx, "alice", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	f.clock.Advance(refreshtoken.DefaultTTL)
	if _, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh at expiry instant: %v", err)
	}

	f.clock.Advance(time.Second)
	if _, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, refreshtoken.ErrTokenExpired) {
		t.Fatalf("Refresh after expiry: want ErrTokenExpired, got %v", err)
	}
	if f.refresh.Len() != 0 {
		t.Error("expired token should be deleted")
	}
	if _, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, refreshtoken.ErrTokenNotFound) {
		t.Errorf("Refresh after delete: want ErrTokenNotFound, got %v", err)
	}
}

func TestAuthService_LogoutRevokes(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	res, err := f.svc.Login(ctx, "alice", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := f.svc.Logout(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, refreshtoken.ErrTokenNotFound) {
		t.Fatalf("Refresh after logout: want ErrTokenNotFound, got %v", err)
	}
	if err := f.svc.Logout(ctx, res.Tokens.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken); !errors.Is(err, refreshtoken.ErrTokenNotFound) {
		t.Fatal("revocation must stay terminal")
	}

	logouts := 0
	for _, a := range f.audit.actions() {
		if a == "logout" {
			logouts++
		}
	}
	if logouts != 1 {
		t.Errorf("logout audited %d times, want 1", logouts)
	}
}

func TestAuthService_LogoutUnknownIsNoop(t *testing.T) {
	f := newTestAuthService(t)
	for _, value := range []string{"", "   ", "never-issued"} {
		if err := f.svc.Logout(context.Background(), value); err != nil {
			t.Errorf("Logout(%q): %v", value, err)
		}
	}
	if len(f.events.types()) != 0 {
		t.Errorf("no events expected, got %v", f.events.types())
	}
}

func TestAuthService_MultipleSessions(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()
	first, err := f.svc.Login(ctx, "alice", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := f.svc.Login(ctx, "alice", "password")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if first.Tokens.RefreshToken == second.Tokens.RefreshToken {
		t.Fatal("each login should get its own refresh token")
	}
	if err := f.svc.Logout(ctx, first.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Errorf("other session should survive logout: %v", err)
	}
}

func TestAuthService_ForgotPassword(t *testing.T) {
	f := newTestAuthService(t)
	ctx := context.Background()

	if err := f.svc.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword unknown: %v", err)
	}
	if len(f.events.types()) != 0 {
		t.Fatal("unknown email should not emit")
	}

	if err := f.svc.ForgotPassword(ctx, "ALICE@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != telemetry.EventPasswordResetRequested {
		t.Fatalf("event types = %v", got)
	}
	if ev := f.events.events[0]; ev.Email != "alice@example.com" || ev.UserID != "u-alice" {
		t.Errorf("event = %+v", ev)
	}
	if got := f.audit.actions(); len(got) != 1 || got[0] != "password_reset_requested" {
		t.Errorf("audit actions = %v", got)
	}
}

func TestAuthService_EventFailureDoesNotFailRequest(t *testing.T) {
	f := newTestAuthService(t)
	f.events.err = errors.New("broker down")
	if _, err := f.svc.Login(context.Background(), "alice", "password"); err != nil {
		t.Fatalf("Login should succeed when events fail: %v", err)
	}
}

func TestAuthService_Me(t *testing.T) {
	f := newTestAuthService(t)
	ident, err := f.svc.Me(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if ident.ID != "u-bob" {
		t.Errorf("ID = %q", ident.ID)
	}
	if _, err := f.svc.Me(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Me unknown: want ErrUserNotFound, got %v", err)
	}
}

func TestAccessClaims_Roles(t *testing.T) {
	testCases := []struct {
		name  string
		roles []string
		want  []string
	}{
		{"no roles", nil, []string{domain.RoleUser}},
		{"user only", []string{domain.RoleUser}, []string{domain.RoleUser}},
		{"admin only", []string{"ADMIN"}, []string{"ADMIN", domain.RoleUser}},
		{"admin and user", []string{domain.RoleUser, "ADMIN"}, []string{domain.RoleUser, "ADMIN"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ident := &domain.Identity{ID: "u-1", Username: "carol", Roles: tc.roles}
			claims := accessClaims(ident)

			got, ok := claims[security.ClaimRoles].([]string)
			if !ok || len(got) != len(tc.want) {
				t.Fatalf("roles = %#v, want %v", claims[security.ClaimRoles], tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("roles[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
			if claims[security.ClaimUserID] != "u-1" {
				t.Errorf("uid = %v, want u-1", claims[security.ClaimUserID])
			}
			if len(tc.roles) > 0 && &ident.Roles[0] == &got[0] {
				t.Error("claims must not alias the identity's role slice")
			}
		})
	}
}
