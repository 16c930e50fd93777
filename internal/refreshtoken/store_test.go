package refreshtoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"courier-auth/backend/internal/refreshtoken/domain"
	"courier-auth/backend/internal/refreshtoken/repository"
	"courier-auth/backend/internal/security"
)

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

func newTestStore() (*Store, *repository.MemoryRepository, *fakeClock) {
	repo := repository.NewMemoryRepository()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(repo, 0).WithClock(clock.Now), repo, clock
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	s, repo, clock := newTestStore()

	tok, err := s.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tok.Value == "" {
		t.Fatal("Value empty")
	}
	if tok.TokenHash != security.HashRefreshToken(tok.Value) {
		t.Error("TokenHash is not the SHA-256 of Value")
	}
	if want := clock.Now().Add(7 * 24 * time.Hour); !tok.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt, want)
	}
	if tok.Revoked {
		t.Error("new token should not be revoked")
	}
	stored, _ := repo.GetByHash(ctx, tok.TokenHash)
	if stored == nil {
		t.Fatal("token not persisted under its hash")
	}
	if stored.Value != "" {
		t.Error("repository must not hold the raw token value")
	}
}

func TestStore_CreateRequiresUser(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.Create(context.Background(), ""); err == nil {
		t.Error("Create with empty user id should fail")
	}
}

func TestStore_CreateKeepsEarlierTokens(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newTestStore()
	a, _ := s.Create(ctx, "u1")
	b, _ := s.Create(ctx, "u1")
	if a.Value == b.Value {
		t.Fatal("tokens should be unique")
	}
	if repo.Len() != 2 {
		t.Errorf("stored tokens = %d, want 2", repo.Len())
	}
	for _, v := range []string{a.Value, b.Value} {
		got, _ := s.FindByValue(ctx, v)
		if got == nil || got.Revoked {
			t.Errorf("token %q should still be live", v)
		}
	}
}

func TestStore_FindByValue(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore()
	tok, _ := s.Create(ctx, "u1")

	got, err := s.FindByValue(ctx, tok.Value)
	if err != nil {
		t.Fatalf("FindByValue: %v", err)
	}
	if got == nil || got.UserID != "u1" || got.Value != tok.Value {
		t.Errorf("FindByValue = %+v", got)
	}
	for _, v := range []string{"", "unknown", tok.TokenHash} {
		got, err := s.FindByValue(ctx, v)
		if got != nil || err != nil {
			t.Errorf("FindByValue(%q) = %v, %v; want nil, nil", v, got, err)
		}
	}
}

func TestStore_VerifyExpirationLifecycle(t *testing.T) {
	ctx := context.Background()
	s, repo, clock := newTestStore()
	tok, _ := s.Create(ctx, "u1")

	got, err := s.VerifyExpiration(ctx, tok)
	if err != nil || got != tok {
		t.Fatalf("VerifyExpiration fresh = %v, %v", got, err)
	}

	clock.Advance(7 * 24 * time.Hour)
	if _, err := s.VerifyExpiration(ctx, tok); err != nil {
		t.Fatalf("VerifyExpiration at exactly expiresAt should pass: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := s.VerifyExpiration(ctx, tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("VerifyExpiration after expiry: want ErrTokenExpired, got %v", err)
	}
	if repo.Len() != 0 {
		t.Error("expired token should be deleted")
	}
	if found, _ := s.FindByValue(ctx, tok.Value); found != nil {
		t.Error("expired token should be unfindable")
	}
}

func TestStore_VerifyExpirationNil(t *testing.T) {
	s, _, _ := newTestStore()
	if _, err := s.VerifyExpiration(context.Background(), nil); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("VerifyExpiration(nil): want ErrTokenNotFound, got %v", err)
	}
}

func TestStore_RevokeIsTerminalAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore()
	tok, _ := s.Create(ctx, "u1")

	for i := 0; i < 2; i++ {
		if err := s.Revoke(ctx, tok.Value); err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
	}
	got, _ := s.FindByValue(ctx, tok.Value)
	if got == nil || !got.Revoked {
		t.Fatalf("token should be revoked, got %+v", got)
	}
	if err := s.Revoke(ctx, "never-issued"); err != nil {
		t.Errorf("Revoke unknown should be a no-op, got %v", err)
	}
	if err := s.Revoke(ctx, ""); err != nil {
		t.Errorf("Revoke empty should be a no-op, got %v", err)
	}
}

func TestStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s, repo, _ := newTestStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.Create(ctx, "u1")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			_ = s.Revoke(ctx, tok.Value)
		}()
	}
	wg.Wait()
	if repo.Len() != 50 {
		t.Errorf("stored tokens = %d, want 50", repo.Len())
	}
}

// hashMismatchRepo returns the stored token under any hash, as a backend with a
// colliding or corrupted index would.
type hashMismatchRepo struct {
	*repository.MemoryRepository
	stored *domain.RefreshToken
}

func (r hashMismatchRepo) GetByHash(context.Context, string) (*domain.RefreshToken, error) {
	cp := *r.stored
	return &cp, nil
}

func TestStore_FindByValue_RejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore()
	tok, err := s.Create(ctx, "u1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s = NewStore(hashMismatchRepo{MemoryRepository: repository.NewMemoryRepository(), stored: tok}, 0).WithClock(clock.Now)

	got, err := s.FindByValue(ctx, tok.Value)
	if err != nil || got == nil {
		t.Fatalf("FindByValue(own value) = %v, %v", got, err)
	}
	got, err = s.FindByValue(ctx, tok.Value+"x")
	if err != nil {
		t.Fatalf("FindByValue: %v", err)
	}
	if got != nil {
		t.Error("token whose stored hash does not match the presented value must not be returned")
	}
}
