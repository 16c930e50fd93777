package repository

import (
	"context"
	"testing"
)

func TestMemoryRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	if err := r.Create(ctx, sampleToken("h1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := r.GetByHash(ctx, "h1")
	if err != nil || got == nil {
		t.Fatalf("GetByHash: %v, %v", got, err)
	}
	if got.Value != "" {
		t.Error("raw value must not be stored")
	}

	got.Revoked = true
	again, _ := r.GetByHash(ctx, "h1")
	if again.Revoked {
		t.Error("mutating a returned token must not change stored state")
	}

	if err := r.RevokeByHash(ctx, "h1"); err != nil {
		t.Fatalf("RevokeByHash: %v", err)
	}
	again, _ = r.GetByHash(ctx, "h1")
	if !again.Revoked {
		t.Error("token should be revoked")
	}
	if err := r.RevokeByHash(ctx, "missing"); err != nil {
		t.Errorf("RevokeByHash missing: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1 (revoking unknown must not insert)", r.Len())
	}

	if err := r.DeleteByHash(ctx, "h1"); err != nil {
		t.Fatalf("DeleteByHash: %v", err)
	}
	if got, _ := r.GetByHash(ctx, "h1"); got != nil {
		t.Error("deleted token should be gone")
	}
}
