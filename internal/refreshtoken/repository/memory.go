package repository

import (
	"context"
	"sync"

	"courier-auth/backend/internal/refreshtoken/domain"
)

// MemoryRepository is an in-memory Repository. Tokens are lost on restart.
type MemoryRepository struct {
	mu     sync.RWMutex
	tokens map[string]domain.RefreshToken
}

// NewMemoryRepository returns an empty in-memory refresh token repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]domain.RefreshToken)}
}

func (r *MemoryRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	c := *t
	c.Value = ""
	r.mu.Lock()
	r.tokens[t.TokenHash] = c
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	r.mu.RLock()
	t, ok := r.tokens[hash]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *MemoryRepository) RevokeByHash(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[hash]; ok {
		t.Revoked = true
		r.tokens[hash] = t
	}
	return nil
}

func (r *MemoryRepository) DeleteByHash(ctx context.Context, hash string) error {
	r.mu.Lock()
	delete(r.tokens, hash)
	r.mu.Unlock()
	return nil
}

// Len returns the number of stored tokens.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
