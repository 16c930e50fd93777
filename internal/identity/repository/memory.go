package repository

import (
	"context"
	"strings"
	"sync"

	"courier-auth/backend/internal/identity/domain"
)

// MemoryRepository is an in-memory Repository for development and tests.
// Returned identities are copies; callers cannot mutate stored state.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Identity
}

// NewMemoryRepository returns an empty in-memory identity repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Identity)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.byID {
		if i.Username == username {
			return clone(i), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, i := range r.byID {
		if i.Email != "" && strings.EqualFold(i.Email, email) {
			return clone(i), nil
		}
	}
	return nil, nil
}

// Create stores a copy of i. Returns ErrDuplicate if the ID, username or email is taken.
func (r *MemoryRepository) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[i.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.byID {
		if existing.Username == i.Username || (i.Email != "" && strings.EqualFold(existing.Email, i.Email)) {
			return ErrDuplicate
		}
	}
	r.byID[i.ID] = clone(i)
	return nil
}

func clone(i *domain.Identity) *domain.Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = append([]string(nil), i.Roles...)
	return &c
}
