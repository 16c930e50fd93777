package security

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
//
// bcrypt is CPU-bound; at most GOMAXPROCS hashes run at once so a burst of
// logins queues on the semaphore instead of starving other request goroutines.
type Hasher struct {
	Cost int
	sem  *semaphore.Weighted
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login.
func NewHasher(cost int) *Hasher {
	return NewHasherWithLimit(cost, runtime.GOMAXPROCS(0))
}

// NewHasherWithLimit is NewHasher with an explicit cap on concurrent bcrypt operations.
func NewHasherWithLimit(cost, limit int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if limit < 1 {
		limit = 1
	}
	return &Hasher{Cost: cost, sem: semaphore.NewWeighted(int64(limit))}
}

// Hash produces a bcrypt hash of password. Do not pass an empty password.
// Returns the hash as a string suitable for storage, or ctx.Err() if the
// context is done before a hashing slot frees up.
func (h *Hasher) Hash(ctx context.Context, password []byte) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash using constant-time
// comparison. Returns nil if they match; returns an error (including
// bcrypt.ErrMismatchedHashAndPassword) if they do not or on invalid hash.
func (h *Hasher) Compare(ctx context.Context, hash string, password []byte) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.sem.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
