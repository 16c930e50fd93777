package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"courier-auth/backend/internal/refreshtoken/domain"
)

// DefaultRedisPrefix namespaces refresh token keys: <prefix>:<token hash>.
const DefaultRedisPrefix = "courier:rt"

// expiryGrace keeps a key around after expires_at so the store can still report
// the token as expired, rather than unknown, before Redis evicts it.
const expiryGrace = 24 * time.Hour

const (
	fieldUserID    = "user_id"
	fieldExpiresAt = "expires_at"
	fieldRevoked   = "revoked"
	fieldCreatedAt = "created_at"
)

// revokeScript flips the revoked flag only if the key exists, so revoking an unknown or
// evicted token never materialises a partial hash.
var revokeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "revoked", "1")
  return 1
end
return 0
`)

// RedisRepository stores each refresh token as a Redis hash with an absolute expiry.
type RedisRepository struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisRepository returns a refresh token repository backed by rdb. An empty prefix uses DefaultRedisPrefix.
func NewRedisRepository(rdb redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) key(hash string) string {
	return r.prefix + ":" + hash
}

// Create writes the hash and its expiry in one MULTI/EXEC.
func (r *RedisRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	key := r.key(t.TokenHash)
	revoked := "0"
	if t.Revoked {
		revoked = "1"
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUserID, t.UserID,
			fieldExpiresAt, strconv.FormatInt(t.ExpiresAt.Unix(), 10),
			fieldRevoked, revoked,
			fieldCreatedAt, strconv.FormatInt(t.CreatedAt.Unix(), 10),
		)
		pipe.ExpireAt(ctx, key, t.ExpiresAt.Add(expiryGrace))
		return nil
	})
	if err != nil {
		return fmt.Errorf("refresh token: create: %w", err)
	}
	return nil
}

// GetByHash returns the token for hash, or nil if the key does not exist.
func (r *RedisRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	m, err := r.rdb.HGetAll(ctx, r.key(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("refresh token: get: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	exp, err := strconv.ParseInt(m[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("refresh token: corrupt expires_at for %s: %w", hash, err)
	}
	created, _ := strconv.ParseInt(m[fieldCreatedAt], 10, 64)
	return &domain.RefreshToken{
		TokenHash: hash,
		UserID:    m[fieldUserID],
		ExpiresAt: time.Unix(exp, 0).UTC(),
		Revoked:   m[fieldRevoked] == "1",
		CreatedAt: time.Unix(created, 0).UTC(),
	}, nil
}

func (r *RedisRepository) RevokeByHash(ctx context.Context, hash string) error {
	if err := revokeScript.Run(ctx, r.rdb, []string{r.key(hash)}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("refresh token: revoke: %w", err)
	}
	return nil
}

func (r *RedisRepository) DeleteByHash(ctx context.Context, hash string) error {
	if err := r.rdb.Del(ctx, r.key(hash)).Err(); err != nil {
		return fmt.Errorf("refresh token: delete: %w", err)
	}
	return nil
}
