package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"courier-auth/backend/internal/refreshtoken/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a refresh token repository backed by the refresh_tokens table.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, expires_at, revoked, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.TokenHash, t.UserID, t.ExpiresAt, t.Revoked, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("refresh token: create: %w", err)
	}
	return nil
}

// GetByHash returns the token for hash, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRowContext(ctx,
		`SELECT token_hash, user_id, expires_at, revoked, created_at FROM refresh_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("refresh token: get: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) RevokeByHash(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1`, hash); err != nil {
		return fmt.Errorf("refresh token: revoke: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByHash(ctx context.Context, hash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash); err != nil {
		return fmt.Errorf("refresh token: delete: %w", err)
	}
	return nil
}
