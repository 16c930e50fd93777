package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"courier-auth/backend/internal/identity/domain"
)

const identityColumns = `id, username, email, password_hash, roles, mfa_enabled, mfa_secret, created_at`

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db    *sql.DB
	types *pgtype.Map
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, types: pgtype.NewMap()}
}

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername returns the identity for username, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM users WHERE username = $1`, username)
}

// GetByEmail returns the identity for email (case-insensitive), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.getOne(ctx, `SELECT `+identityColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// Create persists the identity to the database. The identity must have ID set.
// Returns ErrDuplicate if the username or email is already taken.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	secret := sql.NullString{String: i.MFASecret, Valid: i.MFASecret != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+identityColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		i.ID, i.Username, strings.ToLower(i.Email), i.PasswordHash, i.Roles, i.MFAEnabled, secret, i.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("identity: create: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Identity, error) {
	var (
		i      domain.Identity
		roles  []string
		secret sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&i.ID, &i.Username, &i.Email, &i.PasswordHash, r.types.SQLScanner(&roles), &i.MFAEnabled, &secret, &i.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: query: %w", err)
	}
	i.Roles = roles
	i.MFASecret = secret.String
	return &i, nil
}
