package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otklabs/otk-auth/internal/domain"
)

var _ UserRepository = (*PostgresUserRepo)(nil)

const uniqueViolation = "23505"

// PostgresUserRepo implements UserRepository against the users table:
//
//	CREATE TABLE users (
//	    id            TEXT PRIMARY KEY,
//	    namespace     TEXT NOT NULL,
//	    email         TEXT NOT NULL,
//	    name          TEXT NOT NULL,
//	    provider      TEXT NOT NULL,
//	    password_hash TEXT NOT NULL DEFAULT '',
//	    salt          TEXT NOT NULL DEFAULT '',
//	    google_id     TEXT NOT NULL DEFAULT '',
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    UNIQUE (namespace, email)
//	);
type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepo constructs a Postgres-backed user store.
func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, ns, email string) (domain.User, error) {
	const query = `SELECT id, namespace, email, name, provider, password_hash, salt, google_id, created_at
FROM users WHERE namespace = $1 AND email = $2`

	var user domain.User
	err := r.pool.QueryRow(ctx, query, ns, email).Scan(
		&user.ID,
		&user.Namespace,
		&user.Email,
		&user.Name,
		&user.Provider,
		&user.PasswordHash,
		&user.Salt,
		&user.GoogleID,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) ExistsByEmail(ctx context.Context, ns, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE namespace = $1 AND email = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, ns, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `INSERT INTO users (id, namespace, email, name, provider, password_hash, salt, google_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Namespace,
		user.Email,
		user.Name,
		user.Provider,
		user.PasswordHash,
		user.Salt,
		user.GoogleID,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrUserExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, user domain.User) error {
	const query = `UPDATE users SET name = $3, provider = $4, password_hash = $5, salt = $6, google_id = $7
WHERE namespace = $1 AND email = $2`

	tag, err := r.pool.Exec(ctx, query,
		user.Namespace,
		user.Email,
		user.Name,
		user.Provider,
		user.PasswordHash,
		user.Salt,
		user.GoogleID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
