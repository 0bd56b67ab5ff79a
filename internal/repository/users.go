package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gridplay/tictac-server-go/internal/user"
)

// uniqueViolation is the Postgres error code for unique constraint
// violations.
const uniqueViolation = "23505"

// UserRepository stores user accounts. Implements user.Repository.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, username, passwordHash, email string) (user.User, error) {
	var u user.User
	err := r.db.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, email)
		 VALUES ($1, $2, NULLIF($3, ''))
		 RETURNING id, username, password_hash, COALESCE(email, ''), created_at`,
		username, passwordHash, email,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UserByName(ctx context.Context, username string) (user.User, error) {
	return r.scanUser(r.db.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, COALESCE(email, ''), created_at
		 FROM users WHERE username = $1`,
		username,
	))
}

func (r *UserRepository) UserByID(ctx context.Context, id int64) (user.User, error) {
	return r.scanUser(r.db.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, COALESCE(email, ''), created_at
		 FROM users WHERE id = $1`,
		id,
	))
}

func (r *UserRepository) scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, user.ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := r.db.pool.Exec(ctx,
		`UPDATE users SET last_login = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}
