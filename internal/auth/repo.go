package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kfkafe/cafe-ops/internal/platform/db"
	"github.com/kfkafe/cafe-ops/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUsername fetches a user by case-insensitive username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, username, password_hash, role, created_at FROM users WHERE LOWER(username) = $1`,
		strings.ToLower(strings.TrimSpace(username))).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListProfiles returns every user for the login screen tiles.
func (r *PGRepository) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, username, role FROM users ORDER BY role, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Profile{}
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.Role); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateUser inserts a user. A taken username is a validation failure.
func (r *PGRepository) CreateUser(ctx context.Context, username, passwordHash, role string) (*User, error) {
	user := User{Username: username, PasswordHash: passwordHash, Role: role}
	err := r.pool.QueryRow(ctx, `INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3) RETURNING id, created_at`,
		username, passwordHash, role).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %q already exists", shared.ErrValidation, username)
		}
		return nil, err
	}
	return &user, nil
}

var _ Repository = (*PGRepository)(nil)
