package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user User) (*User, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error

	// LoadPrincipal rebuilds the authorization snapshot: user, role with its
	// permission map, and any per-user overrides.
	LoadPrincipal(ctx context.Context, userID uuid.UUID) (*rbac.Principal, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// FindByUsername fetches a user by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
SELECT id, username, email, password_hash, role_id, is_banned, COALESCE(ban_reason, ''), last_login, created_at
FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.RoleID, &u.IsBanned, &u.BanReason, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new account on the default role.
func (r *PGRepository) CreateUser(ctx context.Context, user User) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
INSERT INTO users (id, username, email, password_hash, role_id, created_at)
VALUES ($1, $2, $3, $4, (SELECT id FROM roles WHERE default_role = TRUE LIMIT 1), NOW())
RETURNING role_id, created_at`, user.ID, user.Username, user.Email, user.PasswordHash).
		Scan(&user.RoleID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("username or email already taken: %w", httpx.ErrConflict)
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin stamps a successful login.
func (r *PGRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, userID)
	return err
}

// LoadPrincipal joins the user with their role and permission overrides.
func (r *PGRepository) LoadPrincipal(ctx context.Context, userID uuid.UUID) (*rbac.Principal, error) {
	var (
		p            rbac.Principal
		isBanned     bool
		rolePermsRaw []byte
		overridesRaw []byte
	)
	err := r.pool.QueryRow(ctx, `
SELECT u.id, u.username, u.is_banned,
       r.id, r.name, r.level, COALESCE(r.permissions, '{}'::jsonb),
       COALESCE(o.permissions, '{}'::jsonb)
FROM users u
JOIN roles r ON r.id = u.role_id
LEFT JOIN permission_overrides o ON o.user_id = u.id
WHERE u.id = $1`, userID).
		Scan(&p.ID, &p.Username, &isBanned,
			&p.Role.ID, &p.Role.Name, &p.Role.Level, &rolePermsRaw,
			&overridesRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: load principal: %w", err)
	}
	if isBanned {
		return nil, fmt.Errorf("account banned: %w", httpx.ErrForbidden)
	}
	if err := json.Unmarshal(rolePermsRaw, &p.Role.Permissions); err != nil {
		return nil, fmt.Errorf("auth: decode role permissions: %w", err)
	}
	if err := json.Unmarshal(overridesRaw, &p.Overrides); err != nil {
		return nil, fmt.Errorf("auth: decode overrides: %w", err)
	}
	return &p, nil
}
