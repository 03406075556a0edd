// Package roles manages the role catalogue and per-user permission
// overrides, including the idempotent first-start seeding of the built-in
// role ladder.
package roles

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
)

// Repository defines persistence operations for roles and overrides.
type Repository interface {
	List(ctx context.Context, maxLevel rbac.Level) ([]rbac.Role, error)
	Get(ctx context.Context, id uuid.UUID) (rbac.Role, error)
	Create(ctx context.Context, role rbac.Role) error
	Update(ctx context.Context, role rbac.Role) error
	Seed(ctx context.Context, seeds []rbac.RoleSeed) error

	Overrides(ctx context.Context, userID uuid.UUID) (map[rbac.Permission]bool, error)
	SetOverride(ctx context.Context, userID uuid.UUID, perm rbac.Permission, value bool) error
	ClearOverride(ctx context.Context, userID uuid.UUID, perm rbac.Permission) error
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

func (r *PGRepository) List(ctx context.Context, maxLevel rbac.Level) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, name, COALESCE(description, ''), level, default_role, COALESCE(permissions, '{}'::jsonb), created_at, updated_at
FROM roles
WHERE level <= $1
ORDER BY level DESC`, maxLevel)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var out []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
SELECT id, name, COALESCE(description, ''), level, default_role, COALESCE(permissions, '{}'::jsonb), created_at, updated_at
FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, fmt.Errorf("role %s: %w", id, httpx.ErrNotFound)
		}
		return rbac.Role{}, fmt.Errorf("roles: get: %w", err)
	}
	return role, nil
}

func scanRole(row pgx.Row) (rbac.Role, error) {
	var (
		role     rbac.Role
		permsRaw []byte
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &role.DefaultRole, &permsRaw, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return rbac.Role{}, err
	}
	if err := json.Unmarshal(permsRaw, &role.Permissions); err != nil {
		return rbac.Role{}, fmt.Errorf("roles: decode permissions: %w", err)
	}
	return role, nil
}

func (r *PGRepository) Create(ctx context.Context, role rbac.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO roles (id, name, description, level, default_role, permissions, created_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, $5, NOW(), NOW())`,
		role.ID, role.Name, role.Description, role.Level, perms)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("role %q already exists: %w", role.Name, httpx.ErrConflict)
		}
		return fmt.Errorf("roles: create: %w", err)
	}
	return nil
}

func (r *PGRepository) Update(ctx context.Context, role rbac.Role) error {
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE roles SET name = $2, description = $3, level = $4, permissions = $5, updated_at = NOW()
WHERE id = $1`, role.ID, role.Name, role.Description, role.Level, perms)
	if err != nil {
		return fmt.Errorf("roles: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("role %s: %w", role.ID, httpx.ErrNotFound)
	}
	return nil
}

// Seed installs the built-in roles, skipping any that already exist by name.
func (r *PGRepository) Seed(ctx context.Context, seeds []rbac.RoleSeed) error {
	for _, seed := range seeds {
		perms, err := json.Marshal(rbac.PermissionsForLevel(seed.Level))
		if err != nil {
			return err
		}
		_, err = r.pool.Exec(ctx, `
INSERT INTO roles (id, name, description, level, default_role, permissions, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (name) DO NOTHING`,
			uuid.New(), seed.Name, seed.Description, seed.Level, seed.DefaultRole, perms)
		if err != nil {
			return fmt.Errorf("roles: seed %q: %w", seed.Name, err)
		}
	}
	return nil
}

func (r *PGRepository) Overrides(ctx context.Context, userID uuid.UUID) (map[rbac.Permission]bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		"SELECT permissions FROM permission_overrides WHERE user_id = $1", userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[rbac.Permission]bool{}, nil
		}
		return nil, fmt.Errorf("roles: overrides: %w", err)
	}
	overrides := map[rbac.Permission]bool{}
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("roles: decode overrides: %w", err)
	}
	return overrides, nil
}

// SetOverride upserts one permission override for the user.
func (r *PGRepository) SetOverride(ctx context.Context, userID uuid.UUID, perm rbac.Permission, value bool) error {
	patch, err := json.Marshal(map[rbac.Permission]bool{perm: value})
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO permission_overrides (user_id, permissions, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE
SET permissions = permission_overrides.permissions || EXCLUDED.permissions,
    updated_at = NOW()`, userID, patch)
	if err != nil {
		return fmt.Errorf("roles: set override: %w", err)
	}
	return nil
}

// ClearOverride removes one permission from the user's override record so
// resolution falls back to the role.
func (r *PGRepository) ClearOverride(ctx context.Context, userID uuid.UUID, perm rbac.Permission) error {
	_, err := r.pool.Exec(ctx, `
UPDATE permission_overrides
SET permissions = permissions - $2, updated_at = NOW()
WHERE user_id = $1`, userID, string(perm))
	if err != nil {
		return fmt.Errorf("roles: clear override: %w", err)
	}
	return nil
}
