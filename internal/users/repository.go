package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appealdesk/appealdesk/internal/platform/db"
	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// RoleInfo is the role slice needed for the assignment ceiling check.
type RoleInfo struct {
	ID    uuid.UUID  `json:"id"`
	Name  string     `json:"name"`
	Level rbac.Level `json:"level"`
}

// Repository defines persistence operations for user administration.
type Repository interface {
	List(ctx context.Context, search string, page shared.Pagination) ([]User, int, error)
	Get(ctx context.Context, id uuid.UUID) (User, error)
	History(ctx context.Context, userID uuid.UUID, page shared.Pagination) ([]HistoryEntry, int, error)
	RoleByID(ctx context.Context, id uuid.UUID) (RoleInfo, error)
	Moderators(ctx context.Context) ([]User, error)

	// Ban deactivates the account and records the ban row atomically.
	Ban(ctx context.Context, userID uuid.UUID, reason string, bannedBy uuid.UUID) error
	// Unban reactivates the account and closes any active ban rows.
	Unban(ctx context.Context, userID uuid.UUID) error
	// ChangeRole moves the user onto the role and appends a history entry.
	ChangeRole(ctx context.Context, userID, roleID uuid.UUID, oldRole, newRole string) error
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

const userColumns = `
u.id, u.username, u.email, u.role_id, r.name, r.level,
u.is_banned, COALESCE(u.ban_reason, ''), u.last_login, u.created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.RoleID, &u.RoleName, &u.RoleLevel,
		&u.IsBanned, &u.BanReason, &u.LastLogin, &u.CreatedAt)
	return u, err
}

func (r *PGRepository) List(ctx context.Context, search string, page shared.Pagination) ([]User, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = " WHERE u.username ILIKE $1 OR u.email ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users u"+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	query := "SELECT " + userColumns + " FROM users u JOIN roles r ON r.id = u.role_id" + where +
		fmt.Sprintf(" ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %s: %w", id, httpx.ErrNotFound)
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

func (r *PGRepository) History(ctx context.Context, userID uuid.UUID, page shared.Pagination) ([]HistoryEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM user_history WHERE user_id = $1", userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("users: history count: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, change_type, old_value, new_value, created_at
FROM user_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, userID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("users: history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.UserID, &h.ChangeType, &h.OldValue, &h.NewValue, &h.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) RoleByID(ctx context.Context, id uuid.UUID) (RoleInfo, error) {
	var info RoleInfo
	err := r.pool.QueryRow(ctx, "SELECT id, name, level FROM roles WHERE id = $1", id).
		Scan(&info.ID, &info.Name, &info.Level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleInfo{}, fmt.Errorf("role %s: %w", id, httpx.ErrNotFound)
		}
		return RoleInfo{}, fmt.Errorf("users: role lookup: %w", err)
	}
	return info, nil
}

func (r *PGRepository) Moderators(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+`
FROM users u JOIN roles r ON r.id = u.role_id
WHERE r.level >= $1 AND u.is_banned = FALSE
ORDER BY r.level DESC, u.username ASC`, rbac.LevelJuniorModerator)
	if err != nil {
		return nil, fmt.Errorf("users: moderators: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PGRepository) Ban(ctx context.Context, userID uuid.UUID, reason string, bannedBy uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE users SET is_banned = TRUE, ban_reason = $2 WHERE id = $1", userID, reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO user_bans (id, user_id, reason, banned_by, is_active, created_at)
VALUES ($1, $2, $3, $4, TRUE, NOW())`, uuid.New(), userID, reason, bannedBy)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, userID, ChangeBan, "", reason)
	})
}

func (r *PGRepository) Unban(ctx context.Context, userID uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE users SET is_banned = FALSE, ban_reason = NULL WHERE id = $1", userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
		}
		_, err = tx.Exec(ctx,
			"UPDATE user_bans SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE", userID)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, userID, ChangeUnban, "", "")
	})
}

func (r *PGRepository) ChangeRole(ctx context.Context, userID, roleID uuid.UUID, oldRole, newRole string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE users SET role_id = $2 WHERE id = $1", userID, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
		}
		return insertHistory(ctx, tx, userID, ChangeRole, oldRole, newRole)
	})
}

func insertHistory(ctx context.Context, tx pgx.Tx, userID uuid.UUID, changeType, oldValue, newValue string) error {
	_, err := tx.Exec(ctx, `
INSERT INTO user_history (id, user_id, change_type, old_value, new_value, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())`, uuid.New(), userID, changeType, oldValue, newValue)
	return err
}

func (r *PGRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, fn)
}
