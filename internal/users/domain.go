// Package users implements account administration: listing, ban management,
// role changes and the per-user change history.
package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/rbac"
)

// User is the administrative view of an account.
type User struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	RoleID    uuid.UUID  `json:"role_id"`
	RoleName  string     `json:"role_name"`
	RoleLevel rbac.Level `json:"role_level"`
	IsBanned  bool       `json:"is_banned"`
	BanReason string     `json:"ban_reason,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryEntry records one administrative change to an account.
type HistoryEntry struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ChangeType string    `json:"change_type"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	CreatedAt  time.Time `json:"created_at"`
}

// History change types.
const (
	ChangeRole  = "role"
	ChangeBan   = "ban"
	ChangeUnban = "unban"
)

// Details is one user with a page of their history.
type Details struct {
	User         User           `json:"user"`
	History      []HistoryEntry `json:"history"`
	HistoryTotal int            `json:"history_total"`
}

// Page is a paginated user listing.
type Page struct {
	Users      []User `json:"users"`
	Total      int    `json:"total"`
	PageNum    int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
}
