// Package auth implements credential checks, registration and the principal
// loading middleware that feeds the permission model.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is an account row. Principals are derived from it per request.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	RoleID       uuid.UUID
	IsBanned     bool
	BanReason    string
	LastLogin    *time.Time
	CreatedAt    time.Time
}
