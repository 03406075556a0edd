// Package rbac implements the permission model: ordered role levels, named
// permissions with intrinsic minimum levels, and per-user overrides. All
// checks are pure functions over an in-memory principal snapshot so they are
// cheap enough to run on every chat message.
package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Level is an ordered role tier. Higher levels are more privileged and imply
// every permission whose intrinsic minimum level they meet.
type Level int

// Role tiers, lowest to highest.
const (
	LevelUser                  Level = 1
	LevelJuniorModerator       Level = 2
	LevelModerator             Level = 3
	LevelMultiAccountModerator Level = 4
	LevelModeratorSupervisor   Level = 5
	LevelChiefCurator          Level = 6
	LevelLeadAdministrator     Level = 7
	LevelForumModerator        Level = 8
	LevelExecutiveModerator    Level = 9
)

// Permission is a named capability. The set is closed: permissions are enum
// keys rather than free-form strings so that a typo fails to compile instead
// of silently granting nothing.
type Permission string

const (
	PermRespondSupportTickets       Permission = "respond_support_tickets"
	PermEligibleAsMentor            Permission = "eligible_as_mentor"
	PermManageMultiAccounts         Permission = "manage_multi_accounts"
	PermViewActiveChats             Permission = "view_active_chats"
	PermManageReports               Permission = "manage_reports"
	PermRespondModerationComplaints Permission = "respond_moderation_complaints"
	PermRespondAmnestyRequests      Permission = "respond_amnesty_requests"
	PermManageRoles                 Permission = "manage_roles"
	PermManageUsers                 Permission = "manage_users"
	PermDeleteUsers                 Permission = "delete_users"
)

// minLevels holds the intrinsic minimum role level of each permission. A role
// whose level meets the minimum is granted the permission unless its map or a
// user override says otherwise.
var minLevels = map[Permission]Level{
	PermRespondSupportTickets:       LevelJuniorModerator,
	PermEligibleAsMentor:            LevelModerator,
	PermManageMultiAccounts:         LevelMultiAccountModerator,
	PermViewActiveChats:             LevelModeratorSupervisor,
	PermManageReports:               LevelModeratorSupervisor,
	PermRespondModerationComplaints: LevelChiefCurator,
	PermRespondAmnestyRequests:      LevelLeadAdministrator,
	PermManageRoles:                 LevelForumModerator,
	PermManageUsers:                 LevelForumModerator,
	PermDeleteUsers:                 LevelForumModerator,
}

// AllPermissions lists every known permission in a stable order.
var AllPermissions = []Permission{
	PermRespondSupportTickets,
	PermEligibleAsMentor,
	PermManageMultiAccounts,
	PermViewActiveChats,
	PermManageReports,
	PermRespondModerationComplaints,
	PermRespondAmnestyRequests,
	PermManageRoles,
	PermManageUsers,
	PermDeleteUsers,
}

// MinLevel returns the intrinsic minimum role level for the permission.
// Unknown permissions require the highest tier, which denies by default.
func MinLevel(p Permission) Level {
	if lvl, ok := minLevels[p]; ok {
		return lvl
	}
	return LevelExecutiveModerator
}

// Known reports whether the permission is part of the closed set.
func Known(p Permission) bool {
	_, ok := minLevels[p]
	return ok
}

// Role is a named permission grouping with an ordered level. Permissions is a
// sparse map: entries override level implication in either direction, absent
// keys fall back to the level check.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	Level       Level
	DefaultRole bool
	Permissions map[Permission]bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal is the authenticated actor snapshot, rebuilt per request from the
// persisted user, role and override rows. It is never cached across requests.
type Principal struct {
	ID        uuid.UUID
	Username  string
	Role      Role
	Overrides map[Permission]bool
}

// HasRoleOrHigher reports whether the principal's role level meets required.
func (p Principal) HasRoleOrHigher(required Level) bool {
	return p.Role.Level >= required
}

// HasPermission resolves a permission in three tiers: a user override wins,
// then an explicit entry in the role's permission map, then level implication
// against the permission's intrinsic minimum level. An explicit false at a
// higher tier suppresses a grant from a lower one.
func (p Principal) HasPermission(perm Permission) bool {
	if v, ok := p.Overrides[perm]; ok {
		return v
	}
	if v, ok := p.Role.Permissions[perm]; ok {
		return v
	}
	return p.Role.Level >= MinLevel(perm)
}

// RequireRoleOrHigher returns an AuthorizationError naming the missing tier
// when the principal's level is insufficient.
func (p Principal) RequireRoleOrHigher(required Level) error {
	if p.HasRoleOrHigher(required) {
		return nil
	}
	return &AuthorizationError{RequiredLevel: required}
}

// RequirePermission returns an AuthorizationError naming the missing
// permission when the check fails.
func (p Principal) RequirePermission(perm Permission) error {
	if p.HasPermission(perm) {
		return nil
	}
	return &AuthorizationError{MissingPermission: perm}
}
