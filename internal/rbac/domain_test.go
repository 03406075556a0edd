package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
)

func principalWithLevel(level Level) Principal {
	return Principal{
		Username: "tester",
		Role:     Role{Name: "test", Level: level, Permissions: map[Permission]bool{}},
	}
}

func TestHasRoleOrHigher(t *testing.T) {
	p := principalWithLevel(LevelModerator)

	require.True(t, p.HasRoleOrHigher(LevelUser))
	require.True(t, p.HasRoleOrHigher(LevelModerator))
	require.False(t, p.HasRoleOrHigher(LevelChiefCurator))
}

func TestHasPermissionLevelImplication(t *testing.T) {
	junior := principalWithLevel(LevelJuniorModerator)
	require.True(t, junior.HasPermission(PermRespondSupportTickets))
	require.False(t, junior.HasPermission(PermRespondModerationComplaints))

	curator := principalWithLevel(LevelChiefCurator)
	require.True(t, curator.HasPermission(PermRespondModerationComplaints))
	require.True(t, curator.HasPermission(PermRespondSupportTickets))
}

func TestHasPermissionRoleMapSuppressesLevel(t *testing.T) {
	p := principalWithLevel(LevelChiefCurator)
	p.Role.Permissions[PermRespondSupportTickets] = false

	require.False(t, p.HasPermission(PermRespondSupportTickets))
	require.True(t, p.HasPermission(PermRespondModerationComplaints))
}

func TestHasPermissionOverridePrecedence(t *testing.T) {
	// Role map grants, override denies: override wins.
	p := principalWithLevel(LevelUser)
	p.Role.Permissions[PermRespondSupportTickets] = true
	p.Overrides = map[Permission]bool{PermRespondSupportTickets: false}
	require.False(t, p.HasPermission(PermRespondSupportTickets))

	// Level insufficient and role map silent, but override grants.
	q := principalWithLevel(LevelUser)
	q.Overrides = map[Permission]bool{PermRespondAmnestyRequests: true}
	require.True(t, q.HasPermission(PermRespondAmnestyRequests))
}

func TestRequireHelpersReturnAuthorizationError(t *testing.T) {
	p := principalWithLevel(LevelUser)

	err := p.RequireRoleOrHigher(LevelModerator)
	require.Error(t, err)
	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, LevelModerator, authzErr.RequiredLevel)
	require.True(t, errors.Is(err, httpx.ErrForbidden))

	err = p.RequirePermission(PermManageReports)
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, PermManageReports, authzErr.MissingPermission)

	require.NoError(t, p.RequireRoleOrHigher(LevelUser))
}

func TestPermissionsForLevel(t *testing.T) {
	perms := PermissionsForLevel(LevelModeratorSupervisor)

	require.True(t, perms[PermViewActiveChats])
	require.True(t, perms[PermRespondSupportTickets])
	require.False(t, perms[PermRespondAmnestyRequests])
	require.Len(t, perms, len(AllPermissions))
}

func TestMinLevelUnknownPermissionDenies(t *testing.T) {
	p := principalWithLevel(LevelForumModerator)
	require.False(t, p.HasPermission(Permission("made_up")))
	require.False(t, Known(Permission("made_up")))
}
