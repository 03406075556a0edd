package rbac

// RoleSeed describes one of the built-in roles installed on first start.
type RoleSeed struct {
	Name        string
	Description string
	Level       Level
	DefaultRole bool
}

// DefaultRoles is the nine-tier role ladder seeded idempotently at startup.
// Exactly one entry carries DefaultRole; new registrations land there.
var DefaultRoles = []RoleSeed{
	{Name: "user", Description: "Regular user with base rights", Level: LevelUser, DefaultRole: true},
	{Name: "junior moderator", Description: "Responds to support appeals", Level: LevelJuniorModerator},
	{Name: "moderator", Description: "Handles complaints and may mentor", Level: LevelModerator},
	{Name: "multi-account moderator", Description: "Tracks multi-account records", Level: LevelMultiAccountModerator},
	{Name: "moderator supervisor", Description: "Watches active chats and runs reporting", Level: LevelModeratorSupervisor},
	{Name: "chief curator", Description: "Responds to moderation complaints", Level: LevelChiefCurator},
	{Name: "lead administrator", Description: "Responds to amnesty requests", Level: LevelLeadAdministrator},
	{Name: "forum moderator", Description: "Manages roles and users", Level: LevelForumModerator},
	{Name: "executive moderator", Description: "Moderation leadership", Level: LevelExecutiveModerator},
}

// PermissionsForLevel expands a role level into the explicit permission map
// stored with seeded roles: every known permission keyed to whether the level
// implies it.
func PermissionsForLevel(level Level) map[Permission]bool {
	perms := make(map[Permission]bool, len(AllPermissions))
	for _, p := range AllPermissions {
		perms[p] = level >= MinLevel(p)
	}
	return perms
}
