package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

type memoryRepo struct {
	users   map[uuid.UUID]User
	roles   map[uuid.UUID]RoleInfo
	history []HistoryEntry
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users: make(map[uuid.UUID]User),
		roles: make(map[uuid.UUID]RoleInfo),
	}
}

func (r *memoryRepo) List(_ context.Context, _ string, _ shared.Pagination) ([]User, int, error) {
	var out []User
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	return u, nil
}

func (r *memoryRepo) History(_ context.Context, userID uuid.UUID, _ shared.Pagination) ([]HistoryEntry, int, error) {
	var out []HistoryEntry
	for _, h := range r.history {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) RoleByID(_ context.Context, id uuid.UUID) (RoleInfo, error) {
	info, ok := r.roles[id]
	if !ok {
		return RoleInfo{}, httpx.ErrNotFound
	}
	return info, nil
}

func (r *memoryRepo) Moderators(context.Context) ([]User, error) {
	var out []User
	for _, u := range r.users {
		if u.RoleLevel >= rbac.LevelJuniorModerator && !u.IsBanned {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memoryRepo) Ban(_ context.Context, userID uuid.UUID, reason string, _ uuid.UUID) error {
	u, ok := r.users[userID]
	if !ok {
		return httpx.ErrNotFound
	}
	u.IsBanned = true
	u.BanReason = reason
	r.users[userID] = u
	r.history = append(r.history, HistoryEntry{UserID: userID, ChangeType: ChangeBan, NewValue: reason})
	return nil
}

func (r *memoryRepo) Unban(_ context.Context, userID uuid.UUID) error {
	u, ok := r.users[userID]
	if !ok {
		return httpx.ErrNotFound
	}
	u.IsBanned = false
	u.BanReason = ""
	r.users[userID] = u
	r.history = append(r.history, HistoryEntry{UserID: userID, ChangeType: ChangeUnban})
	return nil
}

func (r *memoryRepo) ChangeRole(_ context.Context, userID, roleID uuid.UUID, oldRole, newRole string) error {
	u, ok := r.users[userID]
	if !ok {
		return httpx.ErrNotFound
	}
	role := r.roles[roleID]
	u.RoleID = roleID
	u.RoleName = role.Name
	u.RoleLevel = role.Level
	r.users[userID] = u
	r.history = append(r.history, HistoryEntry{UserID: userID, ChangeType: ChangeRole, OldValue: oldRole, NewValue: newRole})
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func actor(level rbac.Level) rbac.Principal {
	return rbac.Principal{
		ID:   uuid.New(),
		Role: rbac.Role{Level: level, Permissions: map[rbac.Permission]bool{}},
	}
}

func (r *memoryRepo) addUser(name string, level rbac.Level) User {
	roleID := uuid.New()
	r.roles[roleID] = RoleInfo{ID: roleID, Name: name + "-role", Level: level}
	u := User{ID: uuid.New(), Username: name, RoleID: roleID, RoleName: name + "-role", RoleLevel: level}
	r.users[u.ID] = u
	return u
}

func TestBanRejectsSelf(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	curator := actor(rbac.LevelChiefCurator)
	repo.users[curator.ID] = User{ID: curator.ID, Username: "curator"}

	err := svc.Ban(context.Background(), curator, curator.ID, "no reason")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestBanAndUnban(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	curator := actor(rbac.LevelChiefCurator)
	target := repo.addUser("troll", rbac.LevelUser)
	ctx := context.Background()

	require.NoError(t, svc.Ban(ctx, curator, target.ID, "spamming"))
	require.True(t, repo.users[target.ID].IsBanned)
	require.Equal(t, "spamming", repo.users[target.ID].BanReason)

	require.NoError(t, svc.Unban(ctx, curator, target.ID))
	require.False(t, repo.users[target.ID].IsBanned)

	err := svc.Ban(ctx, curator, target.ID, "")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestChangeRoleEnforcesLevelCeiling(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	curator := actor(rbac.LevelChiefCurator)
	target := repo.addUser("support", rbac.LevelJuniorModerator)
	ctx := context.Background()

	execRoleID := uuid.New()
	repo.roles[execRoleID] = RoleInfo{ID: execRoleID, Name: "executive moderator", Level: rbac.LevelExecutiveModerator}
	modRoleID := uuid.New()
	repo.roles[modRoleID] = RoleInfo{ID: modRoleID, Name: "moderator", Level: rbac.LevelModerator}

	// Above the actor's level: forbidden.
	err := svc.ChangeRole(ctx, curator, target.ID, execRoleID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	// At or below the actor's level: allowed, history recorded.
	require.NoError(t, svc.ChangeRole(ctx, curator, target.ID, modRoleID))
	require.Equal(t, rbac.LevelModerator, repo.users[target.ID].RoleLevel)
	require.Len(t, repo.history, 1)
	require.Equal(t, ChangeRole, repo.history[0].ChangeType)
}

func TestModeratorsExcludesBannedAndPlainUsers(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	repo.addUser("alice", rbac.LevelUser)
	banned := repo.addUser("bob", rbac.LevelModerator)
	repo.addUser("carol", rbac.LevelJuniorModerator)

	require.NoError(t, repo.Ban(context.Background(), banned.ID, "x", uuid.Nil))

	mods, err := svc.Moderators(context.Background())
	require.NoError(t, err)
	require.Len(t, mods, 1)
	require.Equal(t, "carol", mods[0].Username)
}
