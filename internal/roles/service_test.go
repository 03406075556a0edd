package roles

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
)

type memoryRepo struct {
	roles     map[uuid.UUID]rbac.Role
	overrides map[uuid.UUID]map[rbac.Permission]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:     make(map[uuid.UUID]rbac.Role),
		overrides: make(map[uuid.UUID]map[rbac.Permission]bool),
	}
}

func (r *memoryRepo) List(_ context.Context, maxLevel rbac.Level) ([]rbac.Role, error) {
	var out []rbac.Role
	for _, role := range r.roles {
		if role.Level <= maxLevel {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out, nil
}

func (r *memoryRepo) Get(_ context.Context, id uuid.UUID) (rbac.Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return rbac.Role{}, httpx.ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) Create(_ context.Context, role rbac.Role) error {
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return httpx.ErrConflict
		}
	}
	r.roles[role.ID] = role
	return nil
}

func (r *memoryRepo) Update(_ context.Context, role rbac.Role) error {
	if _, ok := r.roles[role.ID]; !ok {
		return httpx.ErrNotFound
	}
	r.roles[role.ID] = role
	return nil
}

func (r *memoryRepo) Seed(_ context.Context, seeds []rbac.RoleSeed) error {
	for _, seed := range seeds {
		exists := false
		for _, existing := range r.roles {
			if existing.Name == seed.Name {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		id := uuid.New()
		r.roles[id] = rbac.Role{
			ID:          id,
			Name:        seed.Name,
			Description: seed.Description,
			Level:       seed.Level,
			DefaultRole: seed.DefaultRole,
			Permissions: rbac.PermissionsForLevel(seed.Level),
		}
	}
	return nil
}

func (r *memoryRepo) Overrides(_ context.Context, userID uuid.UUID) (map[rbac.Permission]bool, error) {
	out := map[rbac.Permission]bool{}
	for k, v := range r.overrides[userID] {
		out[k] = v
	}
	return out, nil
}

func (r *memoryRepo) SetOverride(_ context.Context, userID uuid.UUID, perm rbac.Permission, value bool) error {
	if r.overrides[userID] == nil {
		r.overrides[userID] = map[rbac.Permission]bool{}
	}
	r.overrides[userID][perm] = value
	return nil
}

func (r *memoryRepo) ClearOverride(_ context.Context, userID uuid.UUID, perm rbac.Permission) error {
	delete(r.overrides[userID], perm)
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

func TestSeedIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Seed(ctx))
	require.Len(t, repo.roles, len(rbac.DefaultRoles))

	require.NoError(t, svc.Seed(ctx))
	require.Len(t, repo.roles, len(rbac.DefaultRoles))

	defaults := 0
	for _, role := range repo.roles {
		if role.DefaultRole {
			defaults++
			require.Equal(t, rbac.LevelUser, role.Level)
		}
	}
	require.Equal(t, 1, defaults)
}

func TestListCapsAtActorLevel(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	require.NoError(t, svc.Seed(ctx))

	list, err := svc.List(ctx, actor(rbac.LevelModerator))
	require.NoError(t, err)
	for _, role := range list {
		require.LessOrEqual(t, role.Level, rbac.LevelModerator)
	}
	// Sorted high to low so the admin UI shows senior tiers first.
	for i := 1; i < len(list); i++ {
		require.GreaterOrEqual(t, list[i-1].Level, list[i].Level)
	}
}

func TestCreateEnforcesLevelCeiling(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, actor(rbac.LevelModerator), RoleInput{
		Name:  "shadow council",
		Level: rbac.LevelExecutiveModerator,
	})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	role, err := svc.Create(ctx, actor(rbac.LevelExecutiveModerator), RoleInput{
		Name:        "event curator",
		Description: "runs seasonal events",
		Level:       rbac.LevelModeratorSupervisor,
		Permissions: map[string]bool{string(rbac.PermRespondSupportTickets): true},
	})
	require.NoError(t, err)
	require.False(t, role.DefaultRole)
	require.True(t, role.Permissions[rbac.PermRespondSupportTickets])
}

func TestCreateRejectsUnknownPermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), actor(rbac.LevelExecutiveModerator), RoleInput{
		Name:        "typo role",
		Level:       rbac.LevelUser,
		Permissions: map[string]bool{"launch_rockets": true},
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateCannotTouchSeniorRole(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	exec, err := svc.Create(ctx, actor(rbac.LevelExecutiveModerator), RoleInput{
		Name:  "deputy executive",
		Level: rbac.LevelLeadAdministrator,
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, actor(rbac.LevelModerator), exec.ID, RoleInput{
		Name:  "demoted",
		Level: rbac.LevelUser,
	})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	updated, err := svc.Update(ctx, actor(rbac.LevelExecutiveModerator), exec.ID, RoleInput{
		Name:        "deputy executive",
		Description: "updated",
		Level:       rbac.LevelChiefCurator,
	})
	require.NoError(t, err)
	require.Equal(t, rbac.LevelChiefCurator, updated.Level)
	require.Equal(t, "updated", updated.Description)
}

func TestOverrideRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	admin := actor(rbac.LevelExecutiveModerator)
	userID := uuid.New()

	require.NoError(t, svc.SetOverride(ctx, admin, userID, rbac.PermRespondAmnestyRequests, true))
	require.NoError(t, svc.SetOverride(ctx, admin, userID, rbac.PermRespondSupportTickets, false))

	overrides, err := svc.Overrides(ctx, userID)
	require.NoError(t, err)
	require.True(t, overrides[rbac.PermRespondAmnestyRequests])
	v, ok := overrides[rbac.PermRespondSupportTickets]
	require.True(t, ok)
	require.False(t, v)

	require.NoError(t, svc.ClearOverride(ctx, admin, userID, rbac.PermRespondSupportTickets))
	overrides, err = svc.Overrides(ctx, userID)
	require.NoError(t, err)
	_, ok = overrides[rbac.PermRespondSupportTickets]
	require.False(t, ok)

	err = svc.SetOverride(ctx, admin, userID, rbac.Permission("launch_rockets"), true)
	require.ErrorIs(t, err, httpx.ErrValidation)
}
