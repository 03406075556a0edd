package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// Service implements role catalogue and override rules.
type Service struct {
	repo   Repository
	audit  *shared.ActionLogger
	logger *slog.Logger
}

// NewService constructs the role service. audit may be nil.
func NewService(repo Repository, audit *shared.ActionLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Seed installs the built-in role ladder on first start. Existing roles are
// left untouched so operators may tune permission maps.
func (s *Service) Seed(ctx context.Context) error {
	return s.repo.Seed(ctx, rbac.DefaultRoles)
}

// List returns the roles at or below the actor's level; nobody browses
// roles above their own tier.
func (s *Service) List(ctx context.Context, actor rbac.Principal) ([]rbac.Role, error) {
	return s.repo.List(ctx, actor.Role.Level)
}

// RoleInput carries role create/update fields.
type RoleInput struct {
	Name        string          `json:"name" validate:"required,min=3,max=64"`
	Description string          `json:"description" validate:"max=500"`
	Level       rbac.Level      `json:"level" validate:"required,min=1,max=9"`
	Permissions map[string]bool `json:"permissions"`
}

func (in RoleInput) permissionMap() (map[rbac.Permission]bool, error) {
	perms := make(map[rbac.Permission]bool, len(in.Permissions))
	for name, v := range in.Permissions {
		perm := rbac.Permission(name)
		if !rbac.Known(perm) {
			return nil, fmt.Errorf("unknown permission %q: %w", name, httpx.ErrValidation)
		}
		perms[perm] = v
	}
	return perms, nil
}

// Create adds a custom role. The actor cannot mint a role above their own
// level.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in RoleInput) (rbac.Role, error) {
	if in.Level > actor.Role.Level {
		return rbac.Role{}, fmt.Errorf("cannot create a role above your own level: %w", httpx.ErrForbidden)
	}
	perms, err := in.permissionMap()
	if err != nil {
		return rbac.Role{}, err
	}
	role := rbac.Role{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		Level:       in.Level,
		Permissions: perms,
	}
	if err := s.repo.Create(ctx, role); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

// Update edits a role. Both the role's current and target level must sit at
// or below the actor's.
func (s *Service) Update(ctx context.Context, actor rbac.Principal, id uuid.UUID, in RoleInput) (rbac.Role, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return rbac.Role{}, err
	}
	if existing.Level > actor.Role.Level || in.Level > actor.Role.Level {
		return rbac.Role{}, fmt.Errorf("cannot edit a role above your own level: %w", httpx.ErrForbidden)
	}
	perms, err := in.permissionMap()
	if err != nil {
		return rbac.Role{}, err
	}
	existing.Name = in.Name
	existing.Description = in.Description
	existing.Level = in.Level
	existing.Permissions = perms
	if err := s.repo.Update(ctx, existing); err != nil {
		return rbac.Role{}, err
	}
	return existing, nil
}

// Overrides returns the user's permission override map.
func (s *Service) Overrides(ctx context.Context, userID uuid.UUID) (map[rbac.Permission]bool, error) {
	return s.repo.Overrides(ctx, userID)
}

// SetOverride grants or denies one permission for one user, overriding
// whatever their role says.
func (s *Service) SetOverride(ctx context.Context, actor rbac.Principal, userID uuid.UUID, perm rbac.Permission, value bool) error {
	if !rbac.Known(perm) {
		return fmt.Errorf("unknown permission %q: %w", perm, httpx.ErrValidation)
	}
	if err := s.repo.SetOverride(ctx, userID, perm, value); err != nil {
		return err
	}
	s.recordOverride(ctx, actor, userID, perm, &value)
	return nil
}

// ClearOverride removes one override so role resolution applies again.
func (s *Service) ClearOverride(ctx context.Context, actor rbac.Principal, userID uuid.UUID, perm rbac.Permission) error {
	if !rbac.Known(perm) {
		return fmt.Errorf("unknown permission %q: %w", perm, httpx.ErrValidation)
	}
	if err := s.repo.ClearOverride(ctx, userID, perm); err != nil {
		return err
	}
	s.recordOverride(ctx, actor, userID, perm, nil)
	return nil
}

func (s *Service) recordOverride(ctx context.Context, actor rbac.Principal, userID uuid.UUID, perm rbac.Permission, value *bool) {
	if s.audit == nil {
		return
	}
	details := map[string]any{
		"user_id":    userID.String(),
		"permission": string(perm),
	}
	if value != nil {
		details["value"] = *value
	} else {
		details["cleared"] = true
	}
	log := shared.ActionLog{UserID: actor.ID, ActionType: shared.ActionOverrideChanged, Details: details}
	if ip, ok := shared.ClientIPFromContext(ctx); ok {
		log.IP = ip
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("action log write failed", "action", shared.ActionOverrideChanged, "error", err)
	}
}
