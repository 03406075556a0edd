package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// Service implements user administration rules.
type Service struct {
	repo   Repository
	audit  *shared.ActionLogger
	logger *slog.Logger
}

// NewService constructs the user service. audit may be nil.
func NewService(repo Repository, audit *shared.ActionLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List pages through accounts matching the search term.
func (s *Service) List(ctx context.Context, search string, page shared.Pagination) (Page, error) {
	page = page.Normalize()
	users, total, err := s.repo.List(ctx, search, page)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Users:      users,
		Total:      total,
		PageNum:    page.Page,
		PerPage:    page.PerPage,
		TotalPages: page.TotalPages(total),
	}, nil
}

// Details loads one user with a page of their change history.
func (s *Service) Details(ctx context.Context, id uuid.UUID, historyPage shared.Pagination) (Details, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	history, total, err := s.repo.History(ctx, id, historyPage.Normalize())
	if err != nil {
		return Details{}, err
	}
	return Details{User: user, History: history, HistoryTotal: total}, nil
}

// Moderators lists staff accounts, the pool reassignments pick from.
func (s *Service) Moderators(ctx context.Context) ([]User, error) {
	return s.repo.Moderators(ctx)
}

// Ban blocks an account. Admins cannot ban themselves.
func (s *Service) Ban(ctx context.Context, actor rbac.Principal, userID uuid.UUID, reason string) error {
	if actor.ID == userID {
		return fmt.Errorf("you cannot ban yourself: %w", httpx.ErrValidation)
	}
	if reason == "" {
		return fmt.Errorf("ban reason is required: %w", httpx.ErrValidation)
	}
	if err := s.repo.Ban(ctx, userID, reason, actor.ID); err != nil {
		return err
	}
	s.recordAction(ctx, actor.ID, shared.ActionUserBanned, map[string]any{
		"user_id": userID.String(),
		"reason":  reason,
	})
	return nil
}

// Unban lifts a block. Admins cannot unban themselves.
func (s *Service) Unban(ctx context.Context, actor rbac.Principal, userID uuid.UUID) error {
	if actor.ID == userID {
		return fmt.Errorf("you cannot unban yourself: %w", httpx.ErrValidation)
	}
	if err := s.repo.Unban(ctx, userID); err != nil {
		return err
	}
	s.recordAction(ctx, actor.ID, shared.ActionUserUnbanned, map[string]any{
		"user_id": userID.String(),
	})
	return nil
}

// ChangeRole moves the user onto a new role. Nobody may hand out a role
// above their own level.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Principal, userID, roleID uuid.UUID) error {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.repo.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Level > actor.Role.Level {
		return fmt.Errorf("cannot assign a role above your own level: %w", httpx.ErrForbidden)
	}
	if err := s.repo.ChangeRole(ctx, userID, roleID, user.RoleName, role.Name); err != nil {
		return err
	}
	s.recordAction(ctx, actor.ID, shared.ActionRoleChanged, map[string]any{
		"user_id":  userID.String(),
		"old_role": user.RoleName,
		"new_role": role.Name,
	})
	return nil
}

func (s *Service) recordAction(ctx context.Context, actorID uuid.UUID, action string, details map[string]any) {
	if s.audit == nil {
		return
	}
	log := shared.ActionLog{UserID: actorID, ActionType: action, Details: details}
	if ip, ok := shared.ClientIPFromContext(ctx); ok {
		log.IP = ip
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("action log write failed", "action", action, "error", err)
	}
}
