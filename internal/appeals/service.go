package appeals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// Notifier pushes realtime events out after a mutation has committed. The
// realtime hub implements it; tests plug in a recorder. All methods are
// fire-and-forget: a slow or absent subscriber never fails the mutation.
type Notifier interface {
	// AppealEvent fans out to every connection on the appeal's chat channel.
	AppealEvent(ctx context.Context, appealID uuid.UUID, payload any)
	// ListEvent fans out to every dashboard connection.
	ListEvent(ctx context.Context, payload any)
	// UserEvent delivers to one user's notification channel.
	UserEvent(ctx context.Context, userID uuid.UUID, payload any)
	// CountersChanged tells dashboards to refresh their per-user counters.
	CountersChanged(ctx context.Context)
}

// NopNotifier discards every event. Used by the worker binary and tests that
// do not care about fan-out.
type NopNotifier struct{}

func (NopNotifier) AppealEvent(context.Context, uuid.UUID, any) {}
func (NopNotifier) ListEvent(context.Context, any)              {}
func (NopNotifier) UserEvent(context.Context, uuid.UUID, any)   {}
func (NopNotifier) CountersChanged(context.Context)             {}

// ErrAppealClosed is returned when writing to a terminal appeal.
var ErrAppealClosed = errors.New("appeal is closed")

// ErrCannotReassign is returned when a moderator who gave an appeal up tries
// to claim it again.
var ErrCannotReassign = errors.New("cannot take this appeal again")

// TaskQueue hands work to the background worker. Enqueue failures are the
// queue's problem to log; assignments already committed by the time it runs.
type TaskQueue interface {
	EnqueueAssignmentNotice(ctx context.Context, appealID, moderatorID uuid.UUID)
}

// Service implements the appeal lifecycle on top of the repository.
type Service struct {
	repo     Repository
	notifier Notifier
	tasks    TaskQueue
	audit    *shared.ActionLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the appeal service. audit may be nil; action logging is
// then skipped.
func NewService(repo Repository, notifier Notifier, audit *shared.ActionLogger, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// WithTaskQueue attaches the background queue; without it assignment notices
// are simply not sent.
func (s *Service) WithTaskQueue(q TaskQueue) *Service {
	s.tasks = q
	return s
}

// CreateInput carries the submission form fields. Which fields are required
// depends on the appeal type; handlers validate before calling Create.
type CreateInput struct {
	Description      string `json:"description" validate:"required,min=10,max=5000"`
	Nickname         string `json:"nickname" validate:"omitempty,max=64"`
	Email            string `json:"email" validate:"omitempty,email"`
	ViolatorNickname string `json:"violator_nickname" validate:"omitempty,max=64"`
	AdminNickname    string `json:"admin_nickname" validate:"omitempty,max=64"`
}

// Create submits a new appeal with its detail record in one transaction.
// userID is nil for anonymous help submissions.
func (s *Service) Create(ctx context.Context, userID *uuid.UUID, typ Type, in CreateInput) (View, error) {
	if !typ.Valid() {
		return View{}, fmt.Errorf("unknown appeal type %q: %w", typ, httpx.ErrValidation)
	}

	appeal := Appeal{
		ID:     uuid.New(),
		UserID: userID,
		Type:   typ,
		Status: StatusPending,
	}
	detail := Detail{
		AppealID:         appeal.ID,
		Description:      in.Description,
		Nickname:         in.Nickname,
		Email:            in.Email,
		ViolatorNickname: in.ViolatorNickname,
		AdminNickname:    in.AdminNickname,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.CreateAppeal(ctx, appeal, detail)
	})
	if err != nil {
		return View{}, err
	}

	s.recordAction(ctx, userID, shared.ActionAppealCreated, map[string]any{
		"appeal_id": appeal.ID.String(),
		"type":      string(typ),
	})
	s.notifier.ListEvent(ctx, map[string]any{
		"type":      "appeal_created",
		"appeal_id": appeal.ID.String(),
	})
	s.notifier.CountersChanged(ctx)

	return s.repo.GetView(ctx, appeal.ID)
}

// Get loads one appeal after running the visibility gate.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id uuid.UUID) (View, error) {
	view, err := s.repo.GetView(ctx, id)
	if err != nil {
		return View{}, err
	}
	if err := CheckAccess(p, view); err != nil {
		return View{}, err
	}
	return view, nil
}

// ChatSnapshot is the full chat state handed to a client opening an appeal.
type ChatSnapshot struct {
	Appeal      View
	Messages    []Message
	Attachments []Attachment
	CanSend     bool
}

// Chat returns the appeal with its message history and whether the principal
// may currently post.
func (s *Service) Chat(ctx context.Context, p rbac.Principal, id uuid.UUID) (ChatSnapshot, error) {
	view, err := s.Get(ctx, p, id)
	if err != nil {
		return ChatSnapshot{}, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return ChatSnapshot{}, err
	}
	attachments, err := s.repo.ListAttachments(ctx, id)
	if err != nil {
		return ChatSnapshot{}, err
	}
	isAssigned := view.AssignedTo != nil && *view.AssignedTo == p.ID
	return ChatSnapshot{
		Appeal:      view,
		Messages:    messages,
		Attachments: attachments,
		CanSend:     CanSendMessage(p, view, isAssigned, IsModerator(p), view.IsOwner(p.ID)),
	}, nil
}

// List pages through appeals the principal may see. A principal holding no
// respond permission at all is rejected outright unless the filter is pinned
// to their own submissions or assignments.
func (s *Service) List(ctx context.Context, p rbac.Principal, filter ListFilter) (Page, error) {
	ownOnly := filter.OwnerID != nil && *filter.OwnerID == p.ID
	assignedToMe := filter.AssignedTo != nil && *filter.AssignedTo == p.ID
	if !ownOnly && !assignedToMe {
		allowed := AllowedTypes(p)
		if len(allowed) == 0 {
			return Page{}, fmt.Errorf("no rights to view appeals: %w", httpx.ErrForbidden)
		}
		for _, t := range filter.Types {
			if !typeAllowed(p, t) {
				return Page{}, fmt.Errorf("no rights for %s appeals: %w", t, httpx.ErrForbidden)
			}
		}
		effective := filter.Types
		if len(effective) == 0 {
			effective = allowed
		}
		visible := map[Status]bool{}
		for _, t := range effective {
			for _, st := range AllowedStatuses(p, t) {
				visible[st] = true
			}
		}
		if len(filter.Statuses) == 0 {
			for st := range visible {
				filter.Statuses = append(filter.Statuses, st)
			}
		} else {
			kept := filter.Statuses[:0]
			for _, st := range filter.Statuses {
				if visible[st] {
					kept = append(kept, st)
				}
			}
			if len(kept) == 0 {
				return Page{}, fmt.Errorf("no rights for the requested statuses: %w", httpx.ErrForbidden)
			}
			filter.Statuses = kept
		}
		filter.Types = effective
	}
	return s.repo.List(ctx, filter)
}

// claimLocked assigns the pending appeal to the moderator inside an open
// transaction. The appeal row is locked so concurrent claims serialize; the
// loser observes the status flip and gets ErrConflict. Returns the persisted
// "taken into work" system message.
func (s *Service) claimLocked(ctx context.Context, tx TxRepository, p rbac.Principal, appealID uuid.UUID) (Message, error) {
	appeal, err := tx.GetAppealForUpdate(ctx, appealID)
	if err != nil {
		return Message{}, err
	}
	if appeal.Status != StatusPending {
		return Message{}, fmt.Errorf("appeal already taken: %w", httpx.ErrConflict)
	}
	if _, err := tx.ReleaseActiveAssignment(ctx, appealID, false); err != nil {
		return Message{}, err
	}
	if err := tx.CreateAssignment(ctx, appealID, p.ID); err != nil {
		return Message{}, err
	}
	if err := tx.UpdateStatus(ctx, appealID, StatusInProgress); err != nil {
		return Message{}, err
	}
	return tx.InsertMessage(ctx, Message{
		AppealID: appealID,
		UserID:   p.ID,
		Message:  "Appeal taken into work",
		IsSystem: true,
	})
}

func (s *Service) afterClaim(ctx context.Context, p rbac.Principal, appealID uuid.UUID, ownerID *uuid.UUID) {
	s.recordAction(ctx, &p.ID, shared.ActionAppealClaimed, map[string]any{
		"appeal_id": appealID.String(),
	})
	s.notifier.ListEvent(ctx, map[string]any{
		"type":      "status_changed",
		"appeal_id": appealID.String(),
		"status":    string(StatusInProgress),
	})
	s.notifier.CountersChanged(ctx)
	if ownerID != nil && *ownerID != p.ID {
		s.notifier.UserEvent(ctx, *ownerID, map[string]any{
			"type":      "appeal_in_progress",
			"appeal_id": appealID.String(),
		})
	}
}

// PostMessage appends a chat message. A moderator's first message on a
// pending appeal claims it in the same transaction ("taken into work" system
// message included), so the claim and the message land atomically.
func (s *Service) PostMessage(ctx context.Context, p rbac.Principal, appealID uuid.UUID, text string, attachmentIDs []string) (Message, error) {
	if text == "" || len(text) > MaxMessageLength {
		return Message{}, fmt.Errorf("message must be 1..%d characters: %w", MaxMessageLength, httpx.ErrValidation)
	}

	view, err := s.repo.GetView(ctx, appealID)
	if err != nil {
		return Message{}, err
	}
	if view.Status.Terminal() {
		return Message{}, fmt.Errorf("%w: %w", ErrAppealClosed, httpx.ErrValidation)
	}

	isModerator := IsModerator(p)
	isAssigned := view.AssignedTo != nil && *view.AssignedTo == p.ID
	isOwner := view.IsOwner(p.ID)
	if !CanSendMessage(p, view, isAssigned, isModerator, isOwner) {
		return Message{}, fmt.Errorf("not allowed to post to this appeal: %w", httpx.ErrForbidden)
	}

	claim := isModerator && view.Status == StatusPending && !isAssigned
	if claim {
		blocked, err := s.repo.CannotReassign(ctx, appealID, p.ID)
		if err != nil {
			return Message{}, err
		}
		if blocked {
			return Message{}, fmt.Errorf("%w: %w", ErrCannotReassign, httpx.ErrForbidden)
		}
	}

	msg := Message{
		AppealID: appealID,
		UserID:   p.ID,
		Message:  text,
		Metadata: MessageMetadata{AttachmentIDs: attachmentIDs},
	}
	var claimMsg Message
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if claim {
			if claimMsg, err = s.claimLocked(ctx, tx, p, appealID); err != nil {
				return err
			}
		}
		msg, err = tx.InsertMessage(ctx, msg)
		return err
	})
	if err != nil {
		return Message{}, err
	}
	msg.UserName = p.Username

	if claim {
		s.afterClaim(ctx, p, appealID, view.UserID)
		claimMsg.UserName = p.Username
		s.notifier.AppealEvent(ctx, appealID, MessagePayload(claimMsg))
	}
	s.notifier.AppealEvent(ctx, appealID, MessagePayload(msg))
	if view.UserID != nil && *view.UserID != p.ID {
		s.notifier.UserEvent(ctx, *view.UserID, map[string]any{
			"type":      "new_message",
			"appeal_id": appealID.String(),
		})
	}
	return msg, nil
}

// Unassign releases the active moderator and returns the appeal to the
// pending queue. The released moderator is durably barred from taking the
// appeal again.
func (s *Service) Unassign(ctx context.Context, p rbac.Principal, appealID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appeal, err := tx.GetAppealForUpdate(ctx, appealID)
		if err != nil {
			return err
		}
		if appeal.Status.Terminal() {
			return fmt.Errorf("%w: %w", ErrAppealClosed, httpx.ErrConflict)
		}
		released, err := tx.ReleaseActiveAssignment(ctx, appealID, false)
		if err != nil {
			return err
		}
		if released != nil {
			err = tx.InsertHistory(ctx, AssignmentHistory{
				AppealID:       appealID,
				UserID:         released.UserID,
				AssignedAt:     released.AssignedAt,
				ReleasedAt:     s.now(),
				CannotReassign: true,
			})
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, appealID, StatusPending); err != nil {
			return err
		}
		_, err = tx.InsertMessage(ctx, Message{
			AppealID: appealID,
			UserID:   p.ID,
			Message:  "Moderator released the appeal. Awaiting new assignment.",
			IsSystem: true,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, &p.ID, shared.ActionAppealReassign, map[string]any{
		"appeal_id": appealID.String(),
		"mode":      "unassign",
	})
	s.broadcastStatus(ctx, appealID, StatusPending, "reassigned")
	return nil
}

// ReassignToSupportModerator hands the appeal from a support staffer to the
// moderator they report to, chosen by the latest active support assignment.
func (s *Service) ReassignToSupportModerator(ctx context.Context, p rbac.Principal, appealID uuid.UUID) error {
	sa, err := s.repo.ActiveSupportAssignment(ctx, p.ID)
	if err != nil {
		return err
	}
	if sa == nil {
		return fmt.Errorf("no active moderator assigned to this support: %w", httpx.ErrNotFound)
	}
	moderator, err := s.repo.UserRef(ctx, sa.ModeratorID)
	if err != nil {
		return err
	}

	err = s.reassignTo(ctx, p, appealID, sa.ModeratorID,
		fmt.Sprintf("Appeal reassigned to %s (assigned moderator)", moderator.Username))
	if err != nil {
		return err
	}

	s.recordAction(ctx, &p.ID, shared.ActionAppealReassign, map[string]any{
		"appeal_id": appealID.String(),
		"mode":      "to_support_moderator",
		"moderator": sa.ModeratorID.String(),
	})
	return nil
}

// ReassignToModerator reassigns the appeal to an explicitly chosen moderator.
func (s *Service) ReassignToModerator(ctx context.Context, p rbac.Principal, appealID, moderatorID uuid.UUID) error {
	if _, err := s.repo.UserRef(ctx, moderatorID); err != nil {
		return err
	}
	err := s.reassignTo(ctx, p, appealID, moderatorID, "Appeal reassigned to a new moderator")
	if err != nil {
		return err
	}
	s.recordAction(ctx, &p.ID, shared.ActionAppealReassign, map[string]any{
		"appeal_id": appealID.String(),
		"mode":      "to_moderator",
		"moderator": moderatorID.String(),
	})
	return nil
}

func (s *Service) reassignTo(ctx context.Context, p rbac.Principal, appealID, moderatorID uuid.UUID, systemMessage string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appeal, err := tx.GetAppealForUpdate(ctx, appealID)
		if err != nil {
			return err
		}
		if appeal.Status.Terminal() {
			return fmt.Errorf("%w: %w", ErrAppealClosed, httpx.ErrConflict)
		}
		released, err := tx.ReleaseActiveAssignment(ctx, appealID, false)
		if err != nil {
			return err
		}
		if released != nil {
			err = tx.InsertHistory(ctx, AssignmentHistory{
				AppealID:   appealID,
				UserID:     released.UserID,
				AssignedAt: released.AssignedAt,
				ReleasedAt: s.now(),
			})
			if err != nil {
				return err
			}
		}
		if err := tx.CreateAssignment(ctx, appealID, moderatorID); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, appealID, StatusInProgress); err != nil {
			return err
		}
		_, err = tx.InsertMessage(ctx, Message{
			AppealID: appealID,
			UserID:   p.ID,
			Message:  systemMessage,
			IsSystem: true,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.broadcastStatus(ctx, appealID, StatusInProgress, "reassigned")
	s.notifier.UserEvent(ctx, moderatorID, map[string]any{
		"type":      "appeal_assigned",
		"appeal_id": appealID.String(),
	})
	if s.tasks != nil {
		s.tasks.EnqueueAssignmentNotice(ctx, appealID, moderatorID)
	}
	return nil
}

// Close finishes an appeal with a terminal status, releasing the active
// moderator.
func (s *Service) Close(ctx context.Context, p rbac.Principal, appealID uuid.UUID, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("close requires resolved or rejected, got %q: %w", status, httpx.ErrValidation)
	}
	closedMessage := "Appeal closed"
	if status == StatusRejected {
		closedMessage = "Appeal rejected"
	}
	return s.close(ctx, p, appealID, status, closedMessage)
}

// ForceClose resolves an appeal regardless of its assignment, recording the
// reason in the chat.
func (s *Service) ForceClose(ctx context.Context, p rbac.Principal, appealID uuid.UUID, reason string) error {
	return s.close(ctx, p, appealID, StatusResolved,
		fmt.Sprintf("Appeal force-closed. Reason: %s", reason))
}

func (s *Service) close(ctx context.Context, p rbac.Principal, appealID uuid.UUID, status Status, systemMessage string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		appeal, err := tx.GetAppealForUpdate(ctx, appealID)
		if err != nil {
			return err
		}
		if appeal.Status.Terminal() {
			return fmt.Errorf("%w: %w", ErrAppealClosed, httpx.ErrConflict)
		}
		released, err := tx.ReleaseActiveAssignment(ctx, appealID, false)
		if err != nil {
			return err
		}
		if released != nil {
			err = tx.InsertHistory(ctx, AssignmentHistory{
				AppealID:   appealID,
				UserID:     released.UserID,
				AssignedAt: released.AssignedAt,
				ReleasedAt: s.now(),
			})
			if err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, appealID, status); err != nil {
			return err
		}
		_, err = tx.InsertMessage(ctx, Message{
			AppealID: appealID,
			UserID:   p.ID,
			Message:  systemMessage,
			IsSystem: true,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.recordAction(ctx, &p.ID, shared.ActionAppealClosed, map[string]any{
		"appeal_id": appealID.String(),
		"status":    string(status),
	})
	s.broadcastStatus(ctx, appealID, status, "closed")
	return nil
}

// CanReassign reports whether the user may take the appeal, i.e. has not
// voluntarily given it up before.
func (s *Service) CanReassign(ctx context.Context, userID, appealID uuid.UUID) (bool, error) {
	blocked, err := s.repo.CannotReassign(ctx, appealID, userID)
	return !blocked, err
}

// Counters returns the dashboard counters for the user.
func (s *Service) Counters(ctx context.Context, userID uuid.UUID) (Counters, error) {
	return s.repo.Counters(ctx, userID)
}

// SupportModeratorInfo is the assigned moderator of a support staffer plus
// the moderator's whole support team.
type SupportModeratorInfo struct {
	Moderator UserRef   `json:"moderator"`
	Team      []UserRef `json:"team"`
}

// SupportModerator resolves the moderator the support staffer reports to.
func (s *Service) SupportModerator(ctx context.Context, supportID uuid.UUID) (SupportModeratorInfo, error) {
	sa, err := s.repo.ActiveSupportAssignment(ctx, supportID)
	if err != nil {
		return SupportModeratorInfo{}, err
	}
	if sa == nil {
		return SupportModeratorInfo{}, fmt.Errorf("no assigned moderator: %w", httpx.ErrNotFound)
	}
	moderator, err := s.repo.UserRef(ctx, sa.ModeratorID)
	if err != nil {
		return SupportModeratorInfo{}, err
	}
	team, err := s.repo.SupportTeam(ctx, sa.ModeratorID)
	if err != nil {
		return SupportModeratorInfo{}, err
	}
	return SupportModeratorInfo{Moderator: moderator, Team: team}, nil
}

// AddAttachment records uploaded file metadata after an access check.
func (s *Service) AddAttachment(ctx context.Context, p rbac.Principal, att Attachment) error {
	view, err := s.repo.GetView(ctx, att.AppealID)
	if err != nil {
		return err
	}
	if err := CheckAccess(p, view); err != nil {
		return err
	}
	if view.Status.Terminal() {
		return fmt.Errorf("%w: %w", ErrAppealClosed, httpx.ErrValidation)
	}
	return s.repo.CreateAttachment(ctx, att)
}

// Attachment fetches attachment metadata after an access check on its appeal.
func (s *Service) Attachment(ctx context.Context, p rbac.Principal, id uuid.UUID) (Attachment, error) {
	att, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return Attachment{}, err
	}
	if _, err := s.Get(ctx, p, att.AppealID); err != nil {
		return Attachment{}, err
	}
	return att, nil
}

// AutoRelease returns every assignment idle for longer than the window to
// the pending queue. Auto-released moderators stay eligible to reclaim.
// Returns the number of appeals released.
func (s *Service) AutoRelease(ctx context.Context, idleWindow time.Duration) (int, error) {
	stale, err := s.repo.StaleAssignments(ctx, s.now().Add(-idleWindow))
	if err != nil {
		return 0, err
	}

	released := 0
	for _, a := range stale {
		appealID := a.AppealID
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.GetAppealForUpdate(ctx, appealID); err != nil {
				return err
			}
			rel, err := tx.ReleaseActiveAssignment(ctx, appealID, true)
			if err != nil {
				return err
			}
			if rel == nil {
				return nil
			}
			err = tx.InsertHistory(ctx, AssignmentHistory{
				AppealID:       appealID,
				UserID:         rel.UserID,
				AssignedAt:     rel.AssignedAt,
				ReleasedAt:     s.now(),
				IsAutoReleased: true,
			})
			if err != nil {
				return err
			}
			if err := tx.UpdateStatus(ctx, appealID, StatusPending); err != nil {
				return err
			}
			_, err = tx.InsertMessage(ctx, Message{
				AppealID: appealID,
				UserID:   rel.UserID,
				Message:  "Appeal returned to the queue after moderator inactivity",
				IsSystem: true,
			})
			return err
		})
		if err != nil {
			s.logger.Error("auto release failed", "appeal_id", appealID, "error", err)
			continue
		}
		released++
		s.broadcastStatus(ctx, appealID, StatusPending, "reassigned")
	}
	return released, nil
}

func (s *Service) broadcastStatus(ctx context.Context, appealID uuid.UUID, status Status, event string) {
	s.notifier.AppealEvent(ctx, appealID, map[string]any{
		"type":      "status_changed",
		"appeal_id": appealID.String(),
		"status":    string(status),
	})
	s.notifier.ListEvent(ctx, map[string]any{
		"type":      event,
		"appeal_id": appealID.String(),
		"status":    string(status),
	})
	s.notifier.CountersChanged(ctx)
}

func (s *Service) recordAction(ctx context.Context, userID *uuid.UUID, action string, details map[string]any) {
	if s.audit == nil || userID == nil {
		return
	}
	log := shared.ActionLog{UserID: *userID, ActionType: action, Details: details}
	if ip, ok := shared.ClientIPFromContext(ctx); ok {
		log.IP = ip
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("action log write failed", "action", action, "error", err)
	}
}

// MessagePayload is the wire shape of one chat message, shared by the REST
// snapshot and the websocket fan-out.
func MessagePayload(m Message) map[string]any {
	payload := map[string]any{
		"id":         m.ID.String(),
		"appeal_id":  m.AppealID.String(),
		"user_id":    m.UserID.String(),
		"message":    m.Message,
		"is_system":  m.IsSystem,
		"created_at": m.CreatedAt,
		"user_name":  m.UserName,
	}
	if len(m.Metadata.AttachmentIDs) > 0 {
		payload["attachments"] = m.Metadata.AttachmentIDs
	}
	return payload
}
