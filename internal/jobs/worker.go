package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/appealdesk/appealdesk/internal/appeals"
)

// AppealSweeper releases assignments idle past the window.
type AppealSweeper interface {
	AutoRelease(ctx context.Context, idleWindow time.Duration) (int, error)
}

// UserDirectory resolves a user id to username and email.
type UserDirectory interface {
	UserRef(ctx context.Context, id uuid.UUID) (appeals.UserRef, error)
}

// Worker holds the task handlers run by the worker binary.
type Worker struct {
	sweeper    AppealSweeper
	users      UserDirectory
	mailer     Mailer
	idleWindow time.Duration
	metrics    *Metrics
	logger     *slog.Logger
}

// NewWorker wires the worker handlers. metrics may be nil.
func NewWorker(sweeper AppealSweeper, users UserDirectory, mailer Mailer, idleWindow time.Duration, metrics *Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		sweeper:    sweeper,
		users:      users,
		mailer:     mailer,
		idleWindow: idleWindow,
		metrics:    metrics,
		logger:     logger,
	}
}

// Mux returns the asynq handler mux with every task registered.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAutoReleaseSweep, w.HandleAutoReleaseSweep)
	mux.HandleFunc(TypeAssignmentNotice, w.HandleAssignmentNotice)
	return mux
}

// HandleAutoReleaseSweep returns idle in-progress appeals to the pending
// queue.
func (w *Worker) HandleAutoReleaseSweep(ctx context.Context, _ *asynq.Task) error {
	tracker := w.metrics.Track(TypeAutoReleaseSweep)
	released, err := w.sweeper.AutoRelease(ctx, w.idleWindow)
	if err != nil {
		return tracker.End(fmt.Errorf("auto release sweep: %w", err))
	}
	if released > 0 {
		w.logger.Info("auto-released idle assignments", "count", released, "idle_window", w.idleWindow)
	}
	return tracker.End(nil)
}

// HandleAssignmentNotice mails the moderator that an appeal landed on them.
func (w *Worker) HandleAssignmentNotice(ctx context.Context, task *asynq.Task) error {
	tracker := w.metrics.Track(TypeAssignmentNotice)
	var payload AssignmentNoticePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never succeed; do not retry.
		return tracker.End(fmt.Errorf("decode assignment notice: %v: %w", err, asynq.SkipRetry))
	}

	moderator, err := w.users.UserRef(ctx, payload.ModeratorID)
	if err != nil {
		return tracker.End(fmt.Errorf("lookup moderator %s: %w", payload.ModeratorID, err))
	}
	if moderator.Email == "" {
		w.logger.Warn("moderator has no email, skipping notice", "moderator_id", payload.ModeratorID)
		return tracker.End(nil)
	}

	subject := "An appeal has been assigned to you"
	body := fmt.Sprintf("Hello %s,\n\nAppeal %s is now assigned to you. Please open the moderation panel to respond.\n",
		moderator.Username, payload.AppealID)
	return tracker.End(w.mailer.Send(ctx, moderator.Email, subject, body))
}
