package jobs

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer pushes tasks onto the queue from the API process. It satisfies
// the appeal service's TaskQueue hook.
type Enqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewEnqueuer wraps an asynq client.
func NewEnqueuer(client *asynq.Client, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{client: client, logger: logger}
}

// EnqueueAssignmentNotice schedules the email notice for a fresh assignment.
// Failures are logged, not surfaced; the assignment itself already committed.
func (e *Enqueuer) EnqueueAssignmentNotice(ctx context.Context, appealID, moderatorID uuid.UUID) {
	task, err := NewAssignmentNoticeTask(appealID, moderatorID)
	if err != nil {
		e.logger.Error("build assignment notice task", "error", err)
		return
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		e.logger.Error("enqueue assignment notice", "appeal_id", appealID, "error", err)
	}
}
