// Package jobs defines the background tasks processed by the worker binary:
// the periodic auto-release sweep over idle assignments and the email notice
// sent to a moderator when an appeal lands on them.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names, shared between the enqueue side and the worker.
const (
	TypeAutoReleaseSweep = "appeals:auto_release_sweep"
	TypeAssignmentNotice = "appeals:assignment_notice"
)

// AssignmentNoticePayload identifies the assignment to announce.
type AssignmentNoticePayload struct {
	AppealID    uuid.UUID `json:"appeal_id"`
	ModeratorID uuid.UUID `json:"moderator_id"`
}

// NewAutoReleaseSweepTask builds the periodic sweep task. Unique per queue so
// overlapping schedules collapse into one run.
func NewAutoReleaseSweepTask() *asynq.Task {
	return asynq.NewTask(TypeAutoReleaseSweep, nil,
		asynq.MaxRetry(3),
		asynq.Unique(time.Minute),
	)
}

// NewAssignmentNoticeTask builds the email notice task for one assignment.
func NewAssignmentNoticeTask(appealID, moderatorID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(AssignmentNoticePayload{AppealID: appealID, ModeratorID: moderatorID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAssignmentNotice, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}
