package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionLog represents a record stored in user_action_logs.
type ActionLog struct {
	UserID     uuid.UUID
	ActionType string
	Details    map[string]any
	IP         string
	UserAgent  string
	At         time.Time
}

// Well-known action types.
const (
	ActionAppealCreated   = "appeal_created"
	ActionAppealClaimed   = "appeal_claimed"
	ActionAppealClosed    = "appeal_closed"
	ActionAppealReassign  = "appeal_reassigned"
	ActionUserBanned      = "user_banned"
	ActionUserUnbanned    = "user_unbanned"
	ActionRoleChanged     = "role_changed"
	ActionOverrideChanged = "override_changed"
	ActionSettingsChanged = "settings_changed"
)

// ActionLogger writes records into user_action_logs.
type ActionLogger struct {
	pool *pgxpool.Pool
}

// NewActionLogger returns a new ActionLogger.
func NewActionLogger(pool *pgxpool.Pool) *ActionLogger {
	return &ActionLogger{pool: pool}
}

// Record persists the log entry.
func (l *ActionLogger) Record(ctx context.Context, log ActionLog) error {
	if l == nil {
		return errors.New("action logger not initialised")
	}
	if log.ActionType == "" {
		return errors.New("action log requires action_type")
	}
	details, err := json.Marshal(log.Details)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO user_action_logs (user_id, action_type, action_details, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		log.UserID, log.ActionType, details, log.IP, log.UserAgent, log.At)
	return err
}
