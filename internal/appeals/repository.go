package appeals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
)

// Repository defines appeal data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetView(ctx context.Context, id uuid.UUID) (View, error)
	List(ctx context.Context, filter ListFilter) (Page, error)
	ListMessages(ctx context.Context, appealID uuid.UUID) ([]Message, error)
	ActiveAssignment(ctx context.Context, appealID uuid.UUID) (*Assignment, error)
	CannotReassign(ctx context.Context, appealID, userID uuid.UUID) (bool, error)
	ActiveSupportAssignment(ctx context.Context, supportID uuid.UUID) (*SupportAssignment, error)
	SupportTeam(ctx context.Context, moderatorID uuid.UUID) ([]UserRef, error)
	Counters(ctx context.Context, userID uuid.UUID) (Counters, error)
	UserRef(ctx context.Context, userID uuid.UUID) (UserRef, error)

	CreateAttachment(ctx context.Context, att Attachment) error
	GetAttachment(ctx context.Context, id uuid.UUID) (Attachment, error)
	ListAttachments(ctx context.Context, appealID uuid.UUID) ([]Attachment, error)

	StaleAssignments(ctx context.Context, idleSince time.Time) ([]Assignment, error)
}

// TxRepository defines the operations available inside one transaction. Every
// multi-row state transition of the assignment machine runs through this so a
// crash cannot leave two active assignments or an orphaned release.
type TxRepository interface {
	GetAppealForUpdate(ctx context.Context, id uuid.UUID) (Appeal, error)
	CreateAppeal(ctx context.Context, appeal Appeal, detail Detail) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// ReleaseActiveAssignment closes the active assignment row, if any, with
	// a conditional "released_at IS NULL" update and returns the released
	// row. Returns nil when no assignment was active.
	ReleaseActiveAssignment(ctx context.Context, appealID uuid.UUID, auto bool) (*Assignment, error)
	CreateAssignment(ctx context.Context, appealID, userID uuid.UUID) error
	InsertHistory(ctx context.Context, h AssignmentHistory) error
	InsertMessage(ctx context.Context, m Message) (Message, error)
}

// UserRef is the slice of a user the appeals package needs: id, display name
// and contact email.
type UserRef struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"name"`
	Email    string    `json:"email"`
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appeals: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &pgTxRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const viewQuery = `
SELECT a.id, a.user_id, a.type, a.status, a.created_at,
       COALESCE(d.description, ''), COALESCE(d.nickname, ''), COALESCE(d.email, ''),
       COALESCE(d.violator_nickname, ''), COALESCE(d.admin_nickname, ''),
       COALESCE(owner.username, ''),
       act.user_id, COALESCE(assignee.username, '')
FROM appeals a
LEFT JOIN appeal_details d ON d.appeal_id = a.id
LEFT JOIN users owner ON owner.id = a.user_id
LEFT JOIN appeal_assignments act ON act.appeal_id = a.id AND act.released_at IS NULL
LEFT JOIN users assignee ON assignee.id = act.user_id
WHERE a.id = $1`

func (r *pgRepository) GetView(ctx context.Context, id uuid.UUID) (View, error) {
	var v View
	err := r.pool.QueryRow(ctx, viewQuery, id).Scan(
		&v.ID, &v.UserID, &v.Type, &v.Status, &v.CreatedAt,
		&v.Detail.Description, &v.Detail.Nickname, &v.Detail.Email,
		&v.Detail.ViolatorNickname, &v.Detail.AdminNickname,
		&v.UserName, &v.AssignedTo, &v.AssignedName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return View{}, fmt.Errorf("appeal %s: %w", id, httpx.ErrNotFound)
		}
		return View{}, fmt.Errorf("appeals: get view: %w", err)
	}
	v.Detail.AppealID = v.ID
	return v, nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) (Page, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "a.status = ANY("+arg(statuses)+")")
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		where = append(where, "a.type = ANY("+arg(types)+")")
	}
	if filter.AssignedTo != nil {
		where = append(where, `EXISTS (
			SELECT 1 FROM appeal_assignments aa
			WHERE aa.appeal_id = a.id AND aa.user_id = `+arg(*filter.AssignedTo)+` AND aa.released_at IS NULL)`)
	}
	if filter.OwnerID != nil {
		where = append(where, "a.user_id = "+arg(*filter.OwnerID))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		p := arg(pattern)
		where = append(where, `(a.id::text ILIKE `+p+`
			OR EXISTS (SELECT 1 FROM appeal_details d WHERE d.appeal_id = a.id AND d.description ILIKE `+p+`)
			OR EXISTS (SELECT 1 FROM users u WHERE u.id = a.user_id AND u.username ILIKE `+p+`)
			OR EXISTS (SELECT 1 FROM appeal_assignments aa JOIN users m ON m.id = aa.user_id
				WHERE aa.appeal_id = a.id AND m.username ILIKE `+p+`))`)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM appeals a"+clause, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("appeals: count: %w", err)
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	pageNum := filter.Page
	if pageNum <= 0 {
		pageNum = 1
	}
	query := `
SELECT a.id, a.type, a.status, a.created_at, a.user_id,
       COALESCE(owner.username, ''), COALESCE(d.description, ''), COALESCE(assignee.username, '')
FROM appeals a
LEFT JOIN appeal_details d ON d.appeal_id = a.id
LEFT JOIN users owner ON owner.id = a.user_id
LEFT JOIN appeal_assignments act ON act.appeal_id = a.id AND act.released_at IS NULL
LEFT JOIN users assignee ON assignee.id = act.user_id` + clause + `
ORDER BY a.created_at DESC
LIMIT ` + arg(perPage) + " OFFSET " + arg((pageNum-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("appeals: list: %w", err)
	}
	defer rows.Close()

	summaries := make([]Summary, 0, perPage)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Type, &s.Status, &s.CreatedAt, &s.UserID, &s.UserName, &s.Description, &s.AssignedTo); err != nil {
			return Page{}, fmt.Errorf("appeals: scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	return Page{
		Appeals:    summaries,
		Total:      total,
		PageNum:    pageNum,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

func (r *pgRepository) ListMessages(ctx context.Context, appealID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
SELECT m.id, m.appeal_id, m.user_id, COALESCE(u.username, ''), m.message, m.is_system,
       COALESCE(m.metadata, '{}'::jsonb), m.created_at
FROM appeal_messages m
LEFT JOIN users u ON u.id = m.user_id
WHERE m.appeal_id = $1
ORDER BY m.created_at ASC`, appealID)
	if err != nil {
		return nil, fmt.Errorf("appeals: list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AppealID, &m.UserID, &m.UserName, &m.Message, &m.IsSystem, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("appeals: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *pgRepository) ActiveAssignment(ctx context.Context, appealID uuid.UUID) (*Assignment, error) {
	var a Assignment
	err := r.pool.QueryRow(ctx, `
SELECT appeal_id, user_id, assigned_at, released_at, is_auto_released
FROM appeal_assignments
WHERE appeal_id = $1 AND released_at IS NULL`, appealID).
		Scan(&a.AppealID, &a.UserID, &a.AssignedAt, &a.ReleasedAt, &a.IsAutoReleased)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("appeals: active assignment: %w", err)
	}
	return &a, nil
}

func (r *pgRepository) CannotReassign(ctx context.Context, appealID, userID uuid.UUID) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM appeal_assignment_history
	WHERE appeal_id = $1 AND user_id = $2 AND cannot_reassign = TRUE)`, appealID, userID).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("appeals: cannot reassign lookup: %w", err)
	}
	return blocked, nil
}

func (r *pgRepository) ActiveSupportAssignment(ctx context.Context, supportID uuid.UUID) (*SupportAssignment, error) {
	var sa SupportAssignment
	err := r.pool.QueryRow(ctx, `
SELECT support_id, moderator_id, assigned_at, is_active
FROM support_assignments
WHERE support_id = $1 AND is_active = TRUE
ORDER BY assigned_at DESC
LIMIT 1`, supportID).Scan(&sa.SupportID, &sa.ModeratorID, &sa.AssignedAt, &sa.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("appeals: support assignment: %w", err)
	}
	return &sa, nil
}

func (r *pgRepository) SupportTeam(ctx context.Context, moderatorID uuid.UUID) ([]UserRef, error) {
	rows, err := r.pool.Query(ctx, `
SELECT u.id, u.username, u.email
FROM support_assignments sa
JOIN users u ON u.id = sa.support_id
WHERE sa.moderator_id = $1 AND sa.is_active = TRUE
ORDER BY sa.assigned_at DESC`, moderatorID)
	if err != nil {
		return nil, fmt.Errorf("appeals: support team: %w", err)
	}
	defer rows.Close()

	var team []UserRef
	for rows.Next() {
		var m UserRef
		if err := rows.Scan(&m.ID, &m.Username, &m.Email); err != nil {
			return nil, err
		}
		team = append(team, m)
	}
	return team, rows.Err()
}

func (r *pgRepository) Counters(ctx context.Context, userID uuid.UUID) (Counters, error) {
	var c Counters
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appeals WHERE status = 'pending'`).Scan(&c.Pending)
	if err != nil {
		return Counters{}, fmt.Errorf("appeals: pending counter: %w", err)
	}
	if userID != uuid.Nil {
		err = r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM appeal_assignments aa
JOIN appeals a ON a.id = aa.appeal_id
WHERE aa.user_id = $1 AND aa.released_at IS NULL AND a.status IN ('pending', 'in_progress')`, userID).
			Scan(&c.UserAssigned)
		if err != nil {
			return Counters{}, fmt.Errorf("appeals: assigned counter: %w", err)
		}
	}
	return c, nil
}

func (r *pgRepository) UserRef(ctx context.Context, userID uuid.UUID) (UserRef, error) {
	var u UserRef
	err := r.pool.QueryRow(ctx, `SELECT id, username, email FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRef{}, fmt.Errorf("user %s: %w", userID, httpx.ErrNotFound)
		}
		return UserRef{}, err
	}
	return u, nil
}

func (r *pgRepository) CreateAttachment(ctx context.Context, att Attachment) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO appeal_attachments (id, appeal_id, file_name, file_size, mime_type, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		att.ID, att.AppealID, att.FileName, att.FileSize, att.MimeType, att.UploadedBy)
	if err != nil {
		return fmt.Errorf("appeals: create attachment: %w", err)
	}
	return nil
}

func (r *pgRepository) GetAttachment(ctx context.Context, id uuid.UUID) (Attachment, error) {
	var att Attachment
	err := r.pool.QueryRow(ctx, `
SELECT id, appeal_id, file_name, file_size, mime_type, uploaded_by, created_at
FROM appeal_attachments WHERE id = $1`, id).
		Scan(&att.ID, &att.AppealID, &att.FileName, &att.FileSize, &att.MimeType, &att.UploadedBy, &att.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Attachment{}, fmt.Errorf("attachment %s: %w", id, httpx.ErrNotFound)
		}
		return Attachment{}, err
	}
	return att, nil
}

func (r *pgRepository) ListAttachments(ctx context.Context, appealID uuid.UUID) ([]Attachment, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, appeal_id, file_name, file_size, mime_type, uploaded_by, created_at
FROM appeal_attachments WHERE appeal_id = $1 ORDER BY created_at ASC`, appealID)
	if err != nil {
		return nil, fmt.Errorf("appeals: list attachments: %w", err)
	}
	defer rows.Close()

	var atts []Attachment
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.AppealID, &att.FileName, &att.FileSize, &att.MimeType, &att.UploadedBy, &att.CreatedAt); err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}
	return atts, rows.Err()
}

// StaleAssignments returns active assignments on in-progress appeals whose
// last non-system moderator message predates idleSince.
func (r *pgRepository) StaleAssignments(ctx context.Context, idleSince time.Time) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `
SELECT aa.appeal_id, aa.user_id, aa.assigned_at, aa.released_at, aa.is_auto_released
FROM appeal_assignments aa
JOIN appeals a ON a.id = aa.appeal_id
WHERE aa.released_at IS NULL
  AND a.status = 'in_progress'
  AND COALESCE((
	SELECT MAX(m.created_at) FROM appeal_messages m
	WHERE m.appeal_id = aa.appeal_id AND m.user_id = aa.user_id AND m.is_system = FALSE
  ), aa.assigned_at) < $1`, idleSince)
	if err != nil {
		return nil, fmt.Errorf("appeals: stale assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.AppealID, &a.UserID, &a.AssignedAt, &a.ReleasedAt, &a.IsAutoReleased); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTxRepository) GetAppealForUpdate(ctx context.Context, id uuid.UUID) (Appeal, error) {
	var a Appeal
	err := t.tx.QueryRow(ctx, `
SELECT id, user_id, type, status, created_at
FROM appeals WHERE id = $1 FOR UPDATE`, id).
		Scan(&a.ID, &a.UserID, &a.Type, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appeal{}, fmt.Errorf("appeal %s: %w", id, httpx.ErrNotFound)
		}
		return Appeal{}, fmt.Errorf("appeals: lock appeal: %w", err)
	}
	return a, nil
}

func (t *pgTxRepository) CreateAppeal(ctx context.Context, appeal Appeal, detail Detail) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO appeals (id, user_id, type, status, created_at)
VALUES ($1, $2, $3, $4, NOW())`, appeal.ID, appeal.UserID, appeal.Type, appeal.Status)
	if err != nil {
		return fmt.Errorf("appeals: insert appeal: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO appeal_details (appeal_id, description, nickname, email, violator_nickname, admin_nickname)
VALUES ($1, $2, $3, $4, $5, $6)`,
		appeal.ID, detail.Description, detail.Nickname, detail.Email, detail.ViolatorNickname, detail.AdminNickname)
	if err != nil {
		return fmt.Errorf("appeals: insert detail: %w", err)
	}
	return nil
}

func (t *pgTxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE appeals SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("appeals: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appeal %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (t *pgTxRepository) ReleaseActiveAssignment(ctx context.Context, appealID uuid.UUID, auto bool) (*Assignment, error) {
	var a Assignment
	err := t.tx.QueryRow(ctx, `
UPDATE appeal_assignments
SET released_at = NOW(), is_auto_released = $2
WHERE appeal_id = $1 AND released_at IS NULL
RETURNING appeal_id, user_id, assigned_at, released_at, is_auto_released`, appealID, auto).
		Scan(&a.AppealID, &a.UserID, &a.AssignedAt, &a.ReleasedAt, &a.IsAutoReleased)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("appeals: release assignment: %w", err)
	}
	return &a, nil
}

func (t *pgTxRepository) CreateAssignment(ctx context.Context, appealID, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO appeal_assignments (appeal_id, user_id, assigned_at, is_auto_released)
VALUES ($1, $2, NOW(), FALSE)`, appealID, userID)
	if err != nil {
		return fmt.Errorf("appeals: create assignment: %w", err)
	}
	return nil
}

func (t *pgTxRepository) InsertHistory(ctx context.Context, h AssignmentHistory) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO appeal_assignment_history (appeal_id, user_id, assigned_at, released_at, is_auto_released, cannot_reassign)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (appeal_id, user_id) DO UPDATE
SET released_at = EXCLUDED.released_at,
    is_auto_released = EXCLUDED.is_auto_released,
    cannot_reassign = appeal_assignment_history.cannot_reassign OR EXCLUDED.cannot_reassign`,
		h.AppealID, h.UserID, h.AssignedAt, h.ReleasedAt, h.IsAutoReleased, h.CannotReassign)
	if err != nil {
		return fmt.Errorf("appeals: insert history: %w", err)
	}
	return nil
}

func (t *pgTxRepository) InsertMessage(ctx context.Context, m Message) (Message, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx, `
INSERT INTO appeal_messages (id, appeal_id, user_id, message, is_system, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING created_at`, m.ID, m.AppealID, m.UserID, m.Message, m.IsSystem, m.Metadata).
		Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("appeals: insert message: %w", err)
	}
	return m, nil
}
