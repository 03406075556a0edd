package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appealdesk/appealdesk/internal/shared"
)

// Repository defines the database side of reporting.
type Repository interface {
	AppealStats(ctx context.Context, filter AppealStatsFilter, page shared.Pagination) ([]AppealStatRow, int, error)
	AppealOutcomes(ctx context.Context, search string) ([]AppealOutcome, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// AppealStats lists appeals with the last moderator who held each one. The
// latest assignment by release (or assignment) time wins, finished or not.
func (r *PGRepository) AppealStats(ctx context.Context, filter AppealStatsFilter, page shared.Pagination) ([]AppealStatRow, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		conds = append(conds, "a.status = ANY("+arg(filter.Statuses)+")")
	}
	if len(filter.Types) > 0 {
		conds = append(conds, "a.type = ANY("+arg(filter.Types)+")")
	}
	if filter.DateFrom != nil {
		conds = append(conds, "a.created_at >= "+arg(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		// Inclusive of the whole end day.
		conds = append(conds, "a.created_at < "+arg(filter.DateTo.Add(24*time.Hour)))
	}
	if filter.Moderator != "" {
		conds = append(conds, "last_mod.username ILIKE "+arg("%"+filter.Moderator+"%"))
	}

	clause := ""
	if len(conds) > 0 {
		clause = " WHERE " + strings.Join(conds, " AND ")
	}

	from := `
FROM appeals a
LEFT JOIN users owner ON owner.id = a.user_id
LEFT JOIN LATERAL (
	SELECT u.username, aa.assigned_at, aa.released_at
	FROM appeal_assignments aa
	JOIN users u ON u.id = aa.user_id
	WHERE aa.appeal_id = a.id
	ORDER BY COALESCE(aa.released_at, aa.assigned_at) DESC
	LIMIT 1
) last_mod ON TRUE`

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+from+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reports: count appeal stats: %w", err)
	}

	query := `
SELECT a.id, a.type, a.status, a.created_at,
       COALESCE(owner.username, 'anonymous'),
       COALESCE(last_mod.username, ''),
       last_mod.assigned_at, last_mod.released_at` + from + clause + `
ORDER BY a.created_at DESC
LIMIT ` + arg(page.PerPage) + " OFFSET " + arg(page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("reports: appeal stats: %w", err)
	}
	defer rows.Close()

	var out []AppealStatRow
	for rows.Next() {
		var (
			row        AppealStatRow
			assignedAt *time.Time
			releasedAt *time.Time
		)
		if err := rows.Scan(&row.ID, &row.Type, &row.Status, &row.CreatedAt,
			&row.Creator, &row.Moderator, &assignedAt, &releasedAt); err != nil {
			return nil, 0, err
		}
		row.AssignedAt = assignedAt
		if row.Status == "resolved" || row.Status == "rejected" {
			row.Resolution = row.Status
			if releasedAt != nil {
				row.ClosedAt = releasedAt
			} else {
				row.ClosedAt = assignedAt
			}
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// AppealOutcomes counts resolved and rejected appeals per assigned moderator.
func (r *PGRepository) AppealOutcomes(ctx context.Context, search string) ([]AppealOutcome, error) {
	query := `
SELECT u.username,
       COUNT(*) FILTER (WHERE a.status = 'resolved'),
       COUNT(*) FILTER (WHERE a.status = 'rejected')
FROM appeal_assignments aa
JOIN appeals a ON a.id = aa.appeal_id
JOIN users u ON u.id = aa.user_id`
	var args []any
	if search != "" {
		query += " WHERE u.username ILIKE $1"
		args = append(args, "%"+search+"%")
	}
	query += " GROUP BY u.username"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reports: appeal outcomes: %w", err)
	}
	defer rows.Close()

	var out []AppealOutcome
	for rows.Next() {
		var o AppealOutcome
		if err := rows.Scan(&o.Username, &o.Resolved, &o.Rejected); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
