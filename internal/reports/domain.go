// Package reports serves moderation reporting: complaint reports parsed from
// the scraper's JSON drops, appeal statistics from the database, and the
// reward settings used to compute moderator payouts.
package reports

import "time"

// Complaint statuses as the scraper writes them.
const (
	ComplaintResolved = "resolved"
	ComplaintRejected = "rejected"
)

// Processing beyond this window counts as a delay and draws a penalty.
const delayThreshold = 24 * time.Hour

// Complaint is one forum complaint report as scraped. Field names follow the
// scraper's JSON contract.
type Complaint struct {
	ReportID   string `json:"report_id"`
	Title      string `json:"title"`
	Staff      string `json:"staff"`
	Status     string `json:"status"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate,omitempty"`
	ReportDate string `json:"reportDate"`
	URL        string `json:"url,omitempty"`

	// DelayHours is computed, not scraped; set only on delayed listings.
	DelayHours int `json:"delay_hours,omitempty"`
}

// ComplaintPage is a paginated complaint listing.
type ComplaintPage struct {
	Complaints []Complaint `json:"complaints"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
}

// ComplaintFilter narrows complaint listings.
type ComplaintFilter struct {
	Status string
	Date   string
	Admin  string
}

// RewardSettings drive the payout calculation.
type RewardSettings struct {
	ComplaintReward         int       `json:"complaint_reward"`
	ComplaintRejectedReward int       `json:"complaint_rejected_reward"`
	BanReward               int       `json:"ban_reward"`
	AppealReward            int       `json:"appeal_reward"`
	DelayPenalty            int       `json:"delay_penalty"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// RewardSettingsPatch updates a subset of the settings; nil fields are left
// untouched.
type RewardSettingsPatch struct {
	ComplaintReward         *int `json:"complaint_reward" validate:"omitempty,min=0"`
	ComplaintRejectedReward *int `json:"complaint_rejected_reward" validate:"omitempty,min=0"`
	BanReward               *int `json:"ban_reward" validate:"omitempty,min=0"`
	AppealReward            *int `json:"appeal_reward" validate:"omitempty,min=0"`
	DelayPenalty            *int `json:"delay_penalty" validate:"omitempty,min=0"`
}

func defaultRewardSettings(now time.Time) RewardSettings {
	return RewardSettings{
		ComplaintReward: 50,
		AppealReward:    30,
		DelayPenalty:    100,
		UpdatedAt:       now,
	}
}

// AppealStatRow describes one appeal for the statistics table, carrying the
// last moderator who touched it.
type AppealStatRow struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	Creator    string     `json:"creator"`
	Moderator  string     `json:"moderator,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
}

// AppealStatsPage is a paginated appeal statistics listing.
type AppealStatsPage struct {
	Appeals []AppealStatRow `json:"appeals"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// AppealStatsFilter narrows the appeal statistics query.
type AppealStatsFilter struct {
	Statuses  []string
	Types     []string
	DateFrom  *time.Time
	DateTo    *time.Time
	Moderator string
}

// AppealOutcome counts resolved and rejected appeals per moderator.
type AppealOutcome struct {
	Username string
	Resolved int
	Rejected int
}

// ModeratorStats is the payout sheet row for one staff member: complaint
// counts from the scraper files combined with appeal outcomes from the
// database, priced by the reward settings.
type ModeratorStats struct {
	Username           string `json:"username"`
	ComplaintsResolved int    `json:"complaints_resolved"`
	ComplaintsRejected int    `json:"complaints_rejected"`
	BansIssued         int    `json:"bans_issued"`
	Delays             int    `json:"delays"`
	Fine               int    `json:"fine"`
	AppealsResolved    int    `json:"appeals_resolved"`
	AppealsRejected    int    `json:"appeals_rejected"`
	Total              int    `json:"total"`
	PaymentPending     bool   `json:"payment_pending"`
}

// ModeratorStatsPage is a paginated payout sheet.
type ModeratorStatsPage struct {
	Users   []ModeratorStats `json:"users"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}
