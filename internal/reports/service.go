package reports

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// Service combines the scraper's complaint files with appeal data from the
// database.
type Service struct {
	store  *FileStore
	repo   Repository
	audit  *shared.ActionLogger
	logger *slog.Logger
}

// NewService constructs the reports service. audit may be nil.
func NewService(store *FileStore, repo Repository, audit *shared.ActionLogger, logger *slog.Logger) *Service {
	return &Service{store: store, repo: repo, audit: audit, logger: logger}
}

// Complaints pages through scraped complaint reports, newest first.
func (s *Service) Complaints(_ context.Context, filter ComplaintFilter, page shared.Pagination) (ComplaintPage, error) {
	page = page.Normalize()
	all, err := s.store.Complaints()
	if err != nil {
		return ComplaintPage{}, err
	}

	filtered := all[:0:0]
	for _, c := range all {
		if filter.Status != "" && filter.Status != "all" && c.Status != filter.Status {
			continue
		}
		if filter.Date != "" && c.ReportDate != filter.Date {
			continue
		}
		if filter.Admin != "" && !strings.Contains(strings.ToLower(c.Staff), strings.ToLower(filter.Admin)) {
			continue
		}
		filtered = append(filtered, c)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].StartDate > filtered[j].StartDate })

	return ComplaintPage{
		Complaints: paginate(filtered, page),
		Total:      len(filtered),
		Page:       page.Page,
		PerPage:    page.PerPage,
	}, nil
}

// DelayedComplaints lists resolved complaints whose processing ran past the
// delay threshold, worst offenders first.
func (s *Service) DelayedComplaints(ctx context.Context, admin string, page shared.Pagination) (ComplaintPage, error) {
	page = page.Normalize()
	all, err := s.store.Complaints()
	if err != nil {
		return ComplaintPage{}, err
	}

	var delayed []Complaint
	for _, c := range all {
		if c.Status != ComplaintResolved {
			continue
		}
		if admin != "" && !strings.Contains(strings.ToLower(c.Staff), strings.ToLower(admin)) {
			continue
		}
		took, ok := processingTime(c)
		if !ok || took <= delayThreshold {
			continue
		}
		c.DelayHours = int((took - delayThreshold).Hours())
		delayed = append(delayed, c)
	}
	sort.Slice(delayed, func(i, j int) bool { return delayed[i].DelayHours > delayed[j].DelayHours })

	return ComplaintPage{
		Complaints: paginate(delayed, page),
		Total:      len(delayed),
		Page:       page.Page,
		PerPage:    page.PerPage,
	}, nil
}

// AppealStats pages through appeal statistics rows.
func (s *Service) AppealStats(ctx context.Context, filter AppealStatsFilter, page shared.Pagination) (AppealStatsPage, error) {
	page = page.Normalize()
	rows, total, err := s.repo.AppealStats(ctx, filter, page)
	if err != nil {
		return AppealStatsPage{}, err
	}
	return AppealStatsPage{Appeals: rows, Total: total, Page: page.Page, PerPage: page.PerPage}, nil
}

// ModeratorStats builds the payout sheet: scraped complaint work plus appeal
// outcomes, priced by the reward settings, highest earners first.
func (s *Service) ModeratorStats(ctx context.Context, search string, page shared.Pagination) (ModeratorStatsPage, error) {
	page = page.Normalize()
	settings, err := s.store.RewardSettings()
	if err != nil {
		return ModeratorStatsPage{}, err
	}
	complaints, err := s.store.Complaints()
	if err != nil {
		return ModeratorStatsPage{}, err
	}
	outcomes, err := s.repo.AppealOutcomes(ctx, search)
	if err != nil {
		return ModeratorStatsPage{}, err
	}

	byUser := map[string]*ModeratorStats{}
	stat := func(username string) *ModeratorStats {
		if st, ok := byUser[username]; ok {
			return st
		}
		st := &ModeratorStats{Username: username}
		byUser[username] = st
		return st
	}

	for _, c := range complaints {
		if c.Staff == "" {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Staff), strings.ToLower(search)) {
			continue
		}
		st := stat(c.Staff)
		switch c.Status {
		case ComplaintResolved:
			st.ComplaintsResolved++
			if took, ok := processingTime(c); ok && took > delayThreshold {
				st.Delays++
			}
		case ComplaintRejected:
			st.ComplaintsRejected++
		}
		if title := strings.ToLower(c.Title); strings.Contains(title, "ban") {
			st.BansIssued++
		}
	}
	for _, o := range outcomes {
		st := stat(o.Username)
		st.AppealsResolved = o.Resolved
		st.AppealsRejected = o.Rejected
	}

	users := make([]ModeratorStats, 0, len(byUser))
	for _, st := range byUser {
		st.Fine = st.Delays * settings.DelayPenalty
		total := st.ComplaintsResolved*settings.ComplaintReward +
			st.ComplaintsRejected*settings.ComplaintRejectedReward +
			st.BansIssued*settings.BanReward +
			st.AppealsResolved*settings.AppealReward -
			st.Fine
		if total < 0 {
			total = 0
		}
		st.Total = total
		st.PaymentPending = total > 0
		users = append(users, *st)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Total != users[j].Total {
			return users[i].Total > users[j].Total
		}
		return users[i].Username < users[j].Username
	})

	return ModeratorStatsPage{
		Users:   paginate(users, page),
		Total:   len(users),
		Page:    page.Page,
		PerPage: page.PerPage,
	}, nil
}

// RewardSettings returns the current payout settings.
func (s *Service) RewardSettings(context.Context) (RewardSettings, error) {
	return s.store.RewardSettings()
}

// UpdateRewardSettings applies a partial settings update.
func (s *Service) UpdateRewardSettings(ctx context.Context, actor rbac.Principal, patch RewardSettingsPatch) (RewardSettings, error) {
	settings, err := s.store.UpdateRewardSettings(patch)
	if err != nil {
		return RewardSettings{}, err
	}
	if s.audit != nil {
		log := shared.ActionLog{UserID: actor.ID, ActionType: shared.ActionSettingsChanged, Details: map[string]any{
			"complaint_reward": settings.ComplaintReward,
			"appeal_reward":    settings.AppealReward,
			"delay_penalty":    settings.DelayPenalty,
		}}
		if ip, ok := shared.ClientIPFromContext(ctx); ok {
			log.IP = ip
		}
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("action log write failed", "action", shared.ActionSettingsChanged, "error", err)
		}
	}
	return settings, nil
}

func processingTime(c Complaint) (time.Duration, bool) {
	if c.StartDate == "" || c.EndDate == "" {
		return 0, false
	}
	start, err := time.Parse(time.RFC3339, c.StartDate)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(time.RFC3339, c.EndDate)
	if err != nil {
		return 0, false
	}
	return end.Sub(start), true
}

func paginate[T any](items []T, page shared.Pagination) []T {
	start := page.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + page.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
