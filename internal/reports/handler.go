package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/shared"
)

// Handler wires HTTP endpoints for reporting.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the reports handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbacMW}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermManageReports))
		r.Get("/reports/complaints", h.handleComplaints)
		r.Get("/reports/delayed-complaints", h.handleDelayedComplaints)
		r.Get("/reports/appeal-stats", h.handleAppealStats)
		r.Get("/reports/user-stats", h.handleModeratorStats)
		r.Get("/reports/reward-settings", h.handleRewardSettings)
		r.Post("/reports/reward-settings", h.handleUpdateRewardSettings)
	})
}

func (h *Handler) handleComplaints(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.Complaints(r.Context(), ComplaintFilter{
		Status: q.Get("status"),
		Date:   q.Get("date"),
		Admin:  q.Get("admin"),
	}, pageFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleDelayedComplaints(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.DelayedComplaints(r.Context(), r.URL.Query().Get("admin"), pageFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleAppealStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AppealStatsFilter{
		Statuses:  q["status"],
		Types:     q["type"],
		Moderator: q.Get("moderator"),
	}
	if raw := q.Get("date_from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date_from")
			return
		}
		filter.DateFrom = &t
	}
	if raw := q.Get("date_to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date_to")
			return
		}
		filter.DateTo = &t
	}
	page, err := h.service.AppealStats(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleModeratorStats(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ModeratorStats(r.Context(), r.URL.Query().Get("admin_name"), pageFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleRewardSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.RewardSettings(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) handleUpdateRewardSettings(w http.ResponseWriter, r *http.Request) {
	var patch RewardSettingsPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(patch); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	settings, err := h.service.UpdateRewardSettings(r.Context(), *p, patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func pageFromQuery(r *http.Request) shared.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return shared.Pagination{Page: page, PerPage: perPage}
}
