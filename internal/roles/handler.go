package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
)

// Handler wires HTTP endpoints for the role catalogue and overrides.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler constructs the roles handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbacMW}
}

// MountRoutes registers role management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLevel(rbac.LevelChiefCurator))
		r.Get("/roles", h.handleList)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(rbac.PermManageRoles))
		r.Post("/roles", h.handleCreate)
		r.Put("/roles/{roleID}", h.handleUpdate)
		r.Get("/users/{userID}/overrides", h.handleOverrides)
		r.Put("/users/{userID}/overrides/{permission}", h.handleSetOverride)
		r.Delete("/users/{userID}/overrides/{permission}", h.handleClearOverride)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	list, err := h.service.List(r.Context(), *p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": list})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeRoleInput(w, r)
	if !ok {
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	role, err := h.service.Create(r.Context(), *p, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	in, ok := h.decodeRoleInput(w, r)
	if !ok {
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	role, err := h.service.Update(r.Context(), *p, roleID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) handleOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}
	overrides, err := h.service.Overrides(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

func (h *Handler) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Value bool `json:"value"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	perm := rbac.Permission(chi.URLParam(r, "permission"))
	if err := h.service.SetOverride(r.Context(), *p, userID, perm, body.Value); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "override set"})
}

func (h *Handler) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}
	p := rbac.PrincipalFromContext(r.Context())
	perm := rbac.Permission(chi.URLParam(r, "permission"))
	if err := h.service.ClearOverride(r.Context(), *p, userID, perm); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "override cleared"})
}

func (h *Handler) decodeRoleInput(w http.ResponseWriter, r *http.Request) (RoleInput, bool) {
	var in RoleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return RoleInput{}, false
	}
	if err := h.validate.Struct(in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return RoleInput{}, false
	}
	return in, true
}

func (h *Handler) userParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return uuid.Nil, false
	}
	return userID, true
}
