package appeals

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
)

// allowedAttachmentTypes is the closed set of upload content types.
var allowedAttachmentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
}

// Handler wires HTTP endpoints for the appeals module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware

	storageDir    string
	maxUploadSize int64
}

// NewHandler constructs the appeals handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbacMW rbac.Middleware, storageDir string, maxUploadSize int64) *Handler {
	return &Handler{
		logger:        logger,
		service:       service,
		validate:      validate,
		rbac:          rbacMW,
		storageDir:    storageDir,
		maxUploadSize: maxUploadSize,
	}
}

// MountPublicRoutes registers the submission endpoints, reachable without a
// session. Submissions are rate limited by client IP.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(5, time.Minute))
		r.Post("/appeals/help", h.handleCreate(TypeHelp))
		r.Post("/appeals/complaint", h.handleCreate(TypeComplaint))
		r.Post("/appeals/amnesty", h.handleCreate(TypeAmnesty))
	})
}

// MountRoutes registers the authenticated appeal endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/appeals", h.handleList)
	r.Get("/appeals/{appealID}/chat", h.handleChat)
	r.Post("/appeals/{appealID}/upload", h.handleUpload)
	r.Get("/attachments/{attachmentID}", h.handleDownload)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLevel(rbac.LevelJuniorModerator))
		r.Get("/appeals/counters", h.handleCounters)
		r.Get("/appeals/support-moderator", h.handleSupportModerator)
		r.Post("/appeals/{appealID}/close", h.handleClose)
		r.Post("/appeals/{appealID}/reassign", h.handleReassign)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLevel(rbac.LevelModerator))
		r.Post("/appeals/{appealID}/reassign-to", h.handleReassignTo)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLevel(rbac.LevelChiefCurator))
		r.Post("/appeals/{appealID}/force-close", h.handleForceClose)
	})
}

func (h *Handler) handleCreate(typ Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in CreateInput
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
		if err := h.validate.Struct(in); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		if err := h.validateForType(typ, in); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}

		var userID *uuid.UUID
		if p := rbac.PrincipalFromContext(r.Context()); p != nil {
			userID = &p.ID
		}

		view, err := h.service.Create(r.Context(), userID, typ, in)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, map[string]any{
			"id":     view.ID,
			"type":   view.Type,
			"status": view.Status,
		})
	}
}

// validateForType enforces the per-type required fields the shared struct
// tags cannot express.
func (h *Handler) validateForType(typ Type, in CreateInput) error {
	switch typ {
	case TypeHelp:
		if in.Nickname == "" {
			return fmt.Errorf("nickname is required for help appeals")
		}
	case TypeComplaint:
		if in.ViolatorNickname == "" {
			return fmt.Errorf("violator_nickname is required for complaints")
		}
	case TypeAmnesty:
		if in.AdminNickname == "" {
			return fmt.Errorf("admin_nickname is required for amnesty requests")
		}
	}
	return nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		Search:  strings.TrimSpace(q.Get("search")),
		Page:    atoiDefault(q.Get("page"), 1),
		PerPage: atoiDefault(q.Get("per_page"), 20),
	}
	for _, s := range q["status"] {
		st := Status(s)
		if !st.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status "+s)
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	for _, t := range q["type"] {
		typ := Type(t)
		if !typ.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown type "+t)
			return
		}
		filter.Types = append(filter.Types, typ)
	}
	if q.Get("assigned_to_me") == "true" {
		filter.AssignedTo = &p.ID
	}
	if q.Get("mine") == "true" {
		filter.OwnerID = &p.ID
	}

	page, err := h.service.List(r.Context(), *p, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	p, appealID, ok := h.principalAndAppeal(w, r)
	if !ok {
		return
	}
	snapshot, err := h.service.Chat(r.Context(), p, appealID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	messages := make([]map[string]any, 0, len(snapshot.Messages))
	for _, m := range snapshot.Messages {
		messages = append(messages, MessagePayload(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"appeal": map[string]any{
			"id":            snapshot.Appeal.ID,
			"type":          snapshot.Appeal.Type,
			"status":        snapshot.Appeal.Status,
			"created_at":    snapshot.Appeal.CreatedAt,
			"user_name":     snapshot.Appeal.UserName,
			"assigned_to":   snapshot.Appeal.AssignedTo,
			"assigned_name": snapshot.Appeal.AssignedName,
			"description":   snapshot.Appeal.Detail.Description,
		},
		"messages":          messages,
		"attachments":       snapshot.Attachments,
		"can_send_messages": snapshot.CanSend,
	})
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	counters, err := h.service.Counters(r.Context(), p.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, counters)
}

func (h *Handler) handleSupportModerator(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	info, err := h.service.SupportModerator(r.Context(), p.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	p, appealID, ok := h.principalAndAppeal(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	status := Status(body.Status)
	if body.Status == "" {
		status = StatusResolved
	}
	if err := h.service.Close(r.Context(), p, appealID, status); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "appeal closed"})
}

func (h *Handler) handleForceClose(w http.ResponseWriter, r *http.Request) {
	p, appealID, ok := h.principalAndAppeal(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ForceClose(r.Context(), p, appealID, body.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "appeal force-closed"})
}

func (h *Handler) handleReassign(w http.ResponseWriter, r *http.Request) {
	p, appealID, ok := h.principalAndAppeal(w, r)
	if !ok {
		return
	}
	var body struct {
		ReassignType string `json:"reassign_type"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}

	var err error
	switch body.ReassignType {
	case "unassign":
		err = h.service.Unassign(r.Context(), p, appealID)
	case "to_support_moderator":
		err = h.service.ReassignToSupportModerator(r.Context(), p, appealID)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown reassign_type")
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "appeal reassigned"})
}

func (h *Handler) handleReassignTo(w http.ResponseWriter, r *http.Request) {
	p, appealID, ok := h.principalAndAppeal(w, r)
	if !ok {
		return
	}
	var body struct {
		ModeratorID string `json:"moderator_id"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	moderatorID, err := uuid.Parse(body.ModeratorID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid moderator_id")
		return
	}
	if err := h.service.ReassignToModerator(r.Context(), p, appealID, moderatorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"detail": "appeal reassigned"})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	p, appealID, ok := h.principalAndAppeal(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "upload too large or malformed")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no files provided")
		return
	}

	uploaded := make([]string, 0, len(files))
	for _, fh := range files {
		id, err := h.storeFile(r, p, appealID, fh)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		uploaded = append(uploaded, id.String())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"attachment_ids": uploaded})
}

func (h *Handler) storeFile(r *http.Request, p rbac.Principal, appealID uuid.UUID, fh *multipart.FileHeader) (uuid.UUID, error) {
	src, err := fh.Open()
	if err != nil {
		return uuid.Nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return uuid.Nil, fmt.Errorf("read upload: %w", err)
	}
	contentType := http.DetectContentType(head[:n])
	ext, ok := allowedAttachmentTypes[contentType]
	if !ok {
		return uuid.Nil, fmt.Errorf("unsupported file type %s: %w", contentType, httpx.ErrValidation)
	}

	att := Attachment{
		ID:         uuid.New(),
		AppealID:   appealID,
		FileName:   filepath.Base(fh.Filename),
		FileSize:   fh.Size,
		MimeType:   contentType,
		UploadedBy: p.ID,
	}

	dir := filepath.Join(h.storageDir, appealID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return uuid.Nil, fmt.Errorf("create storage dir: %w", err)
	}
	dst, err := os.Create(filepath.Join(dir, att.ID.String()+ext))
	if err != nil {
		return uuid.Nil, fmt.Errorf("create attachment file: %w", err)
	}
	defer dst.Close()
	if _, err := dst.Write(head[:n]); err != nil {
		return uuid.Nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		return uuid.Nil, fmt.Errorf("write attachment: %w", err)
	}

	if err := h.service.AddAttachment(r.Context(), p, att); err != nil {
		return uuid.Nil, err
	}
	return att.ID, nil
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	p := rbac.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	attachmentID, err := uuid.Parse(chi.URLParam(r, "attachmentID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid attachment id")
		return
	}

	att, err := h.service.Attachment(r.Context(), *p, attachmentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	path := filepath.Join(h.storageDir, att.AppealID.String(), att.ID.String()+allowedAttachmentTypes[att.MimeType])
	w.Header().Set("Content-Type", att.MimeType)
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(att.FileName))
	http.ServeFile(w, r, path)
}

func (h *Handler) principalAndAppeal(w http.ResponseWriter, r *http.Request) (rbac.Principal, uuid.UUID, bool) {
	p := rbac.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return rbac.Principal{}, uuid.Nil, false
	}
	appealID, err := uuid.Parse(chi.URLParam(r, "appealID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid appeal id")
		return rbac.Principal{}, uuid.Nil, false
	}
	return *p, appealID, true
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
