package appeals

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/appealdesk/appealdesk/internal/platform/httpx"
	"github.com/appealdesk/appealdesk/internal/rbac"
	"github.com/appealdesk/appealdesk/internal/realtime"
)

// WSHandler upgrades websocket connections for appeal chats, the dashboard
// appeal list and per-user notifications. Authorization runs after the
// upgrade so failures surface as policy-violation close frames rather than
// HTTP errors, which browsers cannot distinguish from network failures.
type WSHandler struct {
	logger   *slog.Logger
	service  *Service
	hub      *realtime.Hub
	upgrader websocket.Upgrader
}

// NewWSHandler constructs the websocket handler.
func NewWSHandler(logger *slog.Logger, service *Service, hub *realtime.Hub) *WSHandler {
	return &WSHandler{
		logger:  logger,
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Session cookies carry authentication; the frontend is served
			// from the same origin in production.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// MountRoutes registers the websocket endpoints. The session middleware must
// already be mounted; the role checks happen inside each handler.
func (h *WSHandler) MountRoutes(r chi.Router) {
	r.Get("/ws/appeals/{appealID}", h.handleChat)
	r.Get("/ws/appeals", h.handleList)
	r.Get("/ws/notifications", h.handleNotifications)
}

// incomingMessage is one client chat frame.
type incomingMessage struct {
	Message       string   `json:"message"`
	AttachmentIDs []string `json:"attachment_ids"`
}

func (h *WSHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := realtime.NewWSConn(raw)

	p := rbac.PrincipalFromContext(r.Context())
	if p == nil {
		conn.ClosePolicy("authentication required")
		return
	}
	appealID, err := uuid.Parse(chi.URLParam(r, "appealID"))
	if err != nil {
		conn.ClosePolicy("invalid appeal id")
		return
	}

	view, err := h.service.Get(r.Context(), *p, appealID)
	if err != nil {
		switch {
		case errors.Is(err, httpx.ErrNotFound):
			conn.ClosePolicy("appeal not found")
		case errors.Is(err, httpx.ErrForbidden):
			conn.ClosePolicy("access denied")
		default:
			h.logger.Error("chat admission failed", "appeal_id", appealID, "error", err)
			conn.CloseInternal("internal error")
		}
		return
	}

	// A moderator who gave this appeal up may not even sit in the pending
	// chat waiting to reclaim it.
	if IsModerator(*p) && view.Status == StatusPending {
		canReassign, err := h.service.CanReassign(r.Context(), p.ID, appealID)
		if err != nil {
			h.logger.Error("reassign check failed", "appeal_id", appealID, "error", err)
			conn.CloseInternal("internal error")
			return
		}
		if !canReassign {
			conn.ClosePolicy("you cannot take this appeal again")
			return
		}
	}

	h.hub.JoinAppeal(appealID, conn)
	defer func() {
		h.hub.LeaveAppeal(appealID, conn)
		_ = conn.Close()
	}()

	for {
		var frame incomingMessage
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("chat connection closed", "appeal_id", appealID, "error", err)
			}
			return
		}

		if frame.Message == "" || len(frame.Message) > MaxMessageLength {
			_ = conn.SendError("invalid message")
			continue
		}
		if !h.hub.AllowMessage(appealID, p.ID) {
			_ = conn.SendError("too many messages, please wait")
			continue
		}

		_, err := h.service.PostMessage(r.Context(), *p, appealID, frame.Message, frame.AttachmentIDs)
		if err != nil {
			switch {
			case errors.Is(err, ErrAppealClosed):
				_ = conn.SendError("the appeal is closed, you cannot send messages")
			case errors.Is(err, httpx.ErrConflict):
				_ = conn.SendError("the appeal was just taken by another moderator")
			case errors.Is(err, httpx.ErrForbidden):
				_ = conn.SendError("you cannot send messages to this appeal")
			case errors.Is(err, httpx.ErrValidation):
				_ = conn.SendError("invalid message")
			default:
				h.logger.Error("post message failed", "appeal_id", appealID, "error", err)
				conn.CloseInternal("internal error")
				return
			}
		}
	}
}

func (h *WSHandler) handleList(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := realtime.NewWSConn(raw)

	p := rbac.PrincipalFromContext(r.Context())
	if p == nil {
		conn.ClosePolicy("authentication required")
		return
	}
	if !IsModerator(*p) {
		conn.ClosePolicy("access denied")
		return
	}

	h.hub.JoinList(conn, p.ID)
	defer func() {
		h.hub.LeaveList(conn)
		_ = conn.Close()
	}()

	// Prime the dashboard with current counters.
	if counters, err := h.service.Counters(r.Context(), p.ID); err == nil {
		_ = conn.Send(map[string]any{
			"type":          "counters_update",
			"pending":       counters.Pending,
			"user_assigned": counters.UserAssigned,
		})
	}

	h.drain(conn)
}

func (h *WSHandler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := realtime.NewWSConn(raw)

	p := rbac.PrincipalFromContext(r.Context())
	if p == nil {
		conn.ClosePolicy("authentication required")
		return
	}

	h.hub.JoinUser(p.ID, conn)
	defer func() {
		h.hub.LeaveUser(p.ID, conn)
		_ = conn.Close()
	}()

	h.drain(conn)
}

// drain consumes client frames on a listen-only channel until the socket
// closes. Inbound payloads are ignored.
func (h *WSHandler) drain(conn *realtime.WSConn) {
	for {
		var discard map[string]any
		if err := conn.ReadJSON(&discard); err != nil {
			return
		}
	}
}
