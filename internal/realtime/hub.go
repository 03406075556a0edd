// Package realtime fans appeal events out over websockets. The hub keeps
// three registries: per-appeal chat channels, the shared appeal-list channel
// used by dashboards, and per-user notification channels.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageInterval is the minimum gap between two chat messages from the same
// user on the same appeal.
const MessageInterval = 5 * time.Second

// Conn is one subscriber. Implementations must be safe for concurrent Send.
type Conn interface {
	Send(payload any) error
}

// ListSubscriber pairs a dashboard connection with the user behind it, so
// counter refreshes can be computed per user.
type ListSubscriber struct {
	Conn   Conn
	UserID uuid.UUID
}

// ConnGauge counts open connections per channel kind.
type ConnGauge interface {
	WSOpened(channel string)
	WSClosed(channel string)
}

const (
	channelAppeal = "appeal"
	channelList   = "list"
	channelUser   = "user"
)

// Hub is the in-process connection registry. A connection that fails a write
// is dropped from the registry on the spot; the read loop notices the dead
// socket on its own.
type Hub struct {
	mu          sync.Mutex
	appealConns map[uuid.UUID]map[Conn]struct{}
	listConns   map[Conn]uuid.UUID
	userConns   map[uuid.UUID]map[Conn]struct{}

	// lastMessage tracks the most recent message per (appeal, user) for rate
	// limiting. Entries for an appeal are discarded once its chat channel
	// has no connections left.
	lastMessage map[uuid.UUID]map[uuid.UUID]time.Time

	logger *slog.Logger
	gauge  ConnGauge
	now    func() time.Time
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		appealConns: make(map[uuid.UUID]map[Conn]struct{}),
		listConns:   make(map[Conn]uuid.UUID),
		userConns:   make(map[uuid.UUID]map[Conn]struct{}),
		lastMessage: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		logger:      logger,
		now:         time.Now,
	}
}

// SetGauge attaches a connection gauge. Without one the hub counts nothing.
func (h *Hub) SetGauge(g ConnGauge) {
	h.gauge = g
}

func (h *Hub) gaugeOpened(channel string) {
	if h.gauge != nil {
		h.gauge.WSOpened(channel)
	}
}

func (h *Hub) gaugeClosed(channel string) {
	if h.gauge != nil {
		h.gauge.WSClosed(channel)
	}
}

// JoinAppeal subscribes the connection to one appeal's chat channel.
func (h *Hub) JoinAppeal(appealID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appealConns[appealID] == nil {
		h.appealConns[appealID] = make(map[Conn]struct{})
	}
	if _, ok := h.appealConns[appealID][c]; !ok {
		h.gaugeOpened(channelAppeal)
	}
	h.appealConns[appealID][c] = struct{}{}
}

// LeaveAppeal removes the connection. Safe to call twice; leaving an empty
// channel deletes it.
func (h *Hub) LeaveAppeal(appealID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropAppealLocked(appealID, c)
}

func (h *Hub) dropAppealLocked(appealID uuid.UUID, c Conn) {
	conns := h.appealConns[appealID]
	if conns == nil {
		return
	}
	if _, ok := conns[c]; ok {
		h.gaugeClosed(channelAppeal)
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.appealConns, appealID)
	}
}

// JoinList subscribes a dashboard connection.
func (h *Hub) JoinList(c Conn, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listConns[c]; !ok {
		h.gaugeOpened(channelList)
	}
	h.listConns[c] = userID
}

// LeaveList removes a dashboard connection.
func (h *Hub) LeaveList(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropListLocked(c)
}

func (h *Hub) dropListLocked(c Conn) {
	if _, ok := h.listConns[c]; ok {
		h.gaugeClosed(channelList)
	}
	delete(h.listConns, c)
}

// JoinUser subscribes a connection to one user's notification channel.
func (h *Hub) JoinUser(userID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[Conn]struct{})
	}
	if _, ok := h.userConns[userID][c]; !ok {
		h.gaugeOpened(channelUser)
	}
	h.userConns[userID][c] = struct{}{}
}

// LeaveUser removes a notification connection.
func (h *Hub) LeaveUser(userID uuid.UUID, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropUserLocked(userID, c)
}

func (h *Hub) dropUserLocked(userID uuid.UUID, c Conn) {
	conns := h.userConns[userID]
	if conns == nil {
		return
	}
	if _, ok := conns[c]; ok {
		h.gaugeClosed(channelUser)
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.userConns, userID)
	}
}

// SendAppeal delivers the payload to every connection on the appeal channel.
func (h *Hub) SendAppeal(appealID uuid.UUID, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.appealConns[appealID] {
		if err := c.Send(payload); err != nil {
			h.logger.Debug("dropping dead appeal connection", "appeal_id", appealID, "error", err)
			h.dropAppealLocked(appealID, c)
		}
	}
}

// SendList delivers the payload to every dashboard connection.
func (h *Hub) SendList(payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.listConns {
		if err := c.Send(payload); err != nil {
			h.logger.Debug("dropping dead list connection", "error", err)
			h.dropListLocked(c)
		}
	}
}

// SendUser delivers the payload to every connection of one user.
func (h *Hub) SendUser(userID uuid.UUID, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.userConns[userID] {
		if err := c.Send(payload); err != nil {
			h.logger.Debug("dropping dead user connection", "user_id", userID, "error", err)
			h.dropUserLocked(userID, c)
		}
	}
}

// ListSubscribers snapshots the current dashboard connections.
func (h *Hub) ListSubscribers() []ListSubscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]ListSubscriber, 0, len(h.listConns))
	for c, userID := range h.listConns {
		subs = append(subs, ListSubscriber{Conn: c, UserID: userID})
	}
	return subs
}

// AllowMessage applies the per-(appeal, user) rate limit and, on a grant,
// stamps the send. When the appeal's chat channel is empty the limiter state
// for that user is discarded and the message passes: with nobody connected
// there is no fan-out worth throttling.
func (h *Hub) AllowMessage(appealID, userID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()

	if len(h.appealConns[appealID]) == 0 {
		if times := h.lastMessage[appealID]; times != nil {
			delete(times, userID)
			if len(times) == 0 {
				delete(h.lastMessage, appealID)
			}
		}
		return true
	}

	if last, ok := h.lastMessage[appealID][userID]; ok && now.Sub(last) < MessageInterval {
		return false
	}

	if h.lastMessage[appealID] == nil {
		h.lastMessage[appealID] = make(map[uuid.UUID]time.Time)
	}
	h.lastMessage[appealID][userID] = now
	return true
}
