package appeals

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/appealdesk/appealdesk/internal/realtime"
)

// CounterSource computes dashboard counters for one user. The appeals
// repository satisfies it.
type CounterSource interface {
	Counters(ctx context.Context, userID uuid.UUID) (Counters, error)
}

// Broadcaster adapts the realtime hub to the Notifier contract. Mutations
// call it only after their transaction has committed.
type Broadcaster struct {
	hub      *realtime.Hub
	counters CounterSource
	logger   *slog.Logger
}

var _ Notifier = (*Broadcaster)(nil)

// NewBroadcaster wires the hub to a counter source.
func NewBroadcaster(hub *realtime.Hub, counters CounterSource, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, counters: counters, logger: logger}
}

func (b *Broadcaster) AppealEvent(_ context.Context, appealID uuid.UUID, payload any) {
	b.hub.SendAppeal(appealID, payload)
}

func (b *Broadcaster) ListEvent(_ context.Context, payload any) {
	b.hub.SendList(payload)
}

func (b *Broadcaster) UserEvent(_ context.Context, userID uuid.UUID, payload any) {
	b.hub.SendUser(userID, payload)
}

// CountersChanged recomputes counters once per distinct subscribed user and
// pushes a counters_update frame to each dashboard connection.
func (b *Broadcaster) CountersChanged(ctx context.Context) {
	subs := b.hub.ListSubscribers()
	byUser := make(map[uuid.UUID]Counters, len(subs))
	for _, sub := range subs {
		counters, ok := byUser[sub.UserID]
		if !ok {
			var err error
			counters, err = b.counters.Counters(ctx, sub.UserID)
			if err != nil {
				b.logger.Warn("counters refresh failed", "user_id", sub.UserID, "error", err)
				continue
			}
			byUser[sub.UserID] = counters
		}
		if err := sub.Conn.Send(map[string]any{
			"type":          "counters_update",
			"pending":       counters.Pending,
			"user_assigned": counters.UserAssigned,
		}); err != nil {
			b.hub.LeaveList(sub.Conn)
		}
	}
}
