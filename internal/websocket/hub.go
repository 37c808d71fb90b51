package websocket

import (
	"encoding/json"

	"freecord/internal/metrics"
	"freecord/internal/models"
	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"

	"go.uber.org/zap"
)

// Hub fans events out to live connections. Every pass works on a snapshot
// and prunes connections whose send failed only after the pass completes.
type Hub struct {
	registry *Registry
	presence *Presence
	metrics  *metrics.Metrics
}

func NewHub(registry *Registry, presence *Presence, m *metrics.Metrics) *Hub {
	return &Hub{
		registry: registry,
		presence: presence,
		metrics:  m,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Presence() *Presence { return h.presence }

// Broadcast delivers ev to every connection of scope and returns how many
// accepted it.
func (h *Hub) Broadcast(scope models.Scope, ev models.Event) int {
	return h.deliver(ev, h.registry.Snapshot(scope), nil)
}

// BroadcastExcept skips every connection of userID.
func (h *Hub) BroadcastExcept(scope models.Scope, ev models.Event, userID int64) int {
	return h.deliver(ev, h.registry.Snapshot(scope), func(c Conn) bool {
		return c.UserID() == userID
	})
}

// NotifyUser delivers ev to all connections of userID regardless of scope,
// except those in one of the skip scopes.
func (h *Hub) NotifyUser(userID int64, ev models.Event, skip ...models.Scope) int {
	return h.deliver(ev, h.presence.Connections(userID), func(c Conn) bool {
		for _, s := range skip {
			if c.Scope() == s {
				return true
			}
		}
		return false
	})
}

func (h *Hub) deliver(ev models.Event, conns []Conn, exclude func(Conn) bool) int {
	if len(conns) == 0 {
		return 0
	}

	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", ev.EventType(), err)
		return 0
	}

	var dead []Conn
	delivered := 0
	for _, conn := range conns {
		if exclude != nil && exclude(conn) {
			continue
		}
		if err := conn.Send(data); err != nil {
			fields := []zap.Field{
				zap.String("conn", conn.ID()),
				zap.Int64("user_id", conn.UserID()),
				zap.Stringer("scope", conn.Scope()),
				zap.Error(err),
			}
			// Only a dead transport is pruned.
			if chaterrors.IsTransport(err) {
				logger.L().Debug("send failed", fields...)
				dead = append(dead, conn)
			} else {
				logger.L().Error("send rejected", fields...)
			}
			continue
		}
		delivered++
	}

	for _, conn := range dead {
		h.registry.Disconnect(conn.Scope(), conn)
		conn.Close()
	}

	h.metrics.EventBroadcast(string(ev.EventType()))
	h.metrics.DeliveryFailed(len(dead))
	return delivered
}
