package hub

import (
	"log/slog"
	"time"

	"github.com/agent-hud/hub/protocol"
)

// Fanout pushes events to every connected operator. Delivery is
// best-effort: the payload is serialized once, then each operator's
// queue either takes it or drops it. A slow or closed operator never
// stalls the sender or its peers.
type Fanout struct {
	registry *Registry
	logger   *slog.Logger
}

func NewFanout(registry *Registry, logger *slog.Logger) *Fanout {
	return &Fanout{registry: registry, logger: logger}
}

// Broadcast wraps data in the event envelope and sends it to all
// operators. Returns how many operators accepted the message.
func (f *Fanout) Broadcast(eventType string, data any) int {
	payload, err := protocol.NewEvent(eventType, data, time.Now().UTC())
	if err != nil {
		f.logger.Error("failed to serialize event", "event", eventType, "error", err)
		return 0
	}

	sent := 0
	for _, c := range f.registry.ListByRole(RoleOperator) {
		if err := c.Send(payload); err != nil {
			f.logger.Debug("fanout send failed", "event", eventType, "conn_id", c.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}
