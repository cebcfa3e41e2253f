package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agent-hud/hub/protocol"
	"github.com/agent-hud/hub/store"
)

// Router dispatches decoded wire messages to their handlers. Handlers
// follow one order: in-memory mutation first, then best-effort
// persistence, then outbound sends. Malformed and unknown messages are
// logged and dropped without affecting the connection.
type Router struct {
	registry *Registry
	tracker  *Tracker
	fanout   *Fanout
	store    store.Store
	logger   *slog.Logger
}

func NewRouter(registry *Registry, tracker *Tracker, fanout *Fanout, st store.Store, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		tracker:  tracker,
		fanout:   fanout,
		store:    st,
		logger:   logger,
	}
}

// HandleMessage processes one raw frame from a connection.
func (rt *Router) HandleMessage(ctx context.Context, c *Conn, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		rt.logger.Warn("dropping malformed message", "conn_id", c.ID, "error", err)
		return
	}

	switch m := msg.(type) {
	case protocol.RegisterAgent:
		rt.handleRegisterAgent(ctx, c, m)
	case protocol.RegisterGUI:
		rt.handleRegisterGUI(c)
	case protocol.AgentMessageIn:
		rt.handleAgentMessage(ctx, c, m)
	case protocol.HumanInputRequestIn:
		rt.handleHumanInputRequest(ctx, c, m)
	case protocol.HumanInputResponseIn:
		if err := rt.SubmitResponse(ctx, m.RequestID, m.Response, m.AdditionalContext, "human"); err != nil {
			rt.logger.Warn("failed to route human response", "request_id", m.RequestID, "error", err)
		}
	case protocol.ContentEmission:
		rt.fanout.Broadcast(m.Type, m.Data)
	case protocol.Unknown:
		rt.logger.Warn("ignoring unknown message type", "type", m.Type, "conn_id", c.ID)
	}
}

func (rt *Router) handleRegisterAgent(ctx context.Context, c *Conn, m protocol.RegisterAgent) {
	name := m.Name
	if name == "" {
		name = UnknownAgentName
	}
	now := time.Now().UTC()
	profile := &protocol.AgentProfile{
		ID:           c.ID,
		Name:         name,
		Status:       protocol.AgentConnected,
		ConnectedAt:  now,
		LastActivity: now,
		Metadata:     m.Metadata,
	}

	if err := rt.registry.Register(c, RoleAgent); err != nil {
		rt.logger.Warn("agent registration rejected", "conn_id", c.ID, "error", err)
		return
	}
	rt.registry.AttachProfile(c.ID, profile)

	if err := rt.store.SaveAgent(ctx, profile); err != nil {
		rt.logger.Warn("failed to persist agent", "agent_id", c.ID, "error", err)
	}

	ack, err := protocol.NewRegistrationAck(c.ID, now)
	if err != nil {
		rt.logger.Error("failed to serialize registration ack", "agent_id", c.ID, "error", err)
	} else if err := c.Send(ack); err != nil {
		rt.logger.Warn("failed to send registration ack", "agent_id", c.ID, "error", err)
	}

	rt.fanout.Broadcast(protocol.EventAgentConnected, profile)
	rt.logger.Info("agent registered", "agent_id", c.ID, "name", name)
}

func (rt *Router) handleRegisterGUI(c *Conn) {
	if err := rt.registry.Register(c, RoleOperator); err != nil {
		rt.logger.Warn("operator registration rejected", "conn_id", c.ID, "error", err)
		return
	}
	rt.logger.Info("operator registered", "conn_id", c.ID)
}

func (rt *Router) handleAgentMessage(ctx context.Context, c *Conn, m protocol.AgentMessageIn) {
	now := time.Now().UTC()
	rt.registry.TouchAgent(c.ID, now)

	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	msg := &protocol.AgentMessage{
		ID:          id,
		AgentID:     c.ID,
		MessageType: protocol.TypeAgentMessage,
		Payload:     m.Payload,
		Timestamp:   now,
	}
	if err := rt.store.SaveMessage(ctx, msg); err != nil {
		rt.logger.Warn("failed to persist agent message", "message_id", id, "error", err)
	}

	rt.fanout.Broadcast(protocol.EventAgentUpdate, msg)
}

func (rt *Router) handleHumanInputRequest(ctx context.Context, c *Conn, m protocol.HumanInputRequestIn) {
	req := rt.tracker.Create(ctx, RequestDraft{
		ID:             m.RequestID,
		AgentID:        c.ID,
		AgentName:      rt.registry.AgentName(c.ID),
		Type:           protocol.ParseRequestType(m.InputType),
		Message:        m.Message,
		Options:        m.Options,
		Context:        m.Context,
		TimeoutSeconds: m.Timeout,
	})

	rt.fanout.Broadcast(protocol.EventHumanInputRequest, req)
	rt.logger.Info("human input requested",
		"request_id", req.ID, "agent_id", req.AgentID, "priority", req.Priority)
}

// SubmitResponse resolves a pending request and pushes the answer to
// the owning agent. It serves both the wire path and the host API.
// ErrRequestNotFound means no pending request matched; the completion
// sticks even when the agent has since disconnected, in which case
// ErrAgentNotConnected is returned.
func (rt *Router) SubmitResponse(ctx context.Context, requestID, response, additionalContext, respondedBy string) error {
	resp := &protocol.HumanResponse{
		RequestID:         requestID,
		Response:          response,
		AdditionalContext: additionalContext,
		RespondedBy:       respondedBy,
		Timestamp:         time.Now().UTC(),
	}
	agentID, err := rt.tracker.Complete(ctx, resp)
	if err != nil {
		return err
	}

	c := rt.registry.Lookup(agentID)
	if c == nil {
		rt.logger.Warn("agent gone before response delivery", "request_id", requestID, "agent_id", agentID)
		return ErrAgentNotConnected
	}
	payload, err := protocol.NewResponseDelivery(*resp)
	if err != nil {
		rt.logger.Error("failed to serialize response delivery", "request_id", requestID, "error", err)
		return err
	}
	if err := c.Send(payload); err != nil {
		rt.logger.Warn("failed to deliver response", "request_id", requestID, "agent_id", agentID, "error", err)
		return err
	}
	rt.logger.Info("human response delivered", "request_id", requestID, "agent_id", agentID, "responded_by", respondedBy)
	return nil
}
