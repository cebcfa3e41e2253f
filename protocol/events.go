package protocol

import (
	"encoding/json"
	"time"
)

// Event is the standard outbound envelope for fanout events.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent serializes a fanout event envelope.
func NewEvent(eventType string, data any, now time.Time) ([]byte, error) {
	return json.Marshal(Event{Type: eventType, Data: data, Timestamp: now})
}

// RegistrationAck acknowledges an agent registration. Unlike fanout events
// it is a flat object carrying the assigned agent id and the server clock.
type RegistrationAck struct {
	Type       string    `json:"type"`
	Success    bool      `json:"success"`
	AgentID    string    `json:"agentId"`
	ServerTime time.Time `json:"serverTime"`
}

// NewRegistrationAck serializes the ack sent to a newly registered agent.
func NewRegistrationAck(agentID string, now time.Time) ([]byte, error) {
	return json.Marshal(RegistrationAck{
		Type:       EventRegistrationAck,
		Success:    true,
		AgentID:    agentID,
		ServerTime: now,
	})
}

// ResponseDelivery is the flat human-input-response envelope pushed
// directly to the agent that owns the request.
type ResponseDelivery struct {
	Type              string    `json:"type"`
	RequestID         string    `json:"requestId"`
	Response          string    `json:"response"`
	AdditionalContext string    `json:"additionalContext,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// NewResponseDelivery serializes the direct response sent to an agent.
func NewResponseDelivery(resp HumanResponse) ([]byte, error) {
	return json.Marshal(ResponseDelivery{
		Type:              EventHumanInputResponse,
		RequestID:         resp.RequestID,
		Response:          resp.Response,
		AdditionalContext: resp.AdditionalContext,
		Timestamp:         resp.Timestamp,
	})
}

// DisconnectNotice is the payload of an agent-disconnected fanout.
type DisconnectNotice struct {
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
}
