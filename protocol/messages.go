// Package protocol defines the JSON wire protocol spoken between agents,
// operator clients, and the hub over WebSocket.
//
// Inbound messages are flat JSON objects with a "type" field that selects
// the payload shape. Decode turns raw bytes into one variant of a closed
// set of message structs; unrecognized types decode to Unknown rather than
// an error so the router can handle them explicitly.
package protocol

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound message type strings.
const (
	TypeRegisterAgent      = "register-agent"
	TypeRegisterGUI        = "register-gui"
	TypeAgentMessage       = "agent-message"
	TypeHumanInputRequest  = "human-input-request"
	TypeHumanInputResponse = "human-input-response"
	TypeMarkdownContent    = "markdown-content"
	TypeCodeContent        = "code-content"
	TypeImageContent       = "image-content"
)

// Outbound event type strings (hub → client).
const (
	EventRegistrationAck    = "registration-ack"
	EventAgentConnected     = "agent-connected"
	EventAgentDisconnected  = "agent-disconnected"
	EventAgentUpdate        = "agent-update"
	EventHumanInputRequest  = "human-input-request"
	EventHumanInputResponse = "human-input-response"
	EventHumanInputTimeout  = "human-input-timeout"
)

// AgentStatus is the lifecycle state of a connected agent.
type AgentStatus string

const (
	AgentConnected    AgentStatus = "connected"
	AgentActive       AgentStatus = "active"
	AgentDisconnected AgentStatus = "disconnected"
)

// RequestType classifies what kind of human input an agent is asking for.
type RequestType string

const (
	RequestInput        RequestType = "input"
	RequestApproval     RequestType = "approval"
	RequestChoice       RequestType = "choice"
	RequestConfirmation RequestType = "confirmation"
	RequestText         RequestType = "text"
)

// ParseRequestType maps a wire string to a RequestType, defaulting to
// RequestInput for anything unrecognized.
func ParseRequestType(s string) RequestType {
	switch RequestType(s) {
	case RequestApproval, RequestChoice, RequestConfirmation, RequestText:
		return RequestType(s)
	default:
		return RequestInput
	}
}

// RequestStatus is the lifecycle state of a human-input request.
// Transitions are monotonic: pending → completed or pending → timeout,
// both terminal.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusTimeout   RequestStatus = "timeout"
)

// Priority is the derived urgency of a human-input request. It is computed
// once at creation and never changes.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DerivePriority computes a request's priority from its type and message
// text. Approvals and confirmations are always high; otherwise the message
// is scanned case-insensitively for urgency markers.
func DerivePriority(t RequestType, message string) Priority {
	if t == RequestApproval || t == RequestConfirmation {
		return PriorityHigh
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "critical") || strings.Contains(lower, "urgent"):
		return PriorityCritical
	case strings.Contains(lower, "optional") || strings.Contains(lower, "suggestion"):
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// AgentProfile describes a registered agent for the lifetime of its
// connection. The JSON shape is what operators receive in agent-connected
// and agent-update fanouts.
type AgentProfile struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Status       AgentStatus     `json:"status"`
	ConnectedAt  time.Time       `json:"connected_at"`
	LastActivity time.Time       `json:"last_activity"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// AgentMessage is a status update emitted by an agent, fanned out to
// operators and persisted.
type AgentMessage struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	MessageType string          `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// HumanInputRequest is an agent's request for human input, tracked by the
// hub until it is answered or times out.
type HumanInputRequest struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agent_id"`
	AgentName      string          `json:"agent_name"`
	Type           RequestType     `json:"request_type"`
	Message        string          `json:"message"`
	Options        []string        `json:"options"`
	Context        json.RawMessage `json:"context,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds"`
	CreatedAt      time.Time       `json:"timestamp"`
	Status         RequestStatus   `json:"status"`
	Priority       Priority        `json:"priority"`
}

// HumanResponse is an operator's answer to a human-input request.
type HumanResponse struct {
	RequestID         string    `json:"request_id"`
	Response          string    `json:"response"`
	AdditionalContext string    `json:"additional_context,omitempty"`
	RespondedBy       string    `json:"responded_by"`
	Timestamp         time.Time `json:"timestamp"`
}

// --- Inbound message variants ---

// Inbound is one decoded wire message. The concrete type is one of
// RegisterAgent, RegisterGUI, AgentMessageIn, HumanInputRequestIn,
// HumanInputResponseIn, ContentEmission, or Unknown.
type Inbound interface {
	inbound()
}

// RegisterAgent announces a connection as an agent.
type RegisterAgent struct {
	Name     string          `json:"name"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// RegisterGUI announces a connection as an operator client.
type RegisterGUI struct{}

// AgentMessageIn carries an agent status update.
type AgentMessageIn struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// HumanInputRequestIn asks the hub to collect input from a human operator.
type HumanInputRequestIn struct {
	RequestID string          `json:"requestId"`
	InputType string          `json:"inputType"`
	Message   string          `json:"message"`
	Options   []string        `json:"options"`
	Context   json.RawMessage `json:"context,omitempty"`
	Timeout   int             `json:"timeout"`
}

// HumanInputResponseIn carries an operator's answer back over the wire.
type HumanInputResponseIn struct {
	RequestID         string `json:"requestId"`
	Response          string `json:"response"`
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// ContentEmission is a markdown/code/image payload forwarded verbatim to
// operators. Type holds the original wire type string.
type ContentEmission struct {
	Type string          `json:"-"`
	Data json.RawMessage `json:"data"`
}

// Unknown is any message whose type the hub does not recognize.
type Unknown struct {
	Type string
}

func (RegisterAgent) inbound()        {}
func (RegisterGUI) inbound()          {}
func (AgentMessageIn) inbound()       {}
func (HumanInputRequestIn) inbound()  {}
func (HumanInputResponseIn) inbound() {}
func (ContentEmission) inbound()      {}
func (Unknown) inbound()              {}

// DefaultRequestTimeout is applied when a human-input-request omits its
// timeout field.
const DefaultRequestTimeout = 300 // seconds

// Decode parses one wire message into its Inbound variant. It returns
// *InvalidJSONError when the bytes are not valid JSON or a payload field
// has the wrong shape, and *MissingFieldError when the type field is
// absent. Unrecognized types are not an error; they decode to Unknown.
func Decode(data []byte) (Inbound, error) {
	var probe struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &InvalidJSONError{Err: err}
	}
	if probe.Type == nil {
		return nil, &MissingFieldError{Field: "type"}
	}

	switch *probe.Type {
	case TypeRegisterAgent:
		var m RegisterAgent
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &InvalidJSONError{Err: err}
		}
		return m, nil
	case TypeRegisterGUI:
		return RegisterGUI{}, nil
	case TypeAgentMessage:
		var m AgentMessageIn
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &InvalidJSONError{Err: err}
		}
		return m, nil
	case TypeHumanInputRequest:
		m := HumanInputRequestIn{Timeout: DefaultRequestTimeout}
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &InvalidJSONError{Err: err}
		}
		return m, nil
	case TypeHumanInputResponse:
		var m HumanInputResponseIn
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &InvalidJSONError{Err: err}
		}
		return m, nil
	case TypeMarkdownContent, TypeCodeContent, TypeImageContent:
		var m ContentEmission
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, &InvalidJSONError{Err: err}
		}
		m.Type = *probe.Type
		return m, nil
	default:
		return Unknown{Type: *probe.Type}, nil
	}
}
