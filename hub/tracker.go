package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-hud/hub/protocol"
	"github.com/agent-hud/hub/store"
)

// RequestDraft is the raw material for a tracked human-input request,
// before ids, priority, and defaults are settled.
type RequestDraft struct {
	ID             string
	AgentID        string
	AgentName      string
	Type           protocol.RequestType
	Message        string
	Options        []string
	Context        json.RawMessage
	TimeoutSeconds int
}

// Tracker owns the lifecycle of human-input requests: creation with
// derived priority, completion against a response, and timeout sweeps.
// Status transitions are monotonic; a request leaves pending exactly
// once.
type Tracker struct {
	store  store.Store
	logger *slog.Logger

	mu       sync.Mutex
	order    []*protocol.HumanInputRequest // creation order
	requests map[string]*protocol.HumanInputRequest
}

func NewTracker(st store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:    st,
		logger:   logger,
		requests: make(map[string]*protocol.HumanInputRequest),
	}
}

// Create registers a new pending request and persists it. A missing or
// already-used draft id is replaced with a fresh uuid so request ids
// stay unique for the life of the tracker. Returns a copy.
func (t *Tracker) Create(ctx context.Context, draft RequestDraft) protocol.HumanInputRequest {
	now := time.Now().UTC()
	timeout := draft.TimeoutSeconds
	if timeout <= 0 {
		timeout = protocol.DefaultRequestTimeout
	}
	options := draft.Options
	if options == nil {
		options = []string{}
	}

	t.mu.Lock()
	id := draft.ID
	if _, taken := t.requests[id]; id == "" || taken {
		id = uuid.New().String()
	}
	req := &protocol.HumanInputRequest{
		ID:             id,
		AgentID:        draft.AgentID,
		AgentName:      draft.AgentName,
		Type:           draft.Type,
		Message:        draft.Message,
		Options:        options,
		Context:        draft.Context,
		TimeoutSeconds: timeout,
		CreatedAt:      now,
		Status:         protocol.StatusPending,
		Priority:       protocol.DerivePriority(draft.Type, draft.Message),
	}
	t.requests[id] = req
	t.order = append(t.order, req)
	snap := *req
	t.mu.Unlock()

	if err := t.store.SaveHumanRequest(ctx, &snap); err != nil {
		t.logger.Warn("failed to persist human request", "request_id", id, "error", err)
	}
	return snap
}

// Complete resolves a pending request with an operator response and
// returns the owning agent's id. Unknown ids and requests already out
// of pending yield ErrRequestNotFound, so a second response to the
// same request fails cleanly.
func (t *Tracker) Complete(ctx context.Context, resp *protocol.HumanResponse) (string, error) {
	t.mu.Lock()
	req, ok := t.requests[resp.RequestID]
	if !ok || req.Status != protocol.StatusPending {
		t.mu.Unlock()
		return "", ErrRequestNotFound
	}
	req.Status = protocol.StatusCompleted
	snap := *req
	t.mu.Unlock()

	if err := t.store.SaveHumanRequest(ctx, &snap); err != nil {
		t.logger.Warn("failed to persist request status", "request_id", snap.ID, "error", err)
	}
	if err := t.store.SaveHumanResponse(ctx, resp); err != nil {
		t.logger.Warn("failed to persist human response", "request_id", snap.ID, "error", err)
	}
	return snap.AgentID, nil
}

// ExpireOverdue flips every pending request whose timeout has elapsed
// to timeout status and returns copies of the flipped requests for
// fanout. Requests answered before the sweep are untouched.
func (t *Tracker) ExpireOverdue(ctx context.Context, now time.Time) []protocol.HumanInputRequest {
	var expired []protocol.HumanInputRequest
	t.mu.Lock()
	for _, req := range t.order {
		if req.Status != protocol.StatusPending {
			continue
		}
		deadline := req.CreatedAt.Add(time.Duration(req.TimeoutSeconds) * time.Second)
		if now.Before(deadline) {
			continue
		}
		req.Status = protocol.StatusTimeout
		expired = append(expired, *req)
	}
	t.mu.Unlock()

	for i := range expired {
		if err := t.store.SaveHumanRequest(ctx, &expired[i]); err != nil {
			t.logger.Warn("failed to persist request timeout", "request_id", expired[i].ID, "error", err)
		}
	}
	return expired
}

// ListRecent returns up to limit requests, newest first. When the
// tracker has no in-memory state (fresh process) it falls back to the
// store so operators still see history across restarts.
func (t *Tracker) ListRecent(ctx context.Context, limit int) []protocol.HumanInputRequest {
	if limit <= 0 {
		limit = 100
	}

	t.mu.Lock()
	n := len(t.order)
	out := make([]protocol.HumanInputRequest, 0, min(n, limit))
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *t.order[i])
	}
	t.mu.Unlock()

	if len(out) > 0 {
		return out
	}
	stored, err := t.store.RecentRequests(ctx, limit)
	if err != nil {
		t.logger.Warn("failed to load stored requests", "error", err)
		return out
	}
	return stored
}

// Pending reports how many requests are still awaiting a response.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, req := range t.requests {
		if req.Status == protocol.StatusPending {
			n++
		}
	}
	return n
}
