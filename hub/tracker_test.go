package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agent-hud/hub/protocol"
)

func TestTrackerCreateDefaults(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	req := parts.tracker.Create(ctx, RequestDraft{
		AgentID:   "agent-1",
		AgentName: "builder",
		Type:      protocol.RequestInput,
		Message:   "what next?",
	})

	if req.ID == "" {
		t.Error("missing draft id should be replaced with a generated one")
	}
	if req.Status != protocol.StatusPending {
		t.Errorf("status = %q, want pending", req.Status)
	}
	if req.TimeoutSeconds != protocol.DefaultRequestTimeout {
		t.Errorf("timeout = %d, want %d", req.TimeoutSeconds, protocol.DefaultRequestTimeout)
	}
	if req.Priority != protocol.PriorityMedium {
		t.Errorf("priority = %q, want medium", req.Priority)
	}
	if req.Options == nil {
		t.Error("options should never be nil")
	}
}

func TestTrackerCreateKeepsUniqueIDs(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	first := parts.tracker.Create(ctx, RequestDraft{ID: "req-1", AgentID: "a"})
	second := parts.tracker.Create(ctx, RequestDraft{ID: "req-1", AgentID: "b"})

	if first.ID != "req-1" {
		t.Errorf("first id = %q, want req-1", first.ID)
	}
	if second.ID == "req-1" {
		t.Error("duplicate draft id should get a fresh uuid")
	}
}

func TestTrackerCompleteTransitionsOnce(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	req := parts.tracker.Create(ctx, RequestDraft{AgentID: "agent-1"})

	resp := &protocol.HumanResponse{
		RequestID:   req.ID,
		Response:    "yes",
		RespondedBy: "human",
		Timestamp:   time.Now().UTC(),
	}
	agentID, err := parts.tracker.Complete(ctx, resp)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if agentID != "agent-1" {
		t.Errorf("agent id = %q, want agent-1", agentID)
	}

	if _, err := parts.tracker.Complete(ctx, resp); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("second Complete should fail with ErrRequestNotFound, got %v", err)
	}
}

func TestTrackerCompleteUnknownID(t *testing.T) {
	parts := setupTest(t)
	_, err := parts.tracker.Complete(context.Background(), &protocol.HumanResponse{RequestID: "nope"})
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}

func TestTrackerExpireOverdue(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	short := parts.tracker.Create(ctx, RequestDraft{AgentID: "a", TimeoutSeconds: 1})
	long := parts.tracker.Create(ctx, RequestDraft{AgentID: "a", TimeoutSeconds: 600})

	expired := parts.tracker.ExpireOverdue(ctx, time.Now().UTC().Add(5*time.Second))
	if len(expired) != 1 {
		t.Fatalf("expired %d requests, want 1", len(expired))
	}
	if expired[0].ID != short.ID {
		t.Errorf("expired id = %q, want %q", expired[0].ID, short.ID)
	}
	if expired[0].Status != protocol.StatusTimeout {
		t.Errorf("status = %q, want timeout", expired[0].Status)
	}

	// An expired request can no longer be completed.
	if _, err := parts.tracker.Complete(ctx, &protocol.HumanResponse{RequestID: short.ID}); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("Complete after timeout should fail, got %v", err)
	}
	// The long one is still answerable.
	if _, err := parts.tracker.Complete(ctx, &protocol.HumanResponse{RequestID: long.ID, Response: "ok"}); err != nil {
		t.Fatalf("Complete of live request failed: %v", err)
	}

	// A second sweep finds nothing new.
	if again := parts.tracker.ExpireOverdue(ctx, time.Now().UTC().Add(time.Hour)); len(again) != 0 {
		t.Errorf("second sweep expired %d requests, want 0", len(again))
	}
}

func TestTrackerListRecentNewestFirst(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	a := parts.tracker.Create(ctx, RequestDraft{AgentID: "a", Message: "first"})
	b := parts.tracker.Create(ctx, RequestDraft{AgentID: "a", Message: "second"})

	got := parts.tracker.ListRecent(ctx, 10)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != b.ID || got[1].ID != a.ID {
		t.Error("requests not newest first")
	}

	limited := parts.tracker.ListRecent(ctx, 1)
	if len(limited) != 1 || limited[0].ID != b.ID {
		t.Error("limit not applied from the newest end")
	}
}

func TestTrackerListRecentFallsBackToStore(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	req := parts.tracker.Create(ctx, RequestDraft{AgentID: "a", Message: "persisted"})

	// A fresh tracker over the same store simulates a hub restart.
	restarted := NewTracker(parts.store, parts.tracker.logger)
	got := restarted.ListRecent(ctx, 10)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 from store fallback", len(got))
	}
	if got[0].ID != req.ID {
		t.Errorf("id = %q, want %q", got[0].ID, req.ID)
	}
}

func TestTrackerPendingCount(t *testing.T) {
	parts := setupTest(t)
	ctx := context.Background()

	req := parts.tracker.Create(ctx, RequestDraft{AgentID: "a"})
	parts.tracker.Create(ctx, RequestDraft{AgentID: "a"})
	if got := parts.tracker.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	if _, err := parts.tracker.Complete(ctx, &protocol.HumanResponse{RequestID: req.ID}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got := parts.tracker.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
}
