// Package hub implements the message hub bridging agent processes and
// operator clients over WebSocket: connection registry, human-input
// request tracking, operator fanout, and message routing.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/agent-hud/hub/config"
	"github.com/agent-hud/hub/protocol"
	"github.com/agent-hud/hub/store"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = time.Hour
)

// Hub wires the core components together and runs the server. It is
// the single owner of hub state; nothing lives in package globals.
type Hub struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	registry *Registry
	tracker  *Tracker
	fanout   *Fanout
	router   *Router
	server   *Server

	mu   sync.Mutex
	port int
}

// New builds a hub from configuration, opening the storage backend.
func New(cfg *config.Config, logger *slog.Logger) (*Hub, error) {
	st, err := store.New(cfg.Storage)
	if err != nil {
		return nil, err
	}

	registry := NewRegistry()
	tracker := NewTracker(st, logger)
	fanout := NewFanout(registry, logger)
	router := NewRouter(registry, tracker, fanout, st, logger)
	server := NewServer(router, registry, fanout, cfg.Server.QueueSize, cfg.Server.MaxMessageBytes, logger)

	return &Hub{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		tracker:  tracker,
		fanout:   fanout,
		router:   router,
		server:   server,
	}, nil
}

// Run serves the given handler until ctx is canceled, then shuts down
// gracefully. The handler is expected to mount HandleWS alongside the
// host API routes.
func (h *Hub) Run(ctx context.Context, handler http.Handler) error {
	ln, err := listen(h.cfg.Server.Addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.port = ln.Addr().(*net.TCPAddr).Port
	h.mu.Unlock()
	h.logger.Info("hub listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go h.runTimeoutSweeper(sweepCtx)
	go h.runRetentionPurger(sweepCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutCtx)
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	if cerr := h.store.Close(); cerr != nil {
		h.logger.Warn("failed to close store", "error", cerr)
	}
	return err
}

// runTimeoutSweeper periodically flips overdue pending requests to
// timeout and tells the operators about each one.
func (h *Hub) runTimeoutSweeper(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Requests.SweepInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, req := range h.tracker.ExpireOverdue(ctx, now.UTC()) {
				h.fanout.Broadcast(protocol.EventHumanInputTimeout, req)
				h.logger.Info("human input request timed out",
					"request_id", req.ID, "agent_id", req.AgentID)
			}
		}
	}
}

// runRetentionPurger trims stored history down to the retention window.
func (h *Hub) runRetentionPurger(ctx context.Context) {
	if h.cfg.Storage.RetentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.store.PurgeOlderThan(ctx, h.cfg.Storage.RetentionDays)
			if err != nil {
				h.logger.Warn("retention purge failed", "error", err)
				continue
			}
			if n > 0 {
				h.logger.Info("purged old records", "rows", n)
			}
		}
	}
}

// HandleWS serves a WebSocket client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.server.HandleWS(w, r)
}

// Port returns the bound listen port once the hub is running.
func (h *Hub) Port() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.port == 0 {
		return 0, ErrNotRunning
	}
	return h.port, nil
}

// Agents lists connected agents, falling back to stored history when
// none are live.
func (h *Hub) Agents(ctx context.Context, limit int) []protocol.AgentProfile {
	agents := h.registry.Agents()
	if len(agents) > 0 {
		if limit > 0 && len(agents) > limit {
			agents = agents[:limit]
		}
		return agents
	}
	stored, err := h.store.RecentAgents(ctx, limit)
	if err != nil {
		h.logger.Warn("failed to load stored agents", "error", err)
		return agents
	}
	return stored
}

// Requests lists recent human-input requests, newest first.
func (h *Hub) Requests(ctx context.Context, limit int) []protocol.HumanInputRequest {
	return h.tracker.ListRecent(ctx, limit)
}

// SubmitResponse answers a pending human-input request on behalf of an
// operator using the host API.
func (h *Hub) SubmitResponse(ctx context.Context, requestID, response, additionalContext string) error {
	return h.router.SubmitResponse(ctx, requestID, response, additionalContext, "operator")
}

// StoreReady reports whether the storage backend is reachable.
func (h *Hub) StoreReady(ctx context.Context) error {
	return h.store.Ping(ctx)
}
