// Package api exposes the hub's host interface over HTTP: agent and
// request listings, response submission, and the bound listen port.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agent-hud/hub/hub"
)

const defaultListLimit = 100

// Server serves the host API and the WebSocket endpoint.
type Server struct {
	hub    *hub.Hub
	logger *slog.Logger
}

func NewServer(h *hub.Hub, logger *slog.Logger) *Server {
	return &Server{hub: h, logger: logger}
}

// Handler builds the route tree. The WebSocket endpoint is mounted
// here so the hub serves everything from one listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/ws", s.hub.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", s.handleListAgents)
		r.Get("/requests", s.handleListRequests)
		r.Post("/requests/{requestID}/response", s.handleSubmitResponse)
		r.Get("/port", s.handlePort)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.StoreReady(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.hub.Agents(r.Context(), queryLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	requests := s.hub.Requests(r.Context(), queryLimit(r))
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests, "count": len(requests)})
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var body struct {
		Response          string `json:"response"`
		AdditionalContext string `json:"additionalContext"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.hub.SubmitResponse(r.Context(), requestID, body.Response, body.AdditionalContext)
	switch {
	case errors.Is(err, hub.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "no pending request with that id")
	case err != nil:
		// Request is completed but the agent could not be reached.
		s.logger.Warn("response accepted but not delivered", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadGateway, "response recorded but agent unreachable")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
	}
}

func (s *Server) handlePort(w http.ResponseWriter, _ *http.Request) {
	port, err := s.hub.Port()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "hub not listening")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"port": port})
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
