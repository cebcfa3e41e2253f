package hub

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/agent-hud/hub/protocol"
)

const (
	// Keepalive timing. Pings go out on the write pump; a missed pong
	// times out the read loop and tears the connection down.
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// Port scan range used when no listen address is configured.
	portScanStart = 8080
	portScanEnd   = 8199
)

// Server accepts WebSocket clients and runs their read/write pumps.
// Each connection gets a uuid at accept time but only enters the
// registry when it announces a role; cleanup runs exactly once per
// connection no matter which pump notices the failure first.
type Server struct {
	router    *Router
	registry  *Registry
	fanout    *Fanout
	logger    *slog.Logger
	queueSize int
	maxBytes  int64
	upgrader  websocket.Upgrader
}

func NewServer(router *Router, registry *Registry, fanout *Fanout, queueSize int, maxBytes int64, logger *slog.Logger) *Server {
	return &Server{
		router:    router,
		registry:  registry,
		fanout:    fanout,
		logger:    logger,
		queueSize: queueSize,
		maxBytes:  maxBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP request and services the connection until
// it drops.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(uuid.New().String(), s.queueSize)
	s.logger.Debug("connection accepted", "conn_id", c.ID, "remote", r.RemoteAddr)

	go s.writePump(c, ws)
	s.readLoop(c, ws, r)
	s.cleanup(c, ws)
}

func (s *Server) readLoop(c *Conn, ws *websocket.Conn, r *http.Request) {
	ws.SetReadLimit(s.maxBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read error", "conn_id", c.ID, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		s.router.HandleMessage(r.Context(), c, data)
	}
}

// writePump owns all writes to the socket, draining the outbound queue
// and emitting keepalive pings. On write failure it closes the socket
// so the read loop unblocks and runs cleanup.
func (s *Server) writePump(c *Conn, ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.outbound:
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write error", "conn_id", c.ID, "error", err)
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

// cleanup tears a connection down: close the queue, drop it from the
// registry, and if it was a registered agent tell the operators. The
// registry's atomic remove guarantees at most one disconnect fanout.
func (s *Server) cleanup(c *Conn, ws *websocket.Conn) {
	c.Close()
	_ = ws.Close()

	removed := s.registry.Unregister(c.ID)
	if removed == nil {
		return
	}
	if dropped := removed.Dropped(); dropped > 0 {
		s.logger.Warn("connection dropped queued messages", "conn_id", c.ID, "dropped", dropped)
	}
	if removed.Role == RoleAgent && removed.Profile != nil {
		s.fanout.Broadcast(protocol.EventAgentDisconnected, protocol.DisconnectNotice{
			AgentID: removed.ID,
			Name:    removed.Profile.Name,
		})
	}
	s.logger.Info("connection closed", "conn_id", c.ID, "role", removed.Role)
}

// listen binds the configured address, or scans localhost ports
// 8080-8199 for the first free one when none is configured.
func listen(addr string) (net.Listener, error) {
	if addr != "" {
		return net.Listen("tcp", addr)
	}
	for port := portScanStart; port <= portScanEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no free port in %d-%d", portScanStart, portScanEnd)
}
