package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-hud/hub/protocol"
)

func setupTestServer(t *testing.T) (*testParts, string) {
	t.Helper()
	parts := setupTest(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(parts.router, parts.registry, parts.fanout, 64, 1<<20, logger)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(ts.Close)
	return parts, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("frame is not json: %v", err)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestServerEndToEnd(t *testing.T) {
	parts, url := setupTestServer(t)

	operator := dialWS(t, url)
	if err := operator.WriteMessage(websocket.TextMessage, []byte(`{"type":"register-gui"}`)); err != nil {
		t.Fatalf("register operator: %v", err)
	}
	waitFor(t, func() bool { return parts.registry.Len() == 1 })

	agent := dialWS(t, url)
	if err := agent.WriteMessage(websocket.TextMessage, []byte(`{"type":"register-agent","name":"builder"}`)); err != nil {
		t.Fatalf("register agent: %v", err)
	}

	ack := readFrame(t, agent)
	if ack["type"] != protocol.EventRegistrationAck || ack["success"] != true {
		t.Fatalf("unexpected ack: %v", ack)
	}
	agentID, _ := ack["agentId"].(string)
	if agentID == "" {
		t.Fatal("ack missing agentId")
	}

	connected := readFrame(t, operator)
	if connected["type"] != protocol.EventAgentConnected {
		t.Fatalf("operator frame = %v", connected["type"])
	}

	// Agent asks for input; operator answers; agent gets the response.
	if err := agent.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"human-input-request","requestId":"req-ws","inputType":"confirmation","message":"merge?"}`)); err != nil {
		t.Fatalf("send request: %v", err)
	}
	reqEvent := readFrame(t, operator)
	if reqEvent["type"] != protocol.EventHumanInputRequest {
		t.Fatalf("operator frame = %v", reqEvent["type"])
	}
	if data := reqEvent["data"].(map[string]any); data["priority"] != "high" {
		t.Errorf("confirmation priority = %v, want high", data["priority"])
	}

	if err := operator.WriteMessage(websocket.TextMessage, []byte(
		`{"type":"human-input-response","requestId":"req-ws","response":"merge it"}`)); err != nil {
		t.Fatalf("send response: %v", err)
	}
	delivery := readFrame(t, agent)
	if delivery["type"] != protocol.EventHumanInputResponse || delivery["response"] != "merge it" {
		t.Fatalf("unexpected delivery: %v", delivery)
	}

	// Agent drops; operator hears about it exactly once.
	agent.Close()
	gone := readFrame(t, operator)
	if gone["type"] != protocol.EventAgentDisconnected {
		t.Fatalf("operator frame = %v", gone["type"])
	}
	data := gone["data"].(map[string]any)
	if data["agentId"] != agentID || data["name"] != "builder" {
		t.Errorf("unexpected disconnect data: %v", data)
	}

	waitFor(t, func() bool { return parts.registry.Len() == 1 })
}

func TestServerUnregisteredDisconnectIsSilent(t *testing.T) {
	parts, url := setupTestServer(t)

	operator := dialWS(t, url)
	if err := operator.WriteMessage(websocket.TextMessage, []byte(`{"type":"register-gui"}`)); err != nil {
		t.Fatalf("register operator: %v", err)
	}
	waitFor(t, func() bool { return parts.registry.Len() == 1 })

	// A client that never announces a role comes and goes unnoticed.
	ghost := dialWS(t, url)
	ghost.Close()

	_ = operator.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := operator.ReadMessage(); err == nil {
		t.Fatal("operator should not receive any event for an unregistered client")
	}
}

func TestListenPortScan(t *testing.T) {
	ln, err := listen("")
	if err != nil {
		t.Skipf("no free port in scan range: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	if !strings.HasPrefix(addr, "127.0.0.1:") {
		t.Errorf("scan should bind localhost, got %s", addr)
	}

	// With the first port taken, the scan moves on to the next one.
	second, err := listen("")
	if err != nil {
		t.Skipf("no second free port: %v", err)
	}
	defer second.Close()
	if second.Addr().String() == addr {
		t.Error("second listener reused a bound port")
	}
}

func TestListenExplicitAddr(t *testing.T) {
	ln, err := listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
}
