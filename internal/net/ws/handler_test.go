package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"wildshape/server"
)

func dialWebsocket(t *testing.T, baseURL, playerID string) *websocket.Conn {
	t.Helper()

	parsed, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/"
	if playerID != "" {
		query := parsed.Query()
		query.Set("id", playerID)
		parsed.RawQuery = query.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func authenticate(t *testing.T, conn *websocket.Conn, name string) server.AuthResultMessage {
	t.Helper()

	if err := conn.WriteJSON(map[string]any{"t": "authenticate", "name": name}); err != nil {
		t.Fatalf("failed to send authenticate frame: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("failed to read handshake reply: %v", err)
		}
		var msg server.AuthResultMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Type == server.MsgAuthOK {
			return msg
		}
	}
	t.Fatalf("never received an auth-ok frame")
	return server.AuthResultMessage{}
}

func waitForEmptyRoster(t *testing.T, hub *server.Hub) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.DiagnosticsSnapshot()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reclaimed the closed connection")
}

func TestHandleMintsIdentityWhenClientPresentsNone(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig())
	t.Cleanup(hub.Close)

	handler := NewHandler(hub, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn := dialWebsocket(t, srv.URL, "")
	msg := authenticate(t, conn, "Aila")
	if msg.PlayerID == "" {
		t.Fatalf("expected a minted player id for an id-less client")
	}
}

func TestHandleKeepsPresentedIdentityOnReconnect(t *testing.T) {
	hub := server.NewHubWithConfig(server.DefaultHubConfig())
	t.Cleanup(hub.Close)

	handler := NewHandler(hub, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	first := dialWebsocket(t, srv.URL, "returning-player")
	msg := authenticate(t, first, "Aila")
	if msg.PlayerID != "returning-player" {
		t.Fatalf("expected the presented id to stick, got %q", msg.PlayerID)
	}
	first.Close()
	waitForEmptyRoster(t, hub)

	second := dialWebsocket(t, srv.URL, "returning-player")
	msg = authenticate(t, second, "Aila")
	if msg.PlayerID != "returning-player" {
		t.Fatalf("expected the reconnect to keep the id, got %q", msg.PlayerID)
	}
}
