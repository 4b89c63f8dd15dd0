package bus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jonwraymond/offlinekit/auth"
	"github.com/jonwraymond/offlinekit/resilience"
)

var testSecret = []byte("bus-test-secret-0123456789abcdef")

type inbox struct {
	ch chan Message
}

func (i *inbox) HandleMessage(_ context.Context, _ string, msg Message) {
	i.ch <- msg
}

func newTestServer(t *testing.T, rate resilience.RateLimiterConfig) (*httptest.Server, *Hub, *inbox) {
	t.Helper()
	authn, err := auth.NewJWTAuthenticator(auth.JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub(HubConfig{})
	in := &inbox{ch: make(chan Message, 64)}
	srv, err := NewServer(ServerConfig{
		Hub:           hub,
		Handler:       in,
		Authenticator: authn,
		RateLimit:     rate,
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, hub, in
}

func dial(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	if token != "" {
		u += "?access_token=" + token
	}
	return websocket.DefaultDialer.Dial(u, nil)
}

func mustDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	token, err := auth.SignToken(testSecret, "tab-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	conn, _, err := dial(t, ts, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewServer_Validation(t *testing.T) {
	if _, err := NewServer(ServerConfig{Hub: NewHub(HubConfig{})}); !errors.Is(err, ErrMissingHub) {
		t.Errorf("missing handler error = %v, want ErrMissingHub", err)
	}
	if _, err := NewServer(ServerConfig{Handler: HandlerFunc(func(context.Context, string, Message) {})}); !errors.Is(err, ErrMissingHub) {
		t.Errorf("missing hub error = %v, want ErrMissingHub", err)
	}
}

func TestServer_RejectsUnauthenticatedHandshake(t *testing.T) {
	ts, hub, _ := newTestServer(t, resilience.RateLimiterConfig{})

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"bad token", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := dial(t, ts, tt.token)
			if conn != nil {
				_ = conn.Close()
			}
			if !errors.Is(err, websocket.ErrBadHandshake) {
				t.Fatalf("dial error = %v, want ErrBadHandshake", err)
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("handshake response = %v, want 401", resp)
			}
		})
	}
	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
}

func TestServer_InboundReachesHandler(t *testing.T) {
	ts, hub, in := newTestServer(t, resilience.RateLimiterConfig{})
	conn := mustDial(t, ts)
	waitFor(t, func() bool { return hub.Count() == 1 })

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"BOGUS"}`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(Message{Type: TypeRequestSync, Tag: "conversations-sync"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-in.ch:
		if msg.Type != TypeRequestSync || msg.Tag != "conversations-sync" {
			t.Errorf("handler got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	select {
	case msg := <-in.ch:
		t.Errorf("invalid message reached handler: %+v", msg)
	default:
	}
}

func TestServer_BroadcastReachesClient(t *testing.T) {
	ts, hub, _ := newTestServer(t, resilience.RateLimiterConfig{})
	conn := mustDial(t, ts)
	waitFor(t, func() bool { return hub.Count() == 1 })

	if n := hub.Broadcast(InstallOutcome("accepted")); n != 1 {
		t.Fatalf("Broadcast() = %d, want 1", n)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if msg.Type != TypeInstallOutcome || msg.Outcome != "accepted" {
		t.Errorf("client got %+v", msg)
	}
}

func TestServer_DisconnectUnregisters(t *testing.T) {
	ts, hub, _ := newTestServer(t, resilience.RateLimiterConfig{})
	conn := mustDial(t, ts)
	waitFor(t, func() bool { return hub.Count() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestServer_RateLimitDropsExcess(t *testing.T) {
	ts, hub, in := newTestServer(t, resilience.RateLimiterConfig{Rate: 0.001, Burst: 2})
	conn := mustDial(t, ts)
	waitFor(t, func() bool { return hub.Count() == 1 })

	for range 5 {
		if err := conn.WriteJSON(Message{Type: TypeForceActivate}); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return len(in.ch) >= 2 })
	time.Sleep(100 * time.Millisecond)

	if got := len(in.ch); got != 2 {
		t.Errorf("handled %d messages, want 2", got)
	}
}
