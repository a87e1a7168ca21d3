package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const testSecret = "0123456789abcdef-test-secret"

func startHub(t *testing.T, secret string) (*Hub, string) {
	t.Helper()
	hub := NewHub(secret, nil, zerolog.New(io.Discard))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForCount(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", hub.Count(), want)
}

func readType(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if len(msg) != 1 {
		t.Errorf("message should only carry a type, got %v", msg)
	}
	typ, _ := msg["type"].(string)
	return typ
}

func TestHub_PublishChangeReachesAllObservers(t *testing.T) {
	hub, url := startHub(t, "")

	a := dial(t, url)
	b := dial(t, url)
	waitForCount(t, hub, 2)

	hub.PublishChange()

	if got := readType(t, a); got != TypeStateChanged {
		t.Errorf("observer a: got %q", got)
	}
	if got := readType(t, b); got != TypeStateChanged {
		t.Errorf("observer b: got %q", got)
	}
}

func TestHub_DisconnectUnsubscribes(t *testing.T) {
	hub, url := startHub(t, "")

	conn := dial(t, url)
	waitForCount(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitForCount(t, hub, 0)

	// publishing with no observers is a no-op
	hub.PublishChange()
}

func TestHub_PingPong(t *testing.T) {
	hub, url := startHub(t, "")
	conn := dial(t, url)
	waitForCount(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readType(t, conn); got != "pong" {
		t.Errorf("got %q, want pong", got)
	}
}

func TestHub_SlowObserverIsDroppedWithoutBlocking(t *testing.T) {
	hub := NewHub("", nil, zerolog.New(io.Discard))

	slow := &Client{ID: "slow", Hub: hub, Send: make(chan []byte, 1)}
	fast := &Client{ID: "fast", Hub: hub, Send: make(chan []byte, 8)}
	hub.Subscribe(slow)
	hub.Subscribe(fast)

	done := make(chan struct{})
	go func() {
		hub.PublishChange()
		hub.PublishChange()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishChange blocked on a slow observer")
	}

	if hub.Count() != 1 {
		t.Fatalf("Count: got %d, want 1", hub.Count())
	}
	if len(fast.Send) != 2 {
		t.Errorf("fast observer queued %d messages, want 2", len(fast.Send))
	}
	// the slow observer's channel was closed after its buffered message
	<-slow.Send
	if _, ok := <-slow.Send; ok {
		t.Error("slow observer channel should be closed")
	}
}

func TestHub_RequiresTokenWhenSecretSet(t *testing.T) {
	hub, url := startHub(t, testSecret)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	dial(t, url+"?token="+signed)
	waitForCount(t, hub, 1)
}
