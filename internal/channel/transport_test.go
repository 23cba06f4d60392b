package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autodl-console/pkg/logger"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestWebSocketTransportDialTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := &WebSocketTransport{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http"),
		DialTimeout: 50 * time.Millisecond,
		Logger:      logger.Discard(),
	}
	start := time.Now()
	if _, err := tr.Dial(context.Background()); err == nil {
		t.Fatalf("expected the stalled handshake to fail")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("dial took %v", elapsed)
	}
}

func TestWebSocketTransport(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
		if err != nil {
			return
		}
		defer c.CloseNow()
		if c.Subprotocol() != Subprotocol {
			c.Close(websocket.StatusPolicyViolation, "subprotocol required")
			return
		}
		ctx := r.Context()
		_ = c.Write(ctx, websocket.MessageText, []byte("not json"))
		_ = c.Write(ctx, websocket.MessageText, []byte(`{"event":"bot_update","data":{"type":"progress","status":"completed","invoice":"INV-1"}}`))
		_, _, _ = c.Read(ctx) // hold open until the client closes
	}))
	defer srv.Close()

	tr := &WebSocketTransport{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:  func(context.Context) string { return "abc" },
		Logger: logger.Discard(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := tr.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if auth := <-gotAuth; auth != "Bearer abc" {
		t.Fatalf("authorization header = %q", auth)
	}

	f, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Event != "bot_update" {
		t.Fatalf("event = %q", f.Event)
	}
	var data map[string]string
	if err := json.Unmarshal(f.Data, &data); err != nil || data["invoice"] != "INV-1" {
		t.Fatalf("unexpected data %s: %v", f.Data, err)
	}
}

func TestWebSocketChannelEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
		if err != nil {
			return
		}
		_ = c.Write(r.Context(), websocket.MessageText, []byte(`{"event":"bot_update","data":{"n":1}}`))
		c.Close(websocket.StatusGoingAway, "server restart")
	}))
	defer srv.Close()

	ch := New(&WebSocketTransport{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Logger: logger.Discard()}, Options{Logger: logger.Discard()})
	defer ch.Close()

	got := make(chan struct{}, 1)
	lost := make(chan struct{}, 1)
	ch.On("bot_update", func(context.Context, json.RawMessage) { got <- struct{}{} })
	ch.On(EventDisconnect, func(context.Context, json.RawMessage) {
		select {
		case lost <- struct{}{}:
		default:
		}
	})

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitSignal(t, got, "bot_update")
	waitSignal(t, lost, "disconnect after server close")
	if ch.Connected() {
		t.Fatalf("expected disconnected")
	}
}

func TestRedisStreamTransport(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	tr := &RedisStreamTransport{Client: rdb, Prefix: "autodl-test:", Stream: uuid.NewString(), Block: 100 * time.Millisecond}
	t.Cleanup(func() { _ = rdb.Del(context.Background(), tr.key()).Err() })

	bg := context.Background()
	if _, err := tr.Publish(bg, "bot_update", map[string]int{"n": 0}); err != nil {
		t.Fatalf("publish before dial: %v", err)
	}

	conn, err := tr.Dial(bg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := tr.Publish(bg, "bot_update", map[string]int{"n": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	readCtx, cancelRead := context.WithTimeout(bg, 3*time.Second)
	defer cancelRead()
	f, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Event != "bot_update" || string(f.Data) != `{"n":1}` {
		t.Fatalf("unexpected frame: %s %s", f.Event, f.Data)
	}
}
