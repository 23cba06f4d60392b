package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"autodl-console/pkg/logger"

	"github.com/coder/websocket"
)

const (
	// Subprotocol is negotiated with the bot server's event gateway.
	Subprotocol = "autodl.events.v1"

	defaultReadLimit   = 1 << 20 // 1MiB
	defaultDialTimeout = 10 * time.Second
)

// WebSocketTransport dials the bot server's event gateway. Each text message
// is one JSON frame: {"event": "bot_update", "data": {...}}.
type WebSocketTransport struct {
	URL string

	// Token returns the bearer token to present, or "" for none.
	Token func(ctx context.Context) string

	HTTPClient *http.Client
	ReadLimit  int64
	// DialTimeout bounds the handshake when ctx has no earlier deadline.
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (t *WebSocketTransport) Dial(ctx context.Context) (Conn, error) {
	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h := http.Header{}
	if t.Token != nil {
		if tok := t.Token(ctx); tok != "" {
			h.Set("Authorization", "Bearer "+tok)
		}
	}

	c, _, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{
		HTTPClient:   t.HTTPClient,
		HTTPHeader:   h,
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	limit := t.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)

	return &wsConn{c: c, log: logger.OrDefault(t.Logger)}, nil
}

type wsConn struct {
	c   *websocket.Conn
	log *slog.Logger
}

// Read skips messages that are not JSON frames; the connection stays up.
func (w *wsConn) Read(ctx context.Context) (Frame, error) {
	for {
		typ, b, err := w.c.Read(ctx)
		if err != nil {
			return Frame{}, err
		}
		if typ != websocket.MessageText {
			w.log.Debug("skipping non-text websocket message")
			continue
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil || f.Event == "" {
			w.log.Warn("skipping undecodable websocket frame", "bytes", len(b))
			continue
		}
		return f, nil
	}
}

func (w *wsConn) Close() error {
	err := w.c.Close(websocket.StatusNormalClosure, "client disconnect")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}
