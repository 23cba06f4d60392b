package channel

import (
	"context"
	"encoding/json"
	"fmt"
)

// Frame is one named event from the bot server.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport opens connections to the bot server.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one open connection. Read blocks until a frame arrives, the
// connection fails, or ctx is done. Close may be called more than once.
type Conn interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// encodeData turns a payload into raw JSON. Raw JSON is passed through.
func encodeData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("channel: encode data: %w", err)
		}
		return b, nil
	}
}
