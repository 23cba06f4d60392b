package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autodl-console/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const DefaultStreamPrefix = "autodl:"

// RedisStreamTransport reads frames from a Redis stream the bot server
// appends to. Each entry carries an "event" and a "data" field.
//
// A new connection starts after the newest entry present at dial time;
// events published while disconnected are not replayed.
type RedisStreamTransport struct {
	Client redis.UniversalClient
	Prefix string
	Stream string

	// Block bounds each XREAD so Read notices cancellation.
	Block time.Duration
}

func (t *RedisStreamTransport) key() string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return utils.RedisKey(prefix, "stream", t.Stream)
}

func (t *RedisStreamTransport) Dial(ctx context.Context) (Conn, error) {
	if t.Client == nil {
		return nil, errors.New("redis stream: client is nil")
	}
	if err := t.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis stream: ping: %w", err)
	}
	// Pin the start position now rather than using "$" on every XREAD, so
	// nothing published between Dial and the first Read is lost.
	lastID := "0-0"
	tail, err := t.Client.XRevRangeN(ctx, t.key(), "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis stream: tail: %w", err)
	}
	if len(tail) > 0 {
		lastID = tail[0].ID
	}

	block := t.Block
	if block <= 0 {
		block = time.Second
	}
	connCtx, cancel := context.WithCancel(context.Background())
	return &streamConn{client: t.Client, key: t.key(), lastID: lastID, block: block, ctx: connCtx, cancel: cancel}, nil
}

// Publish appends one frame to the stream.
func (t *RedisStreamTransport) Publish(ctx context.Context, event string, data any) (string, error) {
	raw, err := encodeData(data)
	if err != nil {
		return "", err
	}
	id, err := t.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.key(),
		Values: map[string]interface{}{"event": event, "data": string(raw)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis stream: xadd: %w", err)
	}
	return id, nil
}

type streamConn struct {
	client  redis.UniversalClient
	key     string
	lastID  string
	block   time.Duration
	pending []Frame

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *streamConn) Read(ctx context.Context) (Frame, error) {
	for len(s.pending) == 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.ctx.Done():
			return Frame{}, ErrClosed
		default:
		}

		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.key, s.lastID},
			Count:   16,
			Block:   s.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Frame{}, fmt.Errorf("redis stream: xread %s: %w", s.key, err)
		}

		for _, st := range streams {
			for _, msg := range st.Messages {
				s.lastID = msg.ID
				event, _ := msg.Values["event"].(string)
				if event == "" {
					continue
				}
				f := Frame{Event: event}
				if data, ok := msg.Values["data"].(string); ok && data != "" {
					f.Data = []byte(data)
				}
				s.pending = append(s.pending, f)
			}
		}
	}
	f := s.pending[0]
	s.pending = s.pending[1:]
	return f, nil
}

func (s *streamConn) Close() error {
	s.cancel()
	return nil
}
