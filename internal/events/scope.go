package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"autodl-console/internal/channel"
	"autodl-console/internal/notify"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"
)

// Scope is a consumer tied to the lifetime of one view. Unmount removes only
// this scope's handler and never closes the shared connection.
type Scope struct {
	src     Source
	name    string
	event   string
	timeout time.Duration
	handle  func(ctx context.Context, e Event)
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	id      channel.ListenerID
	mounted bool
}

// NewScope builds a scope that passes every decoded progress event to handle.
// name labels the consumer in logs and metrics.
func NewScope(src Source, name string, handle func(ctx context.Context, e Event), opts Options) *Scope {
	return &Scope{
		src:     src,
		name:    name,
		event:   opts.event(),
		timeout: opts.connectTimeout(),
		handle:  handle,
		log:     logger.OrDefault(opts.Logger).With("component", "scope", "scope", name),
		metrics: opts.Metrics,
	}
}

// NewAlertScope builds the scope that raises a blocking alert when a batch
// finishes or fails.
func NewAlertScope(src Source, a notify.Alerter, opts Options) *Scope {
	return NewScope(src, "alerts", func(ctx context.Context, e Event) {
		Alert(ctx, a, e)
	}, opts)
}

// Mount registers the scope's handler and connects the channel if needed.
// Mounting a mounted scope does nothing. A connection error is returned; the
// handler stays registered.
func (s *Scope) Mount(ctx context.Context) error {
	s.mu.Lock()
	if !s.mounted {
		s.id = s.src.On(s.event, s.onUpdate)
		s.mounted = true
	}
	s.mu.Unlock()

	if err := connect(ctx, s.src, s.timeout); err != nil {
		s.log.Warn("channel connect failed", "err", err)
		return err
	}
	return nil
}

// Unmount removes this scope's handler.
func (s *Scope) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	s.src.Off(s.event, s.id)
	s.id = ""
	s.mounted = false
}

func (s *Scope) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *Scope) onUpdate(ctx context.Context, data json.RawMessage) {
	e := Parse(data)
	s.metrics.Event(s.name, e.Variant.String())
	s.handle(ctx, e)
}
