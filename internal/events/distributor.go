package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autodl-console/internal/channel"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"
)

// Source is the shared channel as seen by consumers.
type Source interface {
	Connect(ctx context.Context) error
	Connected() bool
	On(event string, fn channel.Handler) channel.ListenerID
	Off(event string, id channel.ListenerID) bool
}

var _ Source = (*channel.Channel)(nil)

// DefaultConnectTimeout bounds the dial a consumer triggers.
const DefaultConnectTimeout = 10 * time.Second

type Options struct {
	// Event is the progress event name. Defaults to BotUpdate.
	Event string
	// ConnectTimeout bounds Connect calls made by Initialize and Mount.
	ConnectTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

func (o Options) event() string {
	if o.Event == "" {
		return BotUpdate
	}
	return o.Event
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return o.ConnectTimeout
}

// connect dials src unless it is already connected.
func connect(ctx context.Context, src Source, timeout time.Duration) error {
	if src.Connected() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return src.Connect(ctx)
}

// State is the Distributor's observable state.
type State struct {
	Initialized     bool `json:"initialized"`
	SocketConnected bool `json:"socket_connected"`
}

// Distributor is the app-lifetime consumer that turns progress events into
// toast notifications. There is one per process.
type Distributor struct {
	src     Source
	toaster Toaster
	event   string
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	// mu guards registration state only; it is never held across a dial.
	mu          sync.Mutex
	initialized bool
	ids         map[string]channel.ListenerID

	socketConnected atomic.Bool
}

func NewDistributor(src Source, t Toaster, opts Options) *Distributor {
	return &Distributor{
		src:     src,
		toaster: t,
		event:   opts.event(),
		timeout: opts.connectTimeout(),
		log:     logger.OrDefault(opts.Logger).With("component", "distributor"),
		metrics: opts.Metrics,
	}
}

// Initialize registers exactly one handler each for connect, disconnect and
// the progress event, then connects the channel if needed. Further calls do
// not register again; they only retry the connection if it is down.
//
// A connection error is returned but the registrations stay, so the
// distributor starts receiving as soon as anyone connects the channel.
func (d *Distributor) Initialize(ctx context.Context) error {
	d.mu.Lock()
	if !d.initialized {
		d.ids = map[string]channel.ListenerID{
			channel.EventConnect:    d.src.On(channel.EventConnect, d.onConnect),
			channel.EventDisconnect: d.src.On(channel.EventDisconnect, d.onDisconnect),
			d.event:                 d.src.On(d.event, d.onUpdate),
		}
		d.initialized = true
		d.log.Info("initialized", "event", d.event)
	}
	d.mu.Unlock()

	// Concurrent callers share the channel's single dial.
	err := connect(ctx, d.src, d.timeout)

	d.mu.Lock()
	if d.initialized {
		d.socketConnected.Store(d.src.Connected())
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Warn("channel connect failed", "err", err)
		return err
	}
	return nil
}

// Cleanup removes exactly the handlers Initialize registered. Other
// consumers keep theirs, and the channel stays connected.
func (d *Distributor) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for event, id := range d.ids {
		d.src.Off(event, id)
	}
	d.ids = nil
	d.initialized = false
	d.socketConnected.Store(false)
	d.log.Info("cleaned up")
}

func (d *Distributor) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{Initialized: d.initialized, SocketConnected: d.socketConnected.Load()}
}

func (d *Distributor) onConnect(ctx context.Context, _ json.RawMessage) {
	d.socketConnected.Store(true)
	logger.From(ctx).Info("socket connected")
}

func (d *Distributor) onDisconnect(ctx context.Context, _ json.RawMessage) {
	d.socketConnected.Store(false)
	logger.From(ctx).Info("socket disconnected")
}

func (d *Distributor) onUpdate(ctx context.Context, data json.RawMessage) {
	e := Parse(data)
	d.metrics.Event("global", e.Variant.String())
	logger.From(ctx).Debug("bot update", "variant", e.Variant.String(), "invoice", e.Invoice())
	Notify(d.toaster, e)
}
