// Package channel owns the one shared real-time connection to the bot server.
//
// Every consumer registers handlers on the same Channel. Handlers are keyed by
// event name and identified by the ListenerID returned from On, so a consumer
// removes exactly its own registrations.
//
// Frames are delivered by a single dispatcher goroutine in the order the
// transport produced them. All handlers for one frame finish before the next
// frame is delivered. The reserved events "connect" and "disconnect" are queued
// on the same path when the connection state changes.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"

	"github.com/google/uuid"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

var allStates = []string{string(StateDisconnected), string(StateConnecting), string(StateConnected)}

// Reserved event names. Frames from the server with these names are dropped.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

var (
	ErrClosed       = errors.New("channel: closed")
	ErrNotConnected = errors.New("channel: not connected")
	errAborted      = errors.New("channel: disconnected while connecting")
)

// Handler receives the raw data of one frame. ctx carries the channel logger
// and is cancelled when the channel is closed.
type Handler func(ctx context.Context, data json.RawMessage)

type ListenerID string

type listener struct {
	id      ListenerID
	fn      Handler
	removed atomic.Bool
}

type dialAttempt struct {
	done    chan struct{}
	err     error
	aborted bool
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Channel struct {
	transport Transport
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu         sync.Mutex
	state      State
	conn       Conn
	connCancel context.CancelFunc
	gen        uint64
	dialing    *dialAttempt
	listeners  map[string][]*listener
	closed     bool

	box    *mailbox
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a disconnected channel and starts its dispatcher. Call Close to
// stop it.
func New(t Transport, opts Options) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		transport: t,
		log:       logger.OrDefault(opts.Logger).With("component", "channel"),
		metrics:   opts.Metrics,
		state:     StateDisconnected,
		listeners: map[string][]*listener{},
		box:       newMailbox(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.metrics.SetChannelState(string(StateDisconnected), allStates...)
	go c.dispatch()
	return c
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool { return c.State() == StateConnected }

// Connect opens the connection if it is not already open. Concurrent callers
// share one dial and all receive its result. ctx bounds the dial only; the
// connection lives until Disconnect, Close, or a transport failure.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if a := c.dialing; a != nil {
		c.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a := &dialAttempt{done: make(chan struct{})}
	c.dialing = a
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx)

	c.mu.Lock()
	if c.dialing == a {
		c.dialing = nil
	}
	switch {
	case a.aborted || c.closed:
		if err == nil {
			_ = conn.Close()
		}
		err = errAborted
	case err != nil:
		c.setStateLocked(StateDisconnected)
		err = fmt.Errorf("channel: connect: %w", err)
	default:
		c.gen++
		gen := c.gen
		readCtx, cancel := context.WithCancel(c.ctx)
		c.conn = conn
		c.connCancel = cancel
		c.setStateLocked(StateConnected)
		c.box.push(envelope{frame: Frame{Event: EventConnect}})
		go c.readLoop(readCtx, conn, gen)
	}
	a.err = err
	c.mu.Unlock()
	close(a.done)

	if err != nil {
		c.log.Warn("connect failed", "err", err)
		return err
	}
	c.log.Info("connected")
	return nil
}

// Disconnect closes the connection. It is an application-level teardown and
// must not be called by a consumer that only wants to stop listening.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if a := c.dialing; a != nil {
		a.aborted = true
		c.dialing = nil
	}
	conn, cancel := c.conn, c.connCancel
	wasConnected := c.state == StateConnected
	c.conn, c.connCancel = nil, nil
	c.gen++
	c.setStateLocked(StateDisconnected)
	if wasConnected {
		c.box.push(envelope{frame: Frame{Event: EventDisconnect}})
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	c.log.Info("disconnected")
	return conn.Close()
}

// Close disconnects and stops the dispatcher. Pending frames are dropped.
// It must not be called from a Handler.
func (c *Channel) Close() error {
	err := c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	<-c.done
	return err
}

// On registers fn for event and returns the id that removes it.
func (c *Channel) On(event string, fn Handler) ListenerID {
	l := &listener{id: ListenerID(uuid.NewString()), fn: fn}
	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], l)
	n := len(c.listeners[event])
	c.mu.Unlock()

	c.metrics.SetListeners(event, n)
	return l.id
}

// Off removes the registration id under event. It reports whether it was
// registered. A removed handler is not called again, even for a frame already
// being delivered.
func (c *Channel) Off(event string, id ListenerID) bool {
	c.mu.Lock()
	ls := c.listeners[event]
	found := false
	for i, l := range ls {
		if l.id != id {
			continue
		}
		l.removed.Store(true)
		c.listeners[event] = append(ls[:i:i], ls[i+1:]...)
		found = true
		break
	}
	n := len(c.listeners[event])
	if n == 0 {
		delete(c.listeners, event)
	}
	c.mu.Unlock()

	c.metrics.SetListeners(event, n)
	return found
}

// OffAll removes every handler for event, including other consumers'.
func (c *Channel) OffAll(event string) int {
	c.mu.Lock()
	ls := c.listeners[event]
	for _, l := range ls {
		l.removed.Store(true)
	}
	delete(c.listeners, event)
	c.mu.Unlock()

	c.metrics.SetListeners(event, 0)
	return len(ls)
}

func (c *Channel) ListenerCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners[event])
}

// Drain waits until every frame queued before the call has been delivered.
func (c *Channel) Drain(ctx context.Context) error {
	b := make(chan struct{})
	c.box.push(envelope{barrier: b})
	select {
	case <-b:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		f, err := conn.Read(ctx)
		if err != nil {
			c.lost(conn, gen, err)
			return
		}
		switch f.Event {
		case "":
			c.log.Debug("dropping frame without event name")
			continue
		case EventConnect, EventDisconnect:
			c.log.Debug("dropping frame with reserved event name", "event", f.Event)
			continue
		}
		c.box.push(envelope{frame: f})
	}
}

// lost handles a read failure. It is a no-op when the connection was already
// replaced or torn down.
func (c *Channel) lost(conn Conn, gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	cancel := c.connCancel
	c.conn, c.connCancel = nil, nil
	c.setStateLocked(StateDisconnected)
	c.box.push(envelope{frame: Frame{Event: EventDisconnect}})
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = conn.Close()
	c.log.Warn("connection lost", "err", err)
}

func (c *Channel) dispatch() {
	defer close(c.done)
	for {
		e, ok := c.box.pop(c.ctx)
		if !ok {
			return
		}
		if e.barrier != nil {
			close(e.barrier)
			continue
		}
		c.deliver(e.frame)
	}
}

func (c *Channel) deliver(f Frame) {
	c.mu.Lock()
	ls := append([]*listener(nil), c.listeners[f.Event]...)
	c.mu.Unlock()

	if len(ls) == 0 {
		c.log.Debug("no listeners", "event", f.Event)
		return
	}
	log := c.log.With("event", f.Event)
	ctx := logger.With(c.ctx, log)
	for _, l := range ls {
		if l.removed.Load() {
			continue
		}
		c.invoke(ctx, log, l, f.Data)
	}
}

func (c *Channel) invoke(ctx context.Context, log *slog.Logger, l *listener, data json.RawMessage) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("listener panicked", "listener", l.id, "panic", p)
		}
	}()
	l.fn(ctx, data)
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	c.metrics.SetChannelState(string(s), allStates...)
}
