package channel

import (
	"context"
	"sync"
)

// Pipe is an in-process Transport. Tests and the console's /dev/events route
// push frames into it with Send.
type Pipe struct {
	mu       sync.Mutex
	dials    int
	dialErr  error
	cur      *pipeConn
	dialHook func()
}

func NewPipe() *Pipe { return &Pipe{} }

func (p *Pipe) Dial(ctx context.Context) (Conn, error) {
	p.mu.Lock()
	hook := p.dialHook
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	c := &pipeConn{
		pipe:   p,
		frames: make(chan Frame, 256),
		failed: make(chan error, 1),
		closed: make(chan struct{}),
	}
	p.cur = c
	return c, nil
}

// Dials reports how many times Dial was called.
func (p *Pipe) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// FailDials makes subsequent dials return err. nil restores normal dialing.
func (p *Pipe) FailDials(err error) {
	p.mu.Lock()
	p.dialErr = err
	p.mu.Unlock()
}

// OnDial runs fn at the start of every Dial, before the dial completes.
func (p *Pipe) OnDial(fn func()) {
	p.mu.Lock()
	p.dialHook = fn
	p.mu.Unlock()
}

// Send delivers one frame on the current connection. It returns
// ErrNotConnected when there is none or it has been closed.
func (p *Pipe) Send(event string, data any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	c := p.cur
	p.mu.Unlock()
	if c == nil || c.isClosed() {
		return ErrNotConnected
	}
	select {
	case c.frames <- Frame{Event: event, Data: raw}:
		return nil
	case <-c.closed:
		return ErrNotConnected
	}
}

// Drop breaks the current connection as if the network failed with err.
func (p *Pipe) Drop(err error) {
	p.mu.Lock()
	c := p.cur
	p.cur = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case c.failed <- err:
	default:
	}
}

type pipeConn struct {
	pipe   *Pipe
	frames chan Frame
	failed chan error
	closed chan struct{}
	once   sync.Once
}

func (c *pipeConn) Read(ctx context.Context) (Frame, error) {
	// Frames already sent are delivered before a drop or close is observed.
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.failed:
		return Frame{}, err
	case <-c.closed:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *pipeConn) Close() error {
	c.once.Do(func() {
		c.pipe.mu.Lock()
		if c.pipe.cur == c {
			c.pipe.cur = nil
		}
		close(c.closed)
		c.pipe.mu.Unlock()
	})
	return nil
}

func (c *pipeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
