package channel

import (
	"context"
	"sync"
)

type envelope struct {
	frame   Frame
	barrier chan struct{}
}

// mailbox is an unbounded FIFO between the read loop and the dispatcher.
// push never blocks, so state-change events can be queued while holding the
// channel lock.
type mailbox struct {
	mu     sync.Mutex
	items  []envelope
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(e envelope) {
	m.mu.Lock()
	m.items = append(m.items, e)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or ctx is done.
func (m *mailbox) pop(ctx context.Context) (envelope, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			e := m.items[0]
			m.items[0] = envelope{}
			m.items = m.items[1:]
			m.mu.Unlock()
			return e, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
		case <-ctx.Done():
			return envelope{}, false
		}
	}
}
