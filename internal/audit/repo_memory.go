package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process. The local profile uses it; events are
// lost on restart.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Recent returns up to limit events for profile, newest first.
func (r *MemoryRepo) Recent(_ context.Context, profile string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].Profile == profile {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
