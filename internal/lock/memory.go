package lock

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Locker. Each key is a one-slot channel, so blocked callers are
// admitted in arrival order.
type Memory struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemory(timeout time.Duration) *Memory {
	return &Memory{timeout: timeout, slots: make(map[string]*slot)}
}

func (m *Memory) Acquire(ctx context.Context, keys ...string) (func(), error) {
	return acquireAll(ctx, m.timeout, keys, m.acquireOne)
}

func (m *Memory) acquireOne(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			m.unref(key, s)
		}, nil
	case <-ctx.Done():
		m.unref(key, s)
		return nil, ctx.Err()
	}
}

// unref drops the slot once nobody holds or waits on it
func (m *Memory) unref(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// held reports how many keys currently have a holder or waiter
func (m *Memory) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
