package runlock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker guards runs inside a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]string)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	holder := newHolder()
	l.held[key] = holder
	return &memoryLease{locker: l, key: key, holder: holder}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	holder string
}

func (m *memoryLease) Key() string { return m.key }

// TTL is zero: memory leases live until released.
func (m *memoryLease) TTL() time.Duration { return 0 }

func (m *memoryLease) Refresh(_ context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if m.locker.held[m.key] != m.holder {
		return ErrLost
	}
	return nil
}

func (m *memoryLease) Release(_ context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()

	if m.locker.held[m.key] == m.holder {
		delete(m.locker.held, m.key)
	}
	return nil
}
