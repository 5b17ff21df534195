package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	value     []byte
	list      [][]byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Memory is the single-process Store.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]entry
	log    *zap.Logger
	now    func() time.Time
	stopCh chan struct{}
	once   sync.Once
}

// NewMemory starts a store whose expired entries are swept every
// cleanupInterval.
func NewMemory(cleanupInterval time.Duration, log *zap.Logger) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	m := &Memory{
		data:   make(map[string]entry),
		log:    log,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	go m.cleanupLoop(cleanupInterval)

	log.Info("In-memory session store initialized",
		zap.Duration("cleanup_interval", cleanupInterval),
	)
	return m
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || e.expired(m.now()) || e.value == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = entry{
		value:     append([]byte{}, value...),
		expiresAt: m.deadline(ttl),
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Append(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		e = entry{}
	}
	e.value = nil
	e.list = append(e.list, append([]byte{}, value...))
	e.expiresAt = m.deadline(ttl)
	m.data[key] = e
	return nil
}

func (m *Memory) List(ctx context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		return [][]byte{}, nil
	}
	out := make([][]byte, len(e.list))
	for i, v := range e.list {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Memory) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expired := 0
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			expired++
		}
	}

	if expired > 0 {
		m.log.Debug("Session store cleanup completed", zap.Int("expired_entries", expired))
	}
}

// SetClock swaps the time source; tests use it to step past TTLs.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
