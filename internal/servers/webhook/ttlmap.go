package webhook

import (
	"sync"
	"time"
)

// DefaultRefreshInterval is how often expired entries are swept.
const DefaultRefreshInterval = 60 * time.Second

type ttlEntry[V any] struct {
	value   V
	touched time.Time
}

// TTLMap is a concurrent map whose entries expire ttl after they were last
// written or read. Expired entries are swept lazily, at most once per
// refresh interval.
type TTLMap[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K]*ttlEntry[V]
	ttl       time.Duration
	refresh   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	return &TTLMap[K, V]{
		entries: make(map[K]*ttlEntry[V]),
		ttl:     ttl,
		refresh: DefaultRefreshInterval,
		now:     time.Now,
	}
}

// Get returns the value of key and refreshes its expiry.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	e, ok := m.live(key)
	if !ok {
		var zero V
		return zero, false
	}
	e.touched = m.now()
	return e.value, true
}

// Set stores value under key.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.entries[key] = &ttlEntry[V]{value: value, touched: m.now()}
}

// GetOrCreate returns the value of key, storing create() first when the
// key is absent.
func (m *TTLMap[K, V]) GetOrCreate(key K, create func() V) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	e, ok := m.live(key)
	if !ok {
		e = &ttlEntry[V]{value: create()}
		m.entries[key] = e
	}
	e.touched = m.now()
	return e.value
}

func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *TTLMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	return len(m.entries)
}

// live returns the entry of key unless it expired. mu must be held.
func (m *TTLMap[K, V]) live(key K) (*ttlEntry[V], bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().Sub(e.touched) > m.ttl {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

// sweep must be called with mu held.
func (m *TTLMap[K, V]) sweep() {
	now := m.now()
	if now.Sub(m.lastSweep) < m.refresh {
		return
	}
	m.lastSweep = now
	for k, e := range m.entries {
		if now.Sub(e.touched) > m.ttl {
			delete(m.entries, k)
		}
	}
}
