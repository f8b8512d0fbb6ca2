package optimistic

import "sync"

// Mirror is a client-side copy of a server-fetched list. Records are kept in
// insertion order and indexed by key, so a key is never present twice.
type Mirror[K comparable, T any] struct {
	mu    sync.RWMutex
	keyFn func(T) K
	order []K
	items map[K]T
}

// NewMirror builds a mirror from the initial list. A key repeated in items
// keeps its first position and its last value.
func NewMirror[K comparable, T any](items []T, keyFn func(T) K) *Mirror[K, T] {
	m := &Mirror[K, T]{keyFn: keyFn}
	m.reset(items)
	return m
}

func (m *Mirror[K, T]) reset(items []T) {
	m.order = make([]K, 0, len(items))
	m.items = make(map[K]T, len(items))
	for _, it := range items {
		k := m.keyFn(it)
		if _, ok := m.items[k]; !ok {
			m.order = append(m.order, k)
		}
		m.items[k] = it
	}
}

// Key returns the key of item.
func (m *Mirror[K, T]) Key(item T) K { return m.keyFn(item) }

// Reset replaces the whole list, as after a full refetch.
func (m *Mirror[K, T]) Reset(items []T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset(items)
}

// Items returns a copy of the records in order.
func (m *Mirror[K, T]) Items() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.items[k])
	}
	return out
}

// Get returns the record stored under key.
func (m *Mirror[K, T]) Get(key K) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[key]
	return it, ok
}

// Len returns the number of records.
func (m *Mirror[K, T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Put replaces the record with the same key in place, or appends it.
func (m *Mirror[K, T]) Put(item T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(m.keyFn(item), item, -1)
}

// Prepend replaces the record with the same key in place, or inserts it
// first.
func (m *Mirror[K, T]) Prepend(item T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(m.keyFn(item), item, 0)
}

// Remove drops the record stored under key and reports whether it existed.
func (m *Mirror[K, T]) Remove(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(key)
}

// slot is where a key sits in the order: whether it is present and which
// key precedes it.
type slot[K comparable] struct {
	placed  bool
	prev    K
	hasPrev bool
}

func (m *Mirror[K, T]) slotOf(key K) slot[K] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot(key)
}

func (m *Mirror[K, T]) slot(key K) slot[K] {
	if _, ok := m.items[key]; !ok {
		return slot[K]{}
	}
	i := m.position(key)
	if i <= 0 {
		return slot[K]{placed: true}
	}
	return slot[K]{placed: true, prev: m.order[i-1], hasPrev: true}
}

// restore stores item under key. A key that had no slot goes last; one that
// had goes right after its previous neighbour, or first when that
// neighbour is gone.
func (m *Mirror[K, T]) restore(key K, item T, s slot[K]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !s.placed {
		m.put(key, item, -1)
		return
	}
	at := 0
	if s.hasPrev {
		if i := m.position(s.prev); i >= 0 {
			at = i + 1
		}
	}
	m.put(key, item, at)
}

func (m *Mirror[K, T]) unset(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(key)
}

func (m *Mirror[K, T]) position(key K) int {
	if _, ok := m.items[key]; !ok {
		return -1
	}
	for i, k := range m.order {
		if k == key {
			return i
		}
	}
	return -1
}

func (m *Mirror[K, T]) put(key K, item T, at int) {
	if _, ok := m.items[key]; ok {
		m.items[key] = item
		return
	}
	m.items[key] = item
	if at < 0 || at >= len(m.order) {
		m.order = append(m.order, key)
		return
	}
	m.order = append(m.order, key)
	copy(m.order[at+1:], m.order[at:])
	m.order[at] = key
}

func (m *Mirror[K, T]) remove(key K) bool {
	if _, ok := m.items[key]; !ok {
		return false
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}
