// Package locking serializes read-then-write sequences per subject key.
// The resolver's archive-then-create two-step and the ingestor's duplicate
// and no-change checks are non-atomic across their statements; holding the
// subject's lock for the duration keeps concurrent uplinks for the same
// sensor, vehicle, or (truck, signal) pair from both deciding to create.
package locking

import (
	"sort"
	"sync"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex provides one mutex per string key. Entries are created on first
// use and removed once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*lockEntry)}
}

func (m *KeyedMutex) acquire(key string) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &lockEntry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()
	e.mu.Lock()
}

func (m *KeyedMutex) release(key string) {
	m.mu.Lock()
	e := m.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	e.mu.Unlock()
}

// Lock acquires the mutex for a single key and returns the matching unlock.
func (m *KeyedMutex) Lock(key string) func() {
	return m.LockAll(key)
}

// LockAll acquires the mutexes for all given keys in sorted order, so two
// callers locking overlapping key sets cannot deadlock. Duplicate keys are
// collapsed. The returned func releases everything in reverse order.
func (m *KeyedMutex) LockAll(keys ...string) func() {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		m.acquire(k)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			m.release(sorted[i])
		}
	}
}
