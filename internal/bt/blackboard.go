// Package bt holds the per-agent blackboard shared between planners, probes
// and behaviour tree leaves.
package bt

import (
	"maps"
	"slices"
	"sync"
)

// Blackboard provides a thread-safe key-value store for per-agent state.
//
// Usage: Create with new(Blackboard). The internal map is lazily initialized
// on the first write operation.
type Blackboard struct {
	mu   sync.RWMutex
	data map[string]any
}

// init initializes the blackboard's internal map if needed.
// Callers must hold the write lock.
func (b *Blackboard) init() {
	if b.data == nil {
		b.data = make(map[string]any)
	}
}

// Get retrieves a value from the blackboard.
// Returns nil if the key doesn't exist.
func (b *Blackboard) Get(key string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil
	}
	return b.data[key]
}

// Lookup is Get with an existence flag, to tell a stored nil from a missing key.
func (b *Blackboard) Lookup(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil, false
	}
	v, ok := b.data[key]
	return v, ok
}

// Set stores a value in the blackboard.
func (b *Blackboard) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init()
	b.data[key] = value
}

// Has returns true if the key exists in the blackboard.
func (b *Blackboard) Has(key string) bool {
	_, ok := b.Lookup(key)
	return ok
}

// Delete removes a key from the blackboard.
func (b *Blackboard) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return
	}
	delete(b.data, key)
}

// Keys returns all keys in the blackboard, sorted.
// Sorting keeps anything derived from the key set (signatures, traces)
// deterministic across runs.
func (b *Blackboard) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(b.data))
}

// Clear removes all entries from the blackboard.
func (b *Blackboard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]any)
}

// Len returns the number of keys in the blackboard.
func (b *Blackboard) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Snapshot returns a shallow copy of the blackboard data.
//
// WARNING: This is a SHALLOW copy. Mutable values (slices, maps, pointers)
// are shared with the blackboard; callers that modify them must deep copy
// first.
func (b *Blackboard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.data == nil {
		return nil
	}
	return maps.Clone(b.data)
}
