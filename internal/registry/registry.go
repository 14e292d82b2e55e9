// Package registry is the process-wide map from job key to live transfer handle.
package registry

import (
	"sort"
	"sync"
)

// Registry is a concurrency-safe keyed store. Each method is atomic with
// respect to every other call on the same registry.
type Registry[V comparable] struct {
	mu      sync.Mutex
	entries map[string]V
}

func New[V comparable]() *Registry[V] {
	return &Registry[V]{entries: make(map[string]V)}
}

// Store inserts v under key unless the key is already taken.
func (r *Registry[V]) Store(key string, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return false
	}

	r.entries[key] = v

	return true
}

func (r *Registry[V]) Load(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[key]

	return v, ok
}

func (r *Registry[V]) LoadAndDelete(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}

	return v, ok
}

// CompareAndDelete removes key only while it still maps to v, so a settling
// transfer never removes the entry of a newer transfer for the same key.
func (r *Registry[V]) CompareAndDelete(key string, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[key]
	if !ok || cur != v {
		return false
	}

	delete(r.entries, key)

	return true
}

func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Values returns the current entries ordered by key.
func (r *Registry[V]) Values() []V {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))

	for k := range r.entries {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.entries[k])
	}
	r.mu.Unlock()

	return out
}
