// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Guard wraps a value with an RWMutex for cheap cross-goroutine reads.
type Guard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard creates a guarded value.
func NewGuard[T any](initial T) *Guard[T] {
	return &Guard[T]{value: initial}
}

// Get returns a copy of the value (T should be a value type or immutable).
func (g *Guard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set atomically replaces the value.
func (g *Guard[T]) Set(v T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// Update executes fn while holding the write lock, fn receives a pointer
// for in-place mutation.
func (g *Guard[T]) Update(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
}

// Swap atomically replaces and returns the old value.
func (g *Guard[T]) Swap(v T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.value
	g.value = v
	return old
}
