package generic

import (
	"sync"
	"sync/atomic"
)

// Once returns a getter that calls f on first use and caches its result.
// Concurrent first callers block until f returns; f runs at most once.
func Once[T any](f func() T) func() T {
	l := NewLazy(f)
	return l.Get
}

// Lazy defers fn until the first Get and caches the result for the life of the value.
type Lazy[T any] struct {
	once   sync.Once
	fn     func() T
	v      T
	loaded atomic.Bool
}

func NewLazy[T any](fn func() T) *Lazy[T] {
	return &Lazy[T]{fn: fn}
}

func (l *Lazy[T]) Get() T {
	l.once.Do(func() {
		l.v = l.fn()
		l.loaded.Store(true)
	})
	return l.v
}

// Loaded reports whether fn has already returned. It never triggers fn.
func (l *Lazy[T]) Loaded() bool {
	return l.loaded.Load()
}
