package once

import (
	"time"

	"github.com/mbeoliero/singleton/pkg/generic"
)

// holder leaves the once-only guarantee to generic.Lazy.
type holder[T any] struct {
	lazy  *generic.Lazy[T]
	delay time.Duration
}

func newHolder[T any](create func() T, delay time.Duration) *holder[T] {
	return &holder[T]{
		lazy: generic.NewLazy(func() T {
			pause(delay)
			return create()
		}),
		delay: delay,
	}
}

func (h *holder[T]) Get() T { return h.lazy.Get() }

func (h *holder[T]) Policy() Policy { return PolicyHolder }

func (h *holder[T]) raceWindow() time.Duration { return h.delay }

func (h *holder[T]) state() initState {
	if h.lazy.Loaded() {
		return stateReady
	}
	return stateUninitialized
}
