package once

import (
	"sync"
	"sync/atomic"
	"time"
)

// doubleChecked publishes through an atomic pointer: the Store in getSlow
// happens-before any Load that observes it, so readers on the fast path always
// see a fully built value.
type doubleChecked[T any] struct {
	mu     sync.Mutex
	create func() T
	delay  time.Duration
	value  atomic.Pointer[T]
	st     stateCell
}

func (d *doubleChecked[T]) Get() T {
	if v := d.value.Load(); v != nil {
		return *v
	}
	return d.getSlow()
}

func (d *doubleChecked[T]) getSlow() T {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v := d.value.Load(); v != nil {
		return *v
	}

	d.st.set(stateInProgress)
	pause(d.delay)
	v := d.create()
	d.value.Store(&v)
	d.st.set(stateReady)
	return v
}

func (d *doubleChecked[T]) Policy() Policy { return PolicyDoubleChecked }

func (d *doubleChecked[T]) raceWindow() time.Duration { return d.delay }

func (d *doubleChecked[T]) state() initState { return d.st.load() }
