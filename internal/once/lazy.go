package once

import (
	"sync"
	"sync/atomic"
	"time"
)

// unsynchronized is the broken lazy initializer. The pointer itself is atomic so
// the only defect is the logical check-then-act gap, not a memory data race.
type unsynchronized[T any] struct {
	create func() T
	delay  time.Duration
	value  atomic.Pointer[T]
	st     stateCell
}

func (u *unsynchronized[T]) Get() T {
	if v := u.value.Load(); v != nil {
		return *v
	}

	// every caller that got here before the first Store builds its own value.
	// A late caller may also move the state from ready back to in-progress until
	// its own Store lands; the state is as unfenced as the value.
	u.st.set(stateInProgress)
	pause(u.delay)
	v := u.create()
	u.value.Store(&v)
	u.st.set(stateReady)
	return v
}

func (u *unsynchronized[T]) Policy() Policy { return PolicyUnsynchronized }

func (u *unsynchronized[T]) raceWindow() time.Duration { return u.delay }

func (u *unsynchronized[T]) state() initState { return u.st.load() }

type syncMethod[T any] struct {
	mu     sync.Mutex
	create func() T
	delay  time.Duration
	value  *T
	st     stateCell
}

func (s *syncMethod[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.value == nil {
		s.st.set(stateInProgress)
		pause(s.delay)
		v := s.create()
		s.value = &v
		s.st.set(stateReady)
	}
	return *s.value
}

func (s *syncMethod[T]) Policy() Policy { return PolicySyncMethod }

func (s *syncMethod[T]) raceWindow() time.Duration { return s.delay }

func (s *syncMethod[T]) state() initState { return s.st.load() }

type syncBlock[T any] struct {
	mu     sync.Mutex
	create func() T
	delay  time.Duration
	value  *T
	st     stateCell
}

func (s *syncBlock[T]) Get() T {
	s.mu.Lock()
	if s.value == nil {
		s.st.set(stateInProgress)
		pause(s.delay)
		v := s.create()
		s.value = &v
		s.st.set(stateReady)
	}
	s.mu.Unlock()

	// value is written once, under mu, before any Unlock this goroutine synchronized with
	return *s.value
}

func (s *syncBlock[T]) Policy() Policy { return PolicySyncBlock }

func (s *syncBlock[T]) raceWindow() time.Duration { return s.delay }

func (s *syncBlock[T]) state() initState { return s.st.load() }
