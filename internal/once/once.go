// Package once builds a value exactly once under concurrent first access,
// with one strategy per Policy.
//
// Every correct policy publishes the constructed value so that all of its
// fields are visible to any goroutine that later obtains it from Get.
package once

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var ErrNilFactory = errors.New("nil factory")

// DefaultRaceWindow is the pause PolicyUnsynchronized takes between its check and its store.
const DefaultRaceWindow = 10 * time.Millisecond

// Initializer owns one lazily or eagerly built value and hands it to every caller.
type Initializer[T any] interface {
	Get() T
	Policy() Policy
}

// initState is where an Initializer stands on its single Uninitialized -> Ready edge.
type initState int32

const (
	stateUninitialized initState = iota
	stateInProgress
	stateReady
)

func (s initState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateInProgress:
		return "in-progress"
	case stateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type stateCell struct {
	v atomic.Int32
}

func (c *stateCell) set(s initState) {
	c.v.Store(int32(s))
}

func (c *stateCell) load() initState {
	return initState(c.v.Load())
}

type options struct {
	delay    time.Duration
	delaySet bool
}

type Option func(*options)

// WithDelay sleeps between the "still missing?" check and the construction.
// Eager policies ignore it.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		o.delay = d
		o.delaySet = true
	}
}

// New returns an Initializer for create under policy p. Eager policies call create before returning.
func New[T any](p Policy, create func() T, opts ...Option) (Initializer[T], error) {
	if create == nil {
		return nil, ErrNilFactory
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.delaySet && p == PolicyUnsynchronized {
		o.delay = DefaultRaceWindow
	}

	switch p {
	case PolicyUnsynchronized:
		return &unsynchronized[T]{create: create, delay: o.delay}, nil
	case PolicySyncMethod:
		return &syncMethod[T]{create: create, delay: o.delay}, nil
	case PolicySyncBlock:
		return &syncBlock[T]{create: create, delay: o.delay}, nil
	case PolicyEagerConst:
		return newEagerConst(create), nil
	case PolicyEagerBlock:
		return newEagerBlock(create), nil
	case PolicyDoubleChecked:
		return &doubleChecked[T]{create: create, delay: o.delay}, nil
	case PolicyHolder:
		return newHolder(create, o.delay), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownPolicy, int(p))
	}
}

// MustNew is New for package-level declarations.
func MustNew[T any](p Policy, create func() T, opts ...Option) Initializer[T] {
	i, err := New(p, create, opts...)
	if err != nil {
		panic(err)
	}
	return i
}

func pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func stateOf[T any](i Initializer[T]) initState {
	if s, ok := i.(interface{ state() initState }); ok {
		return s.state()
	}
	return stateUninitialized
}

// RaceWindow returns the pause i actually takes between its check and
// construction, including the policy default. Eager initializers report 0.
func RaceWindow[T any](i Initializer[T]) time.Duration {
	if w, ok := i.(interface{ raceWindow() time.Duration }); ok {
		return w.raceWindow()
	}
	return 0
}

// Ready reports whether i has already built its value. It never triggers construction.
func Ready[T any](i Initializer[T]) bool {
	return stateOf(i) == stateReady
}
