package once

// eager holds a value that was built before the constructor returned. Get only reads.
type eager[T any] struct {
	policy Policy
	value  T
}

func newEagerConst[T any](create func() T) *eager[T] {
	return &eager[T]{policy: PolicyEagerConst, value: create()}
}

// newEagerBlock builds the value in a separate initialization step, the way a
// package init func fills in a package-level variable. Behaviour matches newEagerConst.
func newEagerBlock[T any](create func() T) *eager[T] {
	e := &eager[T]{policy: PolicyEagerBlock}
	e.initialize(create)
	return e
}

func (e *eager[T]) initialize(create func() T) {
	e.value = create()
}

func (e *eager[T]) Get() T { return e.value }

func (e *eager[T]) Policy() Policy { return e.policy }

func (e *eager[T]) state() initState { return stateReady }
