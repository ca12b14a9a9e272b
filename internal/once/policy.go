package once

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownPolicy = errors.New("unknown policy")

// Policy selects how an Initializer handles contended first access.
type Policy int

const (
	// PolicyUnsynchronized checks and assigns with nothing in between but a delay.
	// Concurrent first callers each build their own value. It exists to be caught.
	PolicyUnsynchronized Policy = iota + 1
	// PolicySyncMethod holds the lock for the entire Get, forever.
	PolicySyncMethod
	// PolicySyncBlock holds the lock around check-and-create only.
	PolicySyncBlock
	// PolicyEagerConst builds the value in the constructor expression.
	PolicyEagerConst
	// PolicyEagerBlock builds the value in an explicit initialization step of the constructor.
	PolicyEagerBlock
	// PolicyDoubleChecked takes the lock only while the value is still missing.
	PolicyDoubleChecked
	// PolicyHolder defers to a lazy-value cell guarded by sync.Once.
	PolicyHolder
)

var policyNames = map[Policy]string{
	PolicyUnsynchronized: "unsynchronized",
	PolicySyncMethod:     "sync-method",
	PolicySyncBlock:      "sync-block",
	PolicyEagerConst:     "eager-const",
	PolicyEagerBlock:     "eager-block",
	PolicyDoubleChecked:  "double-checked",
	PolicyHolder:         "holder",
}

// Policies returns every policy in declaration order.
func Policies() []Policy {
	return []Policy{
		PolicyUnsynchronized,
		PolicySyncMethod,
		PolicySyncBlock,
		PolicyEagerConst,
		PolicyEagerBlock,
		PolicyDoubleChecked,
		PolicyHolder,
	}
}

func ParsePolicy(s string) (Policy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

func (p Policy) String() string {
	if n, ok := policyNames[p]; ok {
		return n
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func (p Policy) Valid() bool {
	_, ok := policyNames[p]
	return ok
}

// Correct reports whether the policy guarantees a single value under concurrency.
func (p Policy) Correct() bool {
	return p.Valid() && p != PolicyUnsynchronized
}

// Eager reports whether the value is built before the first Get.
func (p Policy) Eager() bool {
	return p == PolicyEagerConst || p == PolicyEagerBlock
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPolicy, int(p))
	}
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
