// Package lazy provides a compute-once cell for values that are expensive to build
// and whose dependencies are only known when the owner is configured.
//
// A Value runs its factory on the first call to Get. Callers that arrive while a
// build is in flight wait for that build and observe its result, so a factory is
// invoked at most once per attempt no matter how many goroutines race on first access.
// Once a build succeeds the value is fixed for the lifetime of the cell and every
// later Get is a single atomic load.
//
// What happens after a failed build is governed by the Policy:
//   - Retry (default): the error is returned to the callers of the failed attempt and
//     the cell stays empty, the next Get runs the factory again.
//   - Poison: the first error is remembered and returned from every later Get.
//
// Example usage:
//
//	pipe := lazy.New(func() (pipe.SendPipe, error) {
//	    return cfg.CreateSendPipe()
//	})
//	p, err := pipe.Get()
package lazy

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fogfish/opts"
)

// ErrFactoryPanic wraps the value recovered from a panicking factory.
var ErrFactoryPanic = errors.New("lazy: factory panicked")

// Policy decides what a Value does after its factory fails.
type Policy int

const (
	// Retry leaves the value unmaterialized so the next Get builds again.
	Retry Policy = iota
	// Poison caches the first failure and returns it forever.
	Poison
)

func (p Policy) String() string {
	switch p {
	case Retry:
		return "retry"
	case Poison:
		return "poison"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "retry" and "poison" to a Policy. The empty string is Retry.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "retry":
		return Retry, nil
	case "poison":
		return Poison, nil
	default:
		return Retry, fmt.Errorf("lazy: unknown policy %q", s)
	}
}

type settings struct {
	policy Policy
}

// WithPolicy sets the failure policy of a Value.
var WithPolicy = opts.ForName[settings, Policy]("policy")

type call[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Value is a thread-safe, build-once holder for a T.
type Value[T any] struct {
	factory func() (T, error)
	policy  Policy

	mu       sync.Mutex
	inflight *call[T]

	// settled is set after value or err are written; reads of those fields are
	// ordered after the atomic load that observed true.
	settled atomic.Bool
	value   T
	err     error
}

// New creates an unmaterialized Value backed by factory.
func New[T any](factory func() (T, error), options ...opts.Option[settings]) *Value[T] {
	var o settings
	if err := opts.Apply(&o, options); err != nil {
		panic(err)
	}
	return &Value[T]{
		factory: factory,
		policy:  o.policy,
	}
}

// Of wraps a factory that cannot fail.
func Of[T any](factory func() T, options ...opts.Option[settings]) *Value[T] {
	return New(func() (T, error) { return factory(), nil }, options...)
}

// Get returns the value, building it on first use.
func (v *Value[T]) Get() (T, error) {
	if v.settled.Load() {
		return v.value, v.err
	}

	v.mu.Lock()
	if v.settled.Load() {
		v.mu.Unlock()
		return v.value, v.err
	}
	if c := v.inflight; c != nil {
		v.mu.Unlock()
		<-c.done
		return c.value, c.err
	}
	c := &call[T]{done: make(chan struct{})}
	v.inflight = c
	v.mu.Unlock()

	c.value, c.err = v.invoke()

	v.mu.Lock()
	switch {
	case c.err == nil:
		v.value = c.value
		v.settled.Store(true)
	case v.policy == Poison:
		v.err = c.err
		v.settled.Store(true)
	}
	v.inflight = nil
	v.mu.Unlock()
	close(c.done)

	return c.value, c.err
}

// IsMaterialized reports whether a build has succeeded. It never triggers one.
func (v *Value[T]) IsMaterialized() bool {
	return v.settled.Load() && v.err == nil
}

// Peek returns the value if it has been built, without building it.
func (v *Value[T]) Peek() (T, bool) {
	if v.IsMaterialized() {
		return v.value, true
	}
	var zero T
	return zero, false
}

func (v *Value[T]) invoke() (value T, err error) {
	if v.factory == nil {
		return value, errors.New("lazy: nil factory")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFactoryPanic, r)
		}
	}()
	return v.factory()
}
