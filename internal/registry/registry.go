// Package registry is a concurrent name to value map shared by the serializer
// registry and the per-address caches of endpoint and transport providers.
package registry

import (
	"sync"

	"github.com/alphadose/haxmap"
)

type Registry[T any] interface {
	Get(name string) (T, bool)
	Add(name string, value T)
	// GetOrAdd returns the stored value for name, computing and storing it when absent.
	// The boolean reports whether the value was already present.
	GetOrAdd(name string, value func() T) (T, bool)
	Del(name string)
	Len() int
	// Range visits every entry until fn returns false.
	Range(fn func(name string, value T) bool)
	// Drain removes every entry and returns the removed values.
	Drain() []T
}

type registry[T any] struct {
	// mu serializes inserts; haxmap's GetOrCompute can run valueFn twice for one key
	mu     sync.Mutex
	values *haxmap.Map[string, T]
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) Add(name string, value T) {
	r.values.Set(name, value)
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	if v, ok := r.values.Get(name); ok {
		return v, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.values.Get(name); ok {
		return v, true
	}
	v := valueFn()
	r.values.Set(name, v)
	return v, false
}

func (r *registry[T]) Del(name string) {
	r.values.Del(name)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}

func (r *registry[T]) Range(fn func(name string, value T) bool) {
	r.values.ForEach(fn)
}

func (r *registry[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	var out []T
	r.values.ForEach(func(k string, v T) bool {
		keys = append(keys, k)
		out = append(out, v)
		return true
	})
	if len(keys) > 0 {
		r.values.Del(keys...)
	}
	return out
}
