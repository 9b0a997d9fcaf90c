package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := New[int]()

	_, ok := r.Get("a")
	assert.False(t, ok)

	r.Add("a", 1)
	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, loaded := r.GetOrAdd("a", func() int { return 99 })
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = r.GetOrAdd("b", func() int { return 2 })
	assert.False(t, loaded)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, r.Len())

	var names []string
	r.Range(func(name string, _ int) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	assert.Equal(t, []string{"a", "b"}, names)

	r.Del("a")
	_, ok = r.Get("a")
	assert.False(t, ok)

	drained := r.Drain()
	assert.Equal(t, []int{2}, drained)
	assert.Equal(t, 0, r.Len())
}

func TestGetOrAddConcurrent(t *testing.T) {
	r := New[*int]()
	var calls atomic.Int32

	var wg sync.WaitGroup
	results := make([]*int, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.GetOrAdd("k", func() *int {
				calls.Add(1)
				n := 7
				return &n
			})
		}(i)
	}
	wg.Wait()

	for _, p := range results {
		require.NotNil(t, p)
		assert.Equal(t, 7, *p)
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(1), calls.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
}
