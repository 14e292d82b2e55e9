package registry_test

import (
	"strconv"
	"sync"
	"testing"

	"github.com/italolelis/imgbb_downloader/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct{ id int }

func TestStore_RejectsTakenKey(t *testing.T) {
	r := registry.New[*handle]()
	a, b := &handle{1}, &handle{2}

	require.True(t, r.Store("https://ibb.co/abc", a))
	assert.False(t, r.Store("https://ibb.co/abc", b))

	got, ok := r.Load("https://ibb.co/abc")
	require.True(t, ok)
	assert.Same(t, a, got)
}

func TestCompareAndDelete(t *testing.T) {
	r := registry.New[*handle]()
	old, newer := &handle{1}, &handle{2}

	require.True(t, r.Store("k", old))

	_, ok := r.LoadAndDelete("k")
	require.True(t, ok)
	require.True(t, r.Store("k", newer))

	assert.False(t, r.CompareAndDelete("k", old), "stale owner must not remove the newer entry")
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.CompareAndDelete("k", newer))
	assert.Equal(t, 0, r.Len())
}

func TestLoadAndDelete_Missing(t *testing.T) {
	r := registry.New[*handle]()

	v, ok := r.LoadAndDelete("missing")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestValues_SortedByKey(t *testing.T) {
	r := registry.New[*handle]()
	r.Store("b", &handle{2})
	r.Store("a", &handle{1})
	r.Store("c", &handle{3})

	vals := r.Values()
	require.Len(t, vals, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{vals[0].id, vals[1].id, vals[2].id})
}

func TestConcurrentAccess(t *testing.T) {
	r := registry.New[*handle]()

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			h := &handle{i}
			key := strconv.Itoa(i % 10)

			if r.Store(key, h) {
				r.CompareAndDelete(key, h)
			}

			r.Load(key)
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
