package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCache_GetPut(t *testing.T) {
	c := NewMapCache()
	_, ok := c.Get("missing")
	assert.False(t, ok)

	params := []uint32{4, 8, 1}
	c.Put("conv2d_1x1_opencl_kernel1161664", params)
	params[0] = 99 // caller mutation must not leak in

	got, ok := c.Get("conv2d_1x1_opencl_kernel1161664")
	require.True(t, ok)
	assert.Equal(t, []uint32{4, 8, 1}, got)

	got[1] = 77 // nor must mutation of the returned slice
	again, _ := c.Get("conv2d_1x1_opencl_kernel1161664")
	assert.Equal(t, []uint32{4, 8, 1}, again)
	assert.Equal(t, 1, c.Size())
}

func TestMapCache_SnapshotAndKeys(t *testing.T) {
	c := NewMapCache()
	c.Put("b", []uint32{1})
	c.Put("a", []uint32{2, 3})

	snap := c.Snapshot()
	assert.Equal(t, map[string][]uint32{"a": {2, 3}, "b": {1}}, snap)
	snap["a"][0] = 0
	got, _ := c.Get("a")
	assert.Equal(t, []uint32{2, 3}, got)

	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestMapCache_Concurrent(t *testing.T) {
	c := NewMapCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			c.Put(key, []uint32{uint32(i)})
			_, _ = c.Get(key)
			_ = c.Size()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Size())
}
