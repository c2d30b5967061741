package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte(`{"data":1}`), time.Minute))

	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"data":1}`), val)
}

func TestMemory_Miss(t *testing.T) {
	c := NewMemory()

	_, ok, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_Expiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 30*time.Millisecond))

	_, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry should expire")
	assert.Equal(t, 0, c.Len(), "expired entry should be evicted on Get")
}

func TestMemory_ZeroTTLNotStored(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_OverwriteRefreshesTTL(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("old"), 20*time.Millisecond))
	require.NoError(t, c.Set(ctx, "k", []byte("new"), time.Minute))

	time.Sleep(40 * time.Millisecond)

	val, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), val)
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = c.Set(ctx, "shared", []byte("v"), time.Second)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, _, _ = c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	val, ok, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}
