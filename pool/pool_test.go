package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	t.Run("bounded concurrency", func(t *testing.T) {
		p := NewPool(3)
		var current, peak, completed int64
		for i := 0; i < 12; i++ {
			idx, err := p.Acquire(context.Background())
			require.NoError(t, err)
			require.LessOrEqual(t, p.Running(), 3)
			p.Go(idx, func() {
				v := atomic.AddInt64(&current, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if v <= old || atomic.CompareAndSwapInt64(&peak, old, v) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				atomic.AddInt64(&completed, 1)
			})
		}
		p.Drain()
		assert.Equal(t, int64(12), atomic.LoadInt64(&completed))
		assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
		assert.Equal(t, 0, p.Running())
	})
	t.Run("drain waits for running jobs", func(t *testing.T) {
		p := NewPool(2)
		var finished int64
		for i := 0; i < 2; i++ {
			idx, err := p.Acquire(context.Background())
			require.NoError(t, err)
			p.Go(idx, func() {
				time.Sleep(30 * time.Millisecond)
				atomic.AddInt64(&finished, 1)
			})
		}
		p.Drain()
		assert.Equal(t, int64(2), atomic.LoadInt64(&finished))
	})
	t.Run("release reserved slot", func(t *testing.T) {
		p := NewPool(1)
		idx, err := p.Acquire(context.Background())
		require.NoError(t, err)
		require.True(t, p.IsRunning(idx))
		p.Release(idx)
		require.False(t, p.IsRunning(idx))
		p.Release(idx)
		require.Equal(t, 0, p.Running())
	})
	t.Run("acquire honors context", func(t *testing.T) {
		p := NewPool(1)
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = p.Acquire(ctx)
		require.Equal(t, context.DeadlineExceeded, err)
	})
	t.Run("close", func(t *testing.T) {
		p := NewPool(1)
		idx, err := p.Acquire(context.Background())
		require.NoError(t, err)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Acquire(context.Background())
			assert.Equal(t, ErrClosed, err)
		}()
		time.Sleep(10 * time.Millisecond)
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			p.Close()
		}()
		wg.Wait()
		p.Release(idx)
		<-closed
		_, err = p.Acquire(context.Background())
		require.Equal(t, ErrClosed, err)
	})
}
