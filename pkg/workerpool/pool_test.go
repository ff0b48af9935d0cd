package workerpool_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/pkg/workerpool"
)

func TestPool_SubmitAndExecute(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Shutdown()

	const n = 100
	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		require.NoError(t, pool.SubmitWait(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int64(n), count.Load())
}

func TestPool_ErrPoolFull(t *testing.T) {
	pool := workerpool.New(1)
	defer pool.Shutdown()

	blocker := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.SubmitWait(func() {
		close(started)
		<-blocker
	}))
	<-started

	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))
	assert.ErrorIs(t, pool.Submit(func() {}), workerpool.ErrPoolFull)

	close(blocker)
}

func TestPool_ErrPoolClosed(t *testing.T) {
	pool := workerpool.New(2)
	pool.Shutdown()
	pool.Shutdown()

	assert.ErrorIs(t, pool.Submit(func() {}), workerpool.ErrPoolClosed)
	assert.ErrorIs(t, pool.SubmitWait(func() {}), workerpool.ErrPoolClosed)
}

func TestPool_PanicRecovery(t *testing.T) {
	pool := workerpool.New(2)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	_ = pool.SubmitWait(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	normal := make(chan struct{})
	_ = pool.SubmitWait(func() { close(normal) })
	select {
	case <-normal:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not recover from panic")
	}
}

func TestPool_SubmitKeyCoalesces(t *testing.T) {
	pool := workerpool.New(1)
	defer pool.Shutdown()

	blocker := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.SubmitWait(func() {
		close(started)
		<-blocker
	}))
	<-started

	var reloads atomic.Int32
	reload := func() { reloads.Add(1) }

	queued, err := pool.SubmitKey("catalog", reload)
	require.NoError(t, err)
	assert.True(t, queued)

	for i := 0; i < 5; i++ {
		queued, err = pool.SubmitKey("catalog", reload)
		require.NoError(t, err)
		assert.False(t, queued, "duplicate reload must be coalesced")
	}

	close(blocker)
	require.Eventually(t, func() bool { return reloads.Load() == 1 }, time.Second, 5*time.Millisecond)

	queued, err = pool.SubmitKey("catalog", reload)
	require.NoError(t, err)
	assert.True(t, queued, "key is free again once the task ran")
	require.Eventually(t, func() bool { return reloads.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPool_Shutdown_DrainsQueued(t *testing.T) {
	pool := workerpool.New(10)

	var done atomic.Int32
	for i := 0; i < 50; i++ {
		_ = pool.SubmitWait(func() {
			time.Sleep(time.Millisecond)
			done.Add(1)
		})
	}
	pool.Shutdown()
	assert.Equal(t, int32(50), done.Load())
}
