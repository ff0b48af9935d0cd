package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvci/resto/pkg/database"
	"github.com/uvci/resto/pkg/queue"
)

var (
	echoed   atomic.Int32
	attempts atomic.Int32
)

type echoJob struct {
	Val string `json:"val"`
}

func (echoJob) JobName() string { return "echo" }

func (j *echoJob) Handle(context.Context) error {
	if j.Val == "" {
		return errors.New("payload lost")
	}
	echoed.Add(1)
	return nil
}

type failJob struct{}

func (failJob) JobName() string { return "fail" }

func (*failJob) Handle(context.Context) error {
	attempts.Add(1)
	return errors.New("always fails")
}

func newManager(t *testing.T, d queue.Driver, opts queue.Options) *queue.Manager {
	t.Helper()
	m := queue.New(d, opts)
	m.Register("echo", func() queue.Job { return &echoJob{} })
	m.Register("fail", func() queue.Job { return &failJob{} })
	return m
}

func TestDispatchAndProcess(t *testing.T) {
	echoed.Store(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newManager(t, queue.NewMemoryDriver(), queue.Options{})
	m.Start(ctx, 2)

	for i := 0; i < 20; i++ {
		require.NoError(t, m.Dispatch(ctx, &echoJob{Val: "hello"}))
	}
	assert.Eventually(t, func() bool { return echoed.Load() == 20 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	m.Wait()
}

func TestDispatchUnregistered(t *testing.T) {
	m := queue.New(queue.NewMemoryDriver(), queue.Options{})
	err := m.Dispatch(context.Background(), &echoJob{Val: "x"})
	assert.ErrorIs(t, err, queue.ErrUnregistered)
}

func TestFailedJobIsPersisted(t *testing.T) {
	attempts.Store(0)
	db, err := database.Open("sqlite", "file::memory:", database.Options{})
	require.NoError(t, err)
	defer database.Close(db)
	require.NoError(t, db.AutoMigrate(&queue.FailedJobRecord{}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newManager(t, queue.NewMemoryDriver(), queue.Options{MaxRetry: 2, Backoff: time.Millisecond, DB: db})
	m.Start(ctx, 1)
	require.NoError(t, m.Dispatch(ctx, &failJob{}))

	require.Eventually(t, func() bool { return len(m.FailedJobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())

	stored, err := queue.StoredFailedJobs(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "fail", stored[0].JobType)
	assert.Equal(t, "always fails", stored[0].Err)
	assert.Equal(t, 2, stored[0].Attempts)
}

func TestRedisDriver(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	echoed.Store(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := queue.NewRedisDriver(rdb)
	m := newManager(t, d, queue.Options{})
	m.Start(ctx, 1)
	go d.PromoteDelayed(ctx, 20*time.Millisecond)

	require.NoError(t, m.Dispatch(ctx, &echoJob{Val: "now"}))
	require.NoError(t, m.DispatchAfter(ctx, &echoJob{Val: "later"}, 0))

	assert.Eventually(t, func() bool { return echoed.Load() == 2 }, 3*time.Second, 20*time.Millisecond)
}
