package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	done := make(chan string, 1)
	q := NewQueue("reports", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 1})

	assert.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrNotRunning)

	q.Start(context.Background())
	defer q.Stop()
	require.NoError(t, q.Enqueue(Job{ID: "job-1", Kind: "attendance"}))

	select {
	case id := <-done:
		assert.Equal(t, "job-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}
	assert.Eventually(t, func() bool { return q.Held() == 0 }, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var calls int32
	gaveUp := make(chan Job, 1)
	q := NewQueue("reports", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("renderer failed")
	}, QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		OnGiveUp:   func(job Job, err error) { gaveUp <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))

	select {
	case job := <-gaveUp:
		assert.Equal(t, 3, job.Attempt)
		assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
		assert.Zero(t, q.Held())
	case <-time.After(2 * time.Second):
		t.Fatal("queue never gave up")
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	gaveUp := make(chan error, 1)
	q := NewQueue("reports", func(ctx context.Context, job Job) error {
		panic("nil dataset")
	}, QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnGiveUp:   func(job Job, err error) { gaveUp <- err },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	select {
	case err := <-gaveUp:
		assert.Contains(t, err.Error(), "nil dataset")
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestQueueIgnoresHeldIDs(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	q := NewQueue("reports", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	assert.Equal(t, 1, q.Held())

	close(release)
	assert.Eventually(t, func() bool { return q.Held() == 0 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestQueueEnqueueFailsFastWhenFull(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	q := NewQueue("reports", func(ctx context.Context, job Job) error {
		started <- job.ID
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never started")
	}
	require.NoError(t, q.Enqueue(Job{ID: "job-2"}))

	result := make(chan error, 1)
	go func() { result <- q.Enqueue(Job{ID: "job-3"}) }()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full buffer")
	}
	assert.Equal(t, 2, q.Held())

	close(release)
	assert.Eventually(t, func() bool { return q.Held() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "job-3"}))
	assert.Eventually(t, func() bool { return q.Held() == 0 }, time.Second, 5*time.Millisecond)
}

func TestQueueEnqueueWaitBlocksUntilSlotOrCancel(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	q := NewQueue("reports", func(ctx context.Context, job Job) error {
		started <- job.ID
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	<-started
	require.NoError(t, q.Enqueue(Job{ID: "job-2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.EnqueueWait(ctx, Job{ID: "job-3"}), context.DeadlineExceeded)
	assert.Equal(t, 2, q.Held())

	waited := make(chan error, 1)
	go func() { waited <- q.EnqueueWait(context.Background(), Job{ID: "job-3"}) }()
	close(release)
	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("EnqueueWait never got a slot")
	}
	assert.Eventually(t, func() bool { return q.Held() == 0 }, time.Second, 5*time.Millisecond)
}
