package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})

	err := q.Enqueue(Job{ID: "job-1", Type: "noop"})
	assert.Error(t, err)
}

func TestQueueDeliversJobsToHandler(t *testing.T) {
	var mu sync.Mutex
	received := make(map[string]bool)
	done := make(chan struct{}, 2)

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		received[job.ID] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "leaderboard_refresh"}))
	require.NoError(t, q.Enqueue(Job{ID: "job-2", Type: "leaderboard_refresh"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, received["job-1"])
	assert.True(t, received["job-2"])
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	succeeded := make(chan int, 1)

	q := NewQueue("test", func(_ context.Context, job Job) error {
		mu.Lock()
		attempts++
		count := attempts
		mu.Unlock()
		if count < 3 {
			return errors.New("transient failure")
		}
		succeeded <- job.Attempt
		return nil
	}, QueueConfig{MaxRetries: 5, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "flaky"}))

	select {
	case attempt := <-succeeded:
		assert.Equal(t, 2, attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestQueueStopPreventsFurtherEnqueue(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	q.Stop()

	err := q.Enqueue(Job{ID: "job-1", Type: "noop"})
	assert.Error(t, err)
}

func TestQueueStampEnqueuedTime(t *testing.T) {
	got := make(chan Job, 1)
	q := NewQueue("test", func(_ context.Context, job Job) error {
		got <- job
		return nil
	}, QueueConfig{})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "noop"}))

	select {
	case job := <-got:
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
	}
}
