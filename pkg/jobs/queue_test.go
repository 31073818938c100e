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

func TestQueueRetriesUntilFinalAttempt(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts []Job
		done     = make(chan struct{})
	)
	handler := func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, job)
		if job.Final() {
			close(done)
		}
		return errors.New("export failed")
	}
	q := NewQueue("test", handler, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "gradebook"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to its final attempt")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, 3)
	for i, job := range attempts {
		assert.Equal(t, i, job.Attempt)
		assert.Equal(t, 3, job.MaxAttempts)
	}
}

func TestQueueRecoversPanics(t *testing.T) {
	observed := make(chan error, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		panic("nil exporter")
	}, QueueConfig{Observer: func(_ string, _ time.Duration, err error) { observed <- err }})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-2", MaxAttempts: 1}))
	select {
	case err := <-observed:
		assert.ErrorContains(t, err, "panicked")
	case <-time.After(2 * time.Second):
		t.Fatal("observer not called")
	}
}

func TestQueueEnqueueRejections(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	assert.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrNotRunning)

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "b"}))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "c"}), ErrQueueFull)

	close(block)
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrNotRunning)
}

func TestJobFinal(t *testing.T) {
	assert.False(t, Job{}.Final())
	assert.False(t, Job{Attempt: 0, MaxAttempts: 2}.Final())
	assert.True(t, Job{Attempt: 1, MaxAttempts: 2}.Final())
}
