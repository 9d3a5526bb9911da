package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, w *Worker, id, status string) Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := w.Status(id); ok && task.Status == status {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := w.Status(id)
	t.Fatalf("task %s never reached status %q (last: %q)", id, status, task.Status)
	return Task{}
}

func TestWorker_RunsTasksInOrder(t *testing.T) {
	w := New(8, zerolog.Nop())
	defer w.Shutdown(context.Background())

	var mu sync.Mutex
	var order []int

	var ids []string
	for i := 1; i <= 3; i++ {
		i := i
		id, err := w.Enqueue("ordered", func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	last := waitForStatus(t, w, ids[2], StatusDone)
	assert.Equal(t, 3, last.Result)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestWorker_TaskFailureRecorded(t *testing.T) {
	w := New(8, zerolog.Nop())
	defer w.Shutdown(context.Background())

	id, err := w.Enqueue("failing", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("backfill exploded")
	})
	require.NoError(t, err)

	task := waitForStatus(t, w, id, StatusError)
	assert.Equal(t, "backfill exploded", task.Error)
	assert.NotNil(t, task.FinishedAt)
}

func TestWorker_CancelQueuedTask(t *testing.T) {
	w := New(8, zerolog.Nop())
	defer w.Shutdown(context.Background())

	release := make(chan struct{})
	blockerID, err := w.Enqueue("blocker", func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	queuedID, err := w.Enqueue("victim", func(ctx context.Context) (interface{}, error) {
		return "should never run", nil
	})
	require.NoError(t, err)

	waitForStatus(t, w, blockerID, StatusRunning)
	assert.True(t, w.Cancel(queuedID))
	close(release)

	waitForStatus(t, w, blockerID, StatusDone)
	task := waitForStatus(t, w, queuedID, StatusCancelled)
	assert.Nil(t, task.Result)

	// a finished task cannot be cancelled
	assert.False(t, w.Cancel(blockerID))
}

func TestWorker_UnknownTask(t *testing.T) {
	w := New(8, zerolog.Nop())
	defer w.Shutdown(context.Background())

	_, ok := w.Status("nope")
	assert.False(t, ok)
	assert.False(t, w.Cancel("nope"))
}

func TestWorker_QueueFull(t *testing.T) {
	w := New(1, zerolog.Nop())
	defer w.Shutdown(context.Background())

	release := make(chan struct{})
	defer close(release)

	_, err := w.Enqueue("blocker", func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	// fill the single queue slot, then the next enqueue is rejected
	var filled bool
	for i := 0; i < 3; i++ {
		if _, err := w.Enqueue("filler", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}); err != nil {
			filled = true
			break
		}
	}
	assert.True(t, filled)
}
