package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueDeliversTypedPayload(t *testing.T) {
	got := make(chan Task[string], 1)
	q := NewQueue("test", func(_ context.Context, task Task[string]) error {
		got <- task
		return nil
	}, Config{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task[string]{ID: "t-1", Kind: "greeting", Payload: "hello"}))

	select {
	case task := <-got:
		require.Equal(t, "hello", task.Payload)
		require.Equal(t, "greeting", task.Kind)
		require.False(t, task.EnqueuedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("task was not delivered")
	}
}

func TestQueueRetriesFailedTask(t *testing.T) {
	attempts := make(chan int, 4)
	q := NewQueue("test", func(_ context.Context, task Task[string]) error {
		attempts <- task.Attempt
		if task.Attempt == 0 {
			return errors.New("transient")
		}
		return nil
	}, Config{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task[string]{ID: "t-1", Kind: "flaky", Payload: "x"}))

	deadline := time.After(2 * time.Second)
	var seen []int
	for len(seen) < 2 {
		select {
		case a := <-attempts:
			seen = append(seen, a)
		case <-deadline:
			t.Fatalf("expected a retry, saw attempts %v", seen)
		}
	}
	require.Equal(t, []int{0, 1}, seen)
}

func TestQueueRejectsEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("test", func(_ context.Context, _ Task[string]) error { return nil }, Config{})
	require.Error(t, q.Enqueue(Task[string]{ID: "t-1"}))
}
