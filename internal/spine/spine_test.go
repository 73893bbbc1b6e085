package spine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownStopsWorkers(t *testing.T) {
	s := New(context.Background(), nil)

	var stopped atomic.Bool
	s.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})

	s.Shutdown()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !stopped.Load() {
		t.Fatal("worker did not observe cancellation")
	}
}

func TestWorkerErrorCancelsSiblings(t *testing.T) {
	s := New(context.Background(), nil)

	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })
	s.Go("sibling", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
}

func TestQueueDropsOnOverflow(t *testing.T) {
	q := NewQueue[int](2, "test", nil)

	if !q.Push(1) || !q.Push(2) {
		t.Fatal("pushes within capacity should succeed")
	}
	if q.Push(3) {
		t.Fatal("push beyond capacity should drop")
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Drain(ctx, func(v int) {
			got = append(got, v)
			if len(got) == 2 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Drain did not observe queued items")
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("drained = %v, want [1 2]", got)
	}
}
