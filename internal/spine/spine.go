// Package spine implements the process's concurrency backbone: the
// supervised goroutine topology, coordinated shutdown, and the
// bounded piece-callback queue that keeps the serial reader unblocked
// when a downstream listener is slow.
package spine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/centaurfirmware/centaurd/internal/logging"
)

// Spine supervises the process's long-lived goroutines. Every
// worker shares one context; the first error (or an explicit Shutdown)
// cancels them all, and Wait blocks until the last one has exited so
// teardown ordering stays deterministic.
type Spine struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger
}

// New creates a Spine rooted at parent.
func New(parent context.Context, log logging.Logger) *Spine {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)
	return &Spine{group: group, ctx: ctx, cancel: cancel, log: log}
}

// Context returns the spine's shared context, cancelled on the first
// worker error or on Shutdown.
func (s *Spine) Context() context.Context { return s.ctx }

// Go launches a named worker. A worker returning a non-context error
// takes the whole spine down; returning ctx.Err() on cancellation is
// the normal exit path.
func (s *Spine) Go(name string, fn func(ctx context.Context) error) {
	s.group.Go(func() error {
		err := fn(s.ctx)
		if err != nil && err != context.Canceled && s.log != nil {
			s.log.Errorf("spine: %s exited: %v", name, err)
		}
		return err
	})
}

// Shutdown requests cancellation of every worker.
func (s *Spine) Shutdown() { s.cancel() }

// Wait blocks until all workers have exited and returns the first
// non-cancellation error, if any.
func (s *Spine) Wait() error {
	err := s.group.Wait()
	s.cancel()
	if err == context.Canceled {
		return nil
	}
	return err
}

// Queue is the bounded hand-off between a producer that must never
// block (the serial reader) and a consumer that may (the piece-callback
// worker). Overflow drops the item with an
// error log instead of stalling the producer.
type Queue[T any] struct {
	ch  chan T
	log logging.Logger
	tag string
}

// DefaultQueueDepth bounds the piece-callback hand-off.
const DefaultQueueDepth = 256

// NewQueue creates a bounded queue. tag names it in overflow logs.
func NewQueue[T any](depth int, tag string, log logging.Logger) *Queue[T] {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue[T]{ch: make(chan T, depth), log: log, tag: tag}
}

// Push enqueues without blocking; a full queue drops the item and
// reports false.
func (q *Queue[T]) Push(v T) bool {
	select {
	case q.ch <- v:
		return true
	default:
		if q.log != nil {
			q.log.Errorf("spine: %s queue full, dropping event", q.tag)
		}
		return false
	}
}

// Chan exposes the receive side for callers that need to select across
// several queues on a single goroutine.
func (q *Queue[T]) Chan() <-chan T { return q.ch }

// Drain invokes fn for every queued item until ctx is cancelled. Run it
// on a dedicated worker goroutine; fn may block without affecting the
// producer.
func (q *Queue[T]) Drain(ctx context.Context, fn func(T)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-q.ch:
			fn(v)
		}
	}
}
