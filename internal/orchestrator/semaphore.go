package orchestrator

import (
	"context"
	"sync"
)

// dispatchSemaphore bounds how many provider calls run at once across all
// jobs. The limit can be changed while dispatches are waiting; waiters
// re-evaluate on every change. A limit of 0 means unlimited.
type dispatchSemaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	acquired int
}

func newDispatchSemaphore(limit int) *dispatchSemaphore {
	s := &dispatchSemaphore{limit: max(limit, 0)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire blocks until a slot is free or ctx is done.
func (s *dispatchSemaphore) Acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.limit == 0 {
		s.acquired++
		return nil
	}

	// Wake the cond wait when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()

	for s.limit > 0 && s.acquired >= s.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.acquired++
	return nil
}

// Release frees a slot. All waiters are woken because some of them may have
// given up on a cancelled context and would otherwise swallow the signal.
func (s *dispatchSemaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired > 0 {
		s.acquired--
	}
	s.cond.Broadcast()
}

// SetLimit changes the capacity. Negative values are clamped to 0.
// Lowering the limit never preempts slots already held.
func (s *dispatchSemaphore) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limit = max(n, 0)
	s.cond.Broadcast()
}

// Limit returns the current limit (0 = unlimited).
func (s *dispatchSemaphore) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

// Acquired returns the number of slots currently held.
func (s *dispatchSemaphore) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}
