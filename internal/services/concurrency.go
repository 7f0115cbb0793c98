package services

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTooManyRuns is returned when the concurrent run cap is reached
var ErrTooManyRuns = errors.New("too many concurrent runs")

// RunSemaphore caps how many import runs may execute at once. The
// service talks to a single store with a shared rate budget, so the
// cap is global rather than per caller.
type RunSemaphore struct {
	mu     sync.Mutex
	active int
	limit  int
}

// NewRunSemaphore creates a semaphore allowing up to limit concurrent
// runs. A non-positive limit means unlimited.
func NewRunSemaphore(limit int) *RunSemaphore {
	return &RunSemaphore{limit: limit}
}

// Acquire claims a run slot, failing immediately when the cap is
// reached. Imports are long-lived, so callers get an error to surface
// instead of queueing.
func (rs *RunSemaphore) Acquire() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.limit > 0 && rs.active >= rs.limit {
		return fmt.Errorf("%w (%d active)", ErrTooManyRuns, rs.active)
	}
	rs.active++
	return nil
}

// Release frees a run slot
func (rs *RunSemaphore) Release() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.active > 0 {
		rs.active--
	}
}

// Active returns the number of runs currently executing
func (rs *RunSemaphore) Active() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.active
}
