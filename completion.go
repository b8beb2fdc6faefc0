package eventlink

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// completion is the per-slot reply signal: a single-permit semaphore held
// from reservation until the answer (or a failure) is delivered.
type completion struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	armed    bool
	answered bool
	failure  error
}

func newCompletion() *completion {
	return &completion{sem: semaphore.NewWeighted(1)}
}

// arm takes the permit for a new reservation. The previous reservation of the
// slot has always fired (and been collected) before the slot is reused.
func (c *completion) arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sem.TryAcquire(1) {
		panic("eventlink: completion signal re-armed while still held")
	}
	c.armed = true
	c.answered = false
	c.failure = nil
}

func (c *completion) fire() {
	if c.armed {
		c.armed = false
		c.sem.Release(1)
	}
}

func (c *completion) answer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answered = true
	c.fire()
}

// fail records err and fires the signal if it was still armed.
func (c *completion) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = multierr.Append(c.failure, err)
	c.fire()
}

// settle fires with ErrNotAnswered if nobody answered or failed the slot.
func (c *completion) settle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed {
		c.failure = multierr.Append(c.failure, ErrNotAnswered)
		c.fire()
	}
}

// wait blocks until the signal fires, then reports the outcome.
func (c *completion) wait(ctx context.Context) (answered bool, failure error, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err = c.sem.Acquire(ctx, 1); err != nil {
		return false, nil, err
	}
	c.sem.Release(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answered, c.failure, nil
}

func (c *completion) isArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}
