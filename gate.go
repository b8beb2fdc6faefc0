package eventlink

import "context"

// gate is a one-shot wait/wake handoff. It is armed when a waiter observes a
// full (or empty) channel and opened by the side that changes that condition.
//
// All fields are guarded by the owning channel's bookkeeping lock. The waiter
// captures the wake channel while holding that lock and parks on it after
// unlocking, so an open between the two can never be lost.
type gate struct {
	armed bool
	wake  chan struct{}
}

// arm returns the channel to park on, creating it if the gate was idle.
func (g *gate) arm() <-chan struct{} {
	if !g.armed {
		g.armed = true
		g.wake = make(chan struct{})
	}
	return g.wake
}

// open wakes every parked waiter. Each of them re-validates its condition.
func (g *gate) open() {
	if g.armed {
		g.armed = false
		close(g.wake)
	}
}

func (g *gate) isArmed() bool {
	return g.armed
}

// park blocks until wake is closed or ctx is done.
func park(ctx context.Context, wake <-chan struct{}) error {
	if ctx == nil {
		<-wake
		return nil
	}
	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
