package eventlink

import (
	"context"
	"sync/atomic"
)

// Pump forwards every value received from a Go channel into an event channel
// as an answerless event. It runs on its own goroutine from creation until the
// input channel closes or Stop is called.
type Pump[A any, R any] struct {
	in  <-chan A
	out *Channel[A, R]

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	closedChan chan error
	running    atomic.Bool
	count      atomic.Uint64

	OnDone func(p *Pump[A, R])
}

// PumpOption is a functional option for configuring a Pump
type PumpOption[A any, R any] func(*Pump[A, R])

// WithPumpOnDone sets the callback to be called when the pump finishes
func WithPumpOnDone[A any, R any](fn func(*Pump[A, R])) PumpOption[A, R] {
	return func(p *Pump[A, R]) {
		p.OnDone = fn
	}
}

// NewPump creates and starts a pump from in to out. The input channel is owned
// by the caller and is not drained after the pump stops.
func NewPump[A any, R any](in <-chan A, out *Channel[A, R], opts ...PumpOption[A, R]) *Pump[A, R] {
	p := &Pump[A, R]{
		in:         in,
		out:        out,
		done:       make(chan struct{}),
		closedChan: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.running.Store(true)
	go p.run()
	return p
}

func (p *Pump[A, R]) run() {
	defer p.cleanup()
	for {
		select {
		case <-p.ctx.Done():
			return
		case value, ok := <-p.in:
			if !ok {
				return
			}
			// a value received while the channel is full is dropped if the
			// pump is stopped before a slot frees up
			id, arg, err := p.out.ReserveForReportContext(p.ctx, nil)
			if err != nil {
				return
			}
			*arg = value
			p.out.ReportReserved(id)
			p.count.Add(1)
		}
	}
}

func (p *Pump[A, R]) cleanup() {
	p.running.Store(false)
	if p.OnDone != nil {
		p.OnDone(p)
	}
	close(p.closedChan)
	close(p.done)
}

// ClosedChan is closed once the pump has exited.
func (p *Pump[A, R]) ClosedChan() <-chan error {
	return p.closedChan
}

// Count returns the number of values reported so far.
func (p *Pump[A, R]) Count() uint64 {
	return p.count.Load()
}

// Stop stops the pump and waits for its goroutine to exit.
func (p *Pump[A, R]) Stop() error {
	p.cancel()
	<-p.done
	return nil
}

// IsRunning returns true until the pump has exited.
func (p *Pump[A, R]) IsRunning() bool {
	return p.running.Load()
}
