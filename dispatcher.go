package eventlink

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Capabilities select the loop every dispatcher worker runs.
type Capabilities struct {
	// CopyArguments copies each argument out of its slot before use. Answerless
	// slots are then released before consumption, freeing capacity earlier.
	// When false, consumers and listeners read the slot in place.
	CopyArguments bool

	NotifyListeners   bool
	ConsumeAnswerless bool
	ConsumeAnswerfull bool
}

// DispatcherStats are the dispatcher's running totals.
type DispatcherStats struct {
	Workers          int    `yaml:"workers"`
	InFlight         int64  `yaml:"in_flight"`
	Consumed         uint64 `yaml:"consumed"`
	ConsumerFailures uint64 `yaml:"consumer_failures"`
	ListenerFailures uint64 `yaml:"listener_failures"`
	Abandoned        uint64 `yaml:"abandoned"`
}

type dispatcherSettings struct {
	pollInterval time.Duration
	clock        clock.Clock
	log          *zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherSettings)

// WithPollInterval sets how often StopWhenEmpty checks for a drained channel.
func WithPollInterval(d time.Duration) DispatcherOption {
	return func(s *dispatcherSettings) {
		s.pollInterval = d
	}
}

// WithClock sets the clock StopWhenEmpty polls with.
func WithClock(c clock.Clock) DispatcherOption {
	return func(s *dispatcherSettings) {
		s.clock = c
	}
}

// WithDispatcherLogger sets the logger for worker diagnostics.
func WithDispatcherLogger(l zerolog.Logger) DispatcherOption {
	return func(s *dispatcherSettings) {
		s.log = &l
	}
}

type worker[A any, R any] struct {
	id         int
	answerless AnswerlessConsumer[A]
	answerfull AnswerfullConsumer[A, R]
}

// dispatch is one claimed slot travelling through a worker iteration.
type dispatch[A any, R any] struct {
	id         SlotID
	ev         Event[A, R]
	arg        *A
	answerfull bool
	released   bool
}

// Dispatcher runs a fixed pool of workers against one channel. Workers start
// as soon as the dispatcher is created and are never joined: StopASAP
// abandons them and StopWhenEmpty is the graceful way to stop.
type Dispatcher[A any, R any] struct {
	id       string
	ch       *Channel[A, R]
	caps     Capabilities
	nWorkers int
	settings dispatcherSettings

	active   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight atomic.Int64

	consumed         atomic.Uint64
	consumerFailures atomic.Uint64
	listenerFailures atomic.Uint64
	abandoned        atomic.Uint64
}

// NewDispatcher validates the combination of channel configuration, worker
// count and capabilities, then starts the workers. On error nothing is started.
func NewDispatcher[A any, R any](ch *Channel[A, R], workers int, caps Capabilities, opts ...DispatcherOption) (*Dispatcher[A, R], error) {
	settings := dispatcherSettings{
		pollInterval: time.Millisecond,
		clock:        clock.New(),
	}
	for _, opt := range opts {
		opt(&settings)
	}

	answerless, answerfull := ch.consumers()
	var errs error
	if workers < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d", ErrInvalidWorkerCount, workers))
	}
	switch {
	case caps.ConsumeAnswerless && caps.ConsumeAnswerfull:
		errs = multierr.Append(errs, ErrConflictingCapabilities)
	case !caps.ConsumeAnswerless && !caps.ConsumeAnswerfull && !caps.NotifyListeners:
		errs = multierr.Append(errs, ErrUnsupportedCapabilities)
	}
	if caps.ConsumeAnswerless {
		errs = multierr.Append(errs, checkContexts("answerless", len(answerless), workers))
	}
	if caps.ConsumeAnswerfull {
		errs = multierr.Append(errs, checkContexts("answerfull", len(answerfull), workers))
	}
	if errs != nil {
		return nil, fmt.Errorf("eventlink: dispatcher for channel %q: %w", ch.Name(), errs)
	}

	d := &Dispatcher[A, R]{
		id:       uuid.NewString(),
		ch:       ch,
		caps:     caps,
		nWorkers: workers,
		settings: settings,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.active.Store(true)

	var loop func(w *worker[A, R])
	switch {
	case caps.ConsumeAnswerless && caps.NotifyListeners:
		loop = d.consumeAnswerlessAndNotifyLoop
	case caps.ConsumeAnswerfull && caps.NotifyListeners:
		loop = d.consumeAnswerfullAndNotifyLoop
	case caps.ConsumeAnswerless:
		loop = d.consumeAnswerlessLoop
	case caps.ConsumeAnswerfull:
		loop = d.consumeAnswerfullLoop
	default:
		loop = d.notifyLoop
	}

	for i := 0; i < workers; i++ {
		w := &worker[A, R]{id: i}
		if caps.ConsumeAnswerless {
			w.answerless = answerless[i]
		}
		if caps.ConsumeAnswerfull {
			w.answerfull = answerfull[i]
		}
		go d.run(w, loop)
	}
	d.logger().Debug().
		Str("dispatcher", d.id).
		Str("channel", ch.Name()).
		Int("workers", workers).
		Msg("dispatcher started")
	return d, nil
}

func checkContexts(kind string, contexts, workers int) error {
	if contexts == 0 {
		return fmt.Errorf("%w: %s consumption requested", ErrNoConsumer, kind)
	}
	if workers > contexts {
		return fmt.Errorf("%w: %d workers but only %d %s consumer contexts", ErrNotEnoughContexts, workers, contexts, kind)
	}
	return nil
}

// ID identifies this dispatcher in logs.
func (d *Dispatcher[A, R]) ID() string {
	return d.id
}

func (d *Dispatcher[A, R]) logger() *zerolog.Logger {
	if d.settings.log != nil {
		return d.settings.log
	}
	return d.ch.logger()
}

func (d *Dispatcher[A, R]) run(w *worker[A, R], loop func(w *worker[A, R])) {
	loop(w)
	d.logger().Debug().
		Str("dispatcher", d.id).
		Int("worker", w.id).
		Msg("worker exited")
}

func (d *Dispatcher[A, R]) consumeAnswerlessAndNotifyLoop(w *worker[A, R]) {
	for d.active.Load() {
		dsp, ok := d.next()
		if !ok {
			return
		}
		d.consumeAnswerless(w, &dsp)
		d.notify(w, &dsp)
		d.finish(&dsp)
	}
}

func (d *Dispatcher[A, R]) consumeAnswerfullAndNotifyLoop(w *worker[A, R]) {
	for d.active.Load() {
		dsp, ok := d.next()
		if !ok {
			return
		}
		d.consumeAnswerfull(w, &dsp)
		d.notify(w, &dsp)
		d.finish(&dsp)
	}
}

func (d *Dispatcher[A, R]) consumeAnswerlessLoop(w *worker[A, R]) {
	for d.active.Load() {
		dsp, ok := d.next()
		if !ok {
			return
		}
		d.consumeAnswerless(w, &dsp)
		d.finish(&dsp)
	}
}

func (d *Dispatcher[A, R]) consumeAnswerfullLoop(w *worker[A, R]) {
	for d.active.Load() {
		dsp, ok := d.next()
		if !ok {
			return
		}
		d.consumeAnswerfull(w, &dsp)
		d.finish(&dsp)
	}
}

func (d *Dispatcher[A, R]) notifyLoop(w *worker[A, R]) {
	for d.active.Load() {
		dsp, ok := d.next()
		if !ok {
			return
		}
		d.notify(w, &dsp)
		d.finish(&dsp)
	}
}

// next claims the oldest ready slot. It returns false once the dispatcher has
// been stopped; a slot claimed after the stop is abandoned unreleased.
func (d *Dispatcher[A, R]) next() (dispatch[A, R], bool) {
	id, ev, err := d.ch.reserveForDispatch(d.ctx, d.claimed)
	if err != nil {
		return dispatch[A, R]{}, false
	}
	if !d.active.Load() {
		d.inFlight.Add(-1)
		d.abandoned.Add(1)
		return dispatch[A, R]{}, false
	}
	dsp := dispatch[A, R]{id: id, ev: ev, arg: ev.Arg(), answerfull: ev.Answerfull()}
	if d.caps.CopyArguments {
		arg := *dsp.arg
		dsp.arg = &arg
		if !dsp.answerfull {
			d.ch.Release(id)
			dsp.released = true
		}
	}
	return dsp, true
}

func (d *Dispatcher[A, R]) claimed() {
	d.inFlight.Add(1)
}

func (d *Dispatcher[A, R]) finish(dsp *dispatch[A, R]) {
	if dsp.answerfull {
		dsp.ev.s.done.settle()
	}
	if !dsp.released {
		d.ch.FinishDispatch(dsp.id)
	}
	d.inFlight.Add(-1)
}

func (d *Dispatcher[A, R]) consumeAnswerless(w *worker[A, R], dsp *dispatch[A, R]) {
	defer func() {
		if r := recover(); r != nil {
			d.consumerFailed(w, w.answerless, dsp, &PanicError{Value: r})
		}
	}()
	if err := w.answerless.Consume(dsp.arg); err != nil {
		d.consumerFailed(w, w.answerless, dsp, err)
		return
	}
	d.consumed.Add(1)
}

func (d *Dispatcher[A, R]) consumeAnswerfull(w *worker[A, R], dsp *dispatch[A, R]) {
	defer func() {
		if r := recover(); r != nil {
			d.consumerFailed(w, w.answerfull, dsp, &PanicError{Value: r})
		}
	}()
	if err := w.answerfull.Consume(dsp.arg, dsp.ev.Reply()); err != nil {
		d.consumerFailed(w, w.answerfull, dsp, err)
		return
	}
	d.consumed.Add(1)
}

// consumerFailed logs a consumption failure. Nothing is retried; answerfull
// slots carry the failure to the producer waiting for the answer.
func (d *Dispatcher[A, R]) consumerFailed(w *worker[A, R], consumer any, dsp *dispatch[A, R], err error) {
	d.consumerFailures.Add(1)
	arg := d.ch.serialize(dsp.arg)
	d.logger().Error().
		Str("dispatcher", d.id).
		Str("channel", d.ch.Name()).
		Int("worker", w.id).
		Str("consumer", describe(consumer)).
		Str("argument", arg).
		Bool("answerfull", dsp.answerfull).
		Err(err).
		Msg("consumer failed; event will not be retried")
	if dsp.answerfull {
		dsp.ev.s.done.fail(&ConsumerError{
			Channel:  d.ch.Name(),
			Worker:   w.id,
			Argument: arg,
			Err:      err,
		})
	}
}

func (d *Dispatcher[A, R]) notify(w *worker[A, R], dsp *dispatch[A, R]) {
	err := d.ch.NotifyListeners(dsp.arg)
	if err == nil {
		return
	}
	arg := d.ch.serialize(dsp.arg)
	for _, lerr := range multierr.Errors(err) {
		d.listenerFailures.Add(1)
		ev := d.logger().Error().
			Str("dispatcher", d.id).
			Str("channel", d.ch.Name()).
			Int("worker", w.id).
			Str("argument", arg)
		if le, ok := lerr.(*ListenerError); ok {
			ev = ev.Int("listener", le.Index).Err(le.Err)
		} else {
			ev = ev.Err(lerr)
		}
		ev.Msg("listener failed")
	}
}

// StopASAP deactivates the dispatcher without waiting for its workers. Workers
// parked on an empty channel leave immediately; a worker in the middle of an
// event finishes that event and exits. Ready events stay in the channel.
func (d *Dispatcher[A, R]) StopASAP() {
	if d.active.CompareAndSwap(true, false) {
		d.cancel()
		d.logger().Debug().
			Str("dispatcher", d.id).
			Str("channel", d.ch.Name()).
			Msg("dispatcher stopped")
	}
}

// StopWhenEmpty polls until no event is ready and no worker is mid-event,
// then calls StopASAP.
func (d *Dispatcher[A, R]) StopWhenEmpty() {
	_ = d.StopWhenEmptyContext(context.Background())
}

// StopWhenEmptyContext is StopWhenEmpty giving up when ctx is done, in which
// case the dispatcher keeps running.
func (d *Dispatcher[A, R]) StopWhenEmptyContext(ctx context.Context) error {
	for d.active.Load() && !d.drained() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.settings.clock.After(d.settings.pollInterval):
		}
	}
	d.StopASAP()
	return nil
}

func (d *Dispatcher[A, R]) drained() bool {
	var inFlight int64
	ready := d.ch.readyLengthWith(func() { inFlight = d.inFlight.Load() })
	return ready == 0 && inFlight == 0
}

// Stop stops once the channel is drained.
func (d *Dispatcher[A, R]) Stop() error {
	d.StopWhenEmpty()
	return nil
}

// IsRunning reports whether the dispatcher has not been stopped.
func (d *Dispatcher[A, R]) IsRunning() bool {
	return d.active.Load()
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher[A, R]) Stats() DispatcherStats {
	return DispatcherStats{
		Workers:          d.nWorkers,
		InFlight:         d.inFlight.Load(),
		Consumed:         d.consumed.Load(),
		ConsumerFailures: d.consumerFailures.Load(),
		ListenerFailures: d.listenerFailures.Load(),
		Abandoned:        d.abandoned.Load(),
	}
}
