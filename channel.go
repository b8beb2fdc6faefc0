package eventlink

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sys/cpu"
)

const (
	defaultLog2Slots    = 8
	maxLog2Slots        = 16
	defaultMaxListeners = 10
)

// SlotID is the ring position of a reservation.
type SlotID uint32

// Channel is a fixed-capacity event channel for one event kind.
//
// Its ring is split by four monotonically advancing cursors:
//
//	freeBoundary <= readyHead <= readyTail <= reserveTail
//
// [freeBoundary, readyHead) is held by consumers, [readyHead, readyTail) is
// committed and waiting for dispatch, [readyTail, reserveTail) is being filled
// by producers and everything else is free. Cursors are never wrapped; the
// ring position of a cursor is cursor & mask.
//
// Only cursor bookkeeping happens under the channel lock. Producers fill and
// consumers read a claimed slot's argument in place, outside of it.
type Channel[A any, R any] struct {
	name       string
	log2Slots  int
	maxListen  int
	log        *zerolog.Logger
	serializer func(*A) string

	_            cpu.CacheLinePad
	mu           sync.Mutex
	freeBoundary uint64
	readyHead    uint64
	readyTail    uint64
	reserveTail  uint64
	fullGate     gate
	emptyGate    gate
	_            cpu.CacheLinePad

	mask  uint64
	slots []slot[A, R]

	answerless []AnswerlessConsumer[A]
	answerfull []AnswerfullConsumer[A, R]
	listeners  listenerTable[A]

	reported   atomic.Uint64
	dispatched atomic.Uint64
	released   atomic.Uint64
}

// ChannelOption configures a Channel.
type ChannelOption[A any, R any] func(*Channel[A, R])

// WithLog2Slots sets the capacity to 1<<k slots.
func WithLog2Slots[A any, R any](k int) ChannelOption[A, R] {
	return func(c *Channel[A, R]) {
		c.log2Slots = k
	}
}

// WithMaxListeners sets the size of the fixed listener table.
func WithMaxListeners[A any, R any](n int) ChannelOption[A, R] {
	return func(c *Channel[A, R]) {
		c.maxListen = n
	}
}

// WithLogger sets the logger used for this channel's diagnostics.
func WithLogger[A any, R any](l zerolog.Logger) ChannelOption[A, R] {
	return func(c *Channel[A, R]) {
		c.log = &l
	}
}

// WithSerializer sets how arguments are rendered in failure logs, overriding
// the type-based serializer registry.
func WithSerializer[A any, R any](fn func(*A) string) ChannelOption[A, R] {
	return func(c *Channel[A, R]) {
		c.serializer = fn
	}
}

// NewChannel creates an empty channel with no consumer and no listeners.
func NewChannel[A any, R any](name string, opts ...ChannelOption[A, R]) (*Channel[A, R], error) {
	c := &Channel[A, R]{
		name:      name,
		log2Slots: defaultLog2Slots,
		maxListen: defaultMaxListeners,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log2Slots < 1 || c.log2Slots > maxLog2Slots {
		return nil, fmt.Errorf("eventlink: channel %q: %w: log2 slots must be in [1, %d], got %d",
			name, ErrInvalidCapacity, maxLog2Slots, c.log2Slots)
	}
	if c.maxListen < 0 {
		return nil, fmt.Errorf("eventlink: channel %q: %w: negative listener table size %d",
			name, ErrInvalidCapacity, c.maxListen)
	}
	size := uint64(1) << uint(c.log2Slots)
	c.mask = size - 1
	c.slots = make([]slot[A, R], size)
	for i := range c.slots {
		c.slots[i].done = newCompletion()
	}
	c.listeners = newListenerTable[A](c.maxListen)
	return c, nil
}

// Name returns the channel's event name.
func (c *Channel[A, R]) Name() string {
	return c.name
}

// Capacity returns the number of slots in the ring.
func (c *Channel[A, R]) Capacity() int {
	return int(c.mask + 1)
}

func (c *Channel[A, R]) logger() *zerolog.Logger {
	return resolveLogger(c.log)
}

func (c *Channel[A, R]) serialize(arg *A) string {
	if c.serializer != nil {
		return c.serializer(arg)
	}
	return serializeArg(arg)
}

// SetAnswerlessConsumer registers the answerless consumer, one context per
// dispatcher worker, replacing any registered consumer.
func (c *Channel[A, R]) SetAnswerlessConsumer(consumers ...AnswerlessConsumer[A]) error {
	if len(consumers) == 0 {
		return fmt.Errorf("eventlink: channel %q: %w", c.name, ErrNoConsumerContexts)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerless = slices.Clone(consumers)
	c.answerfull = nil
	return nil
}

// SetAnswerfullConsumer registers the answerfull consumer, one context per
// dispatcher worker, replacing any registered consumer.
func (c *Channel[A, R]) SetAnswerfullConsumer(consumers ...AnswerfullConsumer[A, R]) error {
	if len(consumers) == 0 {
		return fmt.Errorf("eventlink: channel %q: %w", c.name, ErrNoConsumerContexts)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerfull = slices.Clone(consumers)
	c.answerless = nil
	return nil
}

// UnsetConsumer removes whichever consumer is registered.
func (c *Channel[A, R]) UnsetConsumer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answerless = nil
	c.answerfull = nil
}

func (c *Channel[A, R]) consumers() ([]AnswerlessConsumer[A], []AnswerfullConsumer[A, R]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answerless, c.answerfull
}

// AddListener appends l to the listener table. Listeners are notified in
// registration order. Must not be called while a dispatcher is running.
func (c *Channel[A, R]) AddListener(l Listener[A]) (ListenerHandle, error) {
	h, err := c.listeners.add(l)
	if err != nil {
		return 0, fmt.Errorf("eventlink: channel %q: %w", c.name, err)
	}
	return h, nil
}

// RemoveListener removes the listener registered under h, keeping the order of
// the others. Must not be called while a dispatcher is running.
func (c *Channel[A, R]) RemoveListener(h ListenerHandle) bool {
	return c.listeners.remove(h)
}

// Listeners returns the number of registered listeners.
func (c *Channel[A, R]) Listeners() int {
	return c.listeners.len()
}

// NotifyListeners calls every listener with arg. Each failure is returned as a
// *ListenerError, combined with multierr.
func (c *Channel[A, R]) NotifyListeners(arg *A) error {
	return c.listeners.notify(arg)
}

// ReserveForReport claims the next free slot, blocking while the channel is
// full, and returns a pointer to fill the argument in place. A non-nil reply
// makes the event answerfull: reply receives the consumer's answer and the
// producer must call WaitForAnswer for the slot to be reused.
func (c *Channel[A, R]) ReserveForReport(reply *R) (SlotID, *A) {
	id, arg, _ := c.ReserveForReportContext(context.Background(), reply)
	return id, arg
}

// ReserveForReportContext is ReserveForReport giving up when ctx is done.
// Nothing is claimed when it returns an error.
func (c *Channel[A, R]) ReserveForReportContext(ctx context.Context, reply *R) (SlotID, *A, error) {
	for {
		c.mu.Lock()
		if err := ctxErr(ctx); err != nil {
			c.mu.Unlock()
			return 0, nil, err
		}
		if c.reserveTail-c.freeBoundary > c.mask {
			wake := c.fullGate.arm()
			c.mu.Unlock()
			if err := park(ctx, wake); err != nil {
				return 0, nil, err
			}
			continue
		}
		pos := c.reserveTail & c.mask
		c.reserveTail++
		s := &c.slots[pos]
		s.reserved = true
		s.reply = reply
		s.phase = phasePending
		if reply != nil {
			s.done.arm()
		}
		c.mu.Unlock()
		return SlotID(pos), &s.arg, nil
	}
}

// ReportReserved commits a slot filled after ReserveForReport. Slots committed
// out of order only become visible once every earlier reservation commits.
func (c *Channel[A, R]) ReportReserved(id SlotID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[id].reserved = false
	c.reported.Add(1)
	if uint64(id) != c.readyTail&c.mask || c.readyTail == c.reserveTail {
		return
	}
	for {
		c.readyTail++
		if c.readyTail == c.reserveTail || c.slots[c.readyTail&c.mask].reserved {
			break
		}
	}
	c.emptyGate.open()
}

// Report reserves, copies arg in and commits an answerless event.
func (c *Channel[A, R]) Report(arg A) {
	id, p := c.ReserveForReport(nil)
	*p = arg
	c.ReportReserved(id)
}

// ReportAndWait reports an answerfull event and waits for its answer.
func (c *Channel[A, R]) ReportAndWait(arg A) (R, error) {
	var reply R
	id, p := c.ReserveForReport(&reply)
	*p = arg
	c.ReportReserved(id)
	return c.WaitForAnswer(id)
}

// ReserveForDispatch claims the oldest committed slot, blocking while the
// channel is empty.
func (c *Channel[A, R]) ReserveForDispatch() (SlotID, Event[A, R]) {
	id, ev, _ := c.reserveForDispatch(context.Background(), nil)
	return id, ev
}

// ReserveForDispatchContext is ReserveForDispatch giving up when ctx is done.
func (c *Channel[A, R]) ReserveForDispatchContext(ctx context.Context) (SlotID, Event[A, R], error) {
	return c.reserveForDispatch(ctx, nil)
}

// reserveForDispatch runs onClaim under the bookkeeping lock, atomically with
// the claim, so observers never see the event neither ready nor claimed. Once
// ctx is done no further slot is claimed, even if one is ready.
func (c *Channel[A, R]) reserveForDispatch(ctx context.Context, onClaim func()) (SlotID, Event[A, R], error) {
	for {
		c.mu.Lock()
		if err := ctxErr(ctx); err != nil {
			c.mu.Unlock()
			return 0, Event[A, R]{}, err
		}
		if c.readyHead == c.readyTail {
			wake := c.emptyGate.arm()
			c.mu.Unlock()
			if err := park(ctx, wake); err != nil {
				return 0, Event[A, R]{}, err
			}
			continue
		}
		pos := c.readyHead & c.mask
		c.readyHead++
		s := &c.slots[pos]
		s.reserved = true
		if onClaim != nil {
			onClaim()
		}
		c.dispatched.Add(1)
		c.mu.Unlock()
		return SlotID(pos), Event[A, R]{s: s}, nil
	}
}

// Release returns a dispatched slot to the free region. Answerfull slots
// behave as with FinishDispatch: they stay held until the producer collected
// the answer.
func (c *Channel[A, R]) Release(id SlotID) {
	c.FinishDispatch(id)
}

// FinishDispatch is the consumer half of the two-phase release: answerless
// slots are released, answerfull ones once the producer collected the answer.
// An answerfull slot nobody answered is settled with ErrNotAnswered.
func (c *Channel[A, R]) FinishDispatch(id SlotID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := &c.slots[id]; s.reply != nil {
		s.done.settle()
	}
	c.advancePhase(id, phaseDispatched)
}

func (c *Channel[A, R]) collect(id SlotID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advancePhase(id, phaseCollected)
}

func (c *Channel[A, R]) advancePhase(id SlotID, p slotPhase) {
	s := &c.slots[id]
	if s.reply == nil {
		c.releaseLocked(id)
		return
	}
	s.phase |= p
	if s.phase == phaseReleased {
		c.releaseLocked(id)
	}
}

func (c *Channel[A, R]) releaseLocked(id SlotID) {
	s := &c.slots[id]
	var zero A
	s.arg = zero
	s.reply = nil
	s.reserved = false
	s.phase = phasePending
	c.released.Add(1)
	if uint64(id) != c.freeBoundary&c.mask || c.freeBoundary == c.readyHead {
		return
	}
	for {
		c.freeBoundary++
		if c.freeBoundary == c.readyHead || c.slots[c.freeBoundary&c.mask].reserved {
			break
		}
	}
	c.fullGate.open()
}

// WaitForAnswer blocks until the answer of an answerfull event is ready.
//
// When the consumer failed before answering, the failure is returned. When it
// failed after answering, the answer is returned and the failure only logged.
func (c *Channel[A, R]) WaitForAnswer(id SlotID) (R, error) {
	return c.WaitForAnswerContext(context.Background(), id)
}

// WaitForAnswerContext is WaitForAnswer giving up when ctx is done. Giving up
// leaves the slot untouched and the wait may be retried.
func (c *Channel[A, R]) WaitForAnswerContext(ctx context.Context, id SlotID) (R, error) {
	var zero R
	c.mu.Lock()
	s := &c.slots[id]
	reply := s.reply
	c.mu.Unlock()
	if reply == nil {
		return zero, fmt.Errorf("eventlink: channel %q slot %d: %w", c.name, id, ErrNoReplyRequested)
	}
	answered, failure, err := s.done.wait(ctx)
	if err != nil {
		return zero, err
	}
	value := *reply
	c.collect(id)
	if failure != nil {
		if !answered {
			return zero, failure
		}
		c.logger().Warn().
			Str("channel", c.name).
			Uint32("slot", uint32(id)).
			Err(failure).
			Msg("consumer failed after producing an answer")
	}
	return value, nil
}

// ReadyLength is the number of committed events waiting for dispatch.
func (c *Channel[A, R]) ReadyLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.readyTail - c.readyHead)
}

// ReservedLength is the number of slots not free: being filled, ready, or
// held by consumers.
func (c *Channel[A, R]) ReservedLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int(c.reserveTail - c.freeBoundary)
}

func (c *Channel[A, R]) readyLengthWith(probe func()) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	probe()
	return int(c.readyTail - c.readyHead)
}

// Snapshot is a point-in-time view of a channel's bookkeeping.
type Snapshot struct {
	Name            string `yaml:"name"`
	Capacity        int    `yaml:"capacity"`
	FreeBoundary    uint64 `yaml:"free_boundary"`
	ReadyHead       uint64 `yaml:"ready_head"`
	ReadyTail       uint64 `yaml:"ready_tail"`
	ReserveTail     uint64 `yaml:"reserve_tail"`
	Ready           int    `yaml:"ready"`
	Reserved        int    `yaml:"reserved"`
	ProducerFilling int    `yaml:"producer_filling"`
	ConsumerHeld    int    `yaml:"consumer_held"`
	FullGateArmed   bool   `yaml:"full_gate_armed"`
	EmptyGateArmed  bool   `yaml:"empty_gate_armed"`
	Listeners       int    `yaml:"listeners"`
	Reported        uint64 `yaml:"reported"`
	Dispatched      uint64 `yaml:"dispatched"`
	Released        uint64 `yaml:"released"`
}

// Snapshot captures cursors, region sizes, gate states and counters.
func (c *Channel[A, R]) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Name:            c.name,
		Capacity:        int(c.mask + 1),
		FreeBoundary:    c.freeBoundary,
		ReadyHead:       c.readyHead,
		ReadyTail:       c.readyTail,
		ReserveTail:     c.reserveTail,
		Ready:           int(c.readyTail - c.readyHead),
		Reserved:        int(c.reserveTail - c.freeBoundary),
		ProducerFilling: int(c.reserveTail - c.readyTail),
		ConsumerHeld:    int(c.readyHead - c.freeBoundary),
		FullGateArmed:   c.fullGate.isArmed(),
		EmptyGateArmed:  c.emptyGate.isArmed(),
		Listeners:       c.listeners.len(),
		Reported:        c.reported.Load(),
		Dispatched:      c.dispatched.Load(),
		Released:        c.released.Load(),
	}
}
