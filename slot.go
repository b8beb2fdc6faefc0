package eventlink

// slotPhase tracks the two-phase release of an answerfull slot. The slot may
// only go back to the free region once the dispatcher is done with it AND the
// producer has collected the answer, in whichever order those happen.
type slotPhase uint8

const (
	phasePending    slotPhase = 0
	phaseDispatched slotPhase = 1 << 0
	phaseCollected  slotPhase = 1 << 1
	phaseReleased   slotPhase = phaseDispatched | phaseCollected
)

func (p slotPhase) String() string {
	switch p {
	case phasePending:
		return "pending"
	case phaseDispatched:
		return "dispatched"
	case phaseCollected:
		return "collected"
	case phaseReleased:
		return "released"
	}
	return "unknown"
}

// slot is one ring position.
type slot[A any, R any] struct {
	arg   A
	reply *R
	done  *completion

	// reserved is true from claim until commit (producer side) and from
	// dispatch until release (consumer side). Only the forward scans read it.
	reserved bool
	phase    slotPhase
}

// Event is the consumer-side view of a dispatched slot.
type Event[A any, R any] struct {
	s *slot[A, R]
}

// Arg points at the argument stored in the slot. It is valid until the slot is released.
func (e Event[A, R]) Arg() *A {
	return &e.s.arg
}

// Answerfull reports whether the producer asked for a reply.
func (e Event[A, R]) Answerfull() bool {
	return e.s.reply != nil
}

// Reply returns the handle used to deliver the answer for this event.
func (e Event[A, R]) Reply() Reply[R] {
	return Reply[R]{target: e.s.reply, done: e.s.done}
}

// Reply is the consumer's handle on the producer-owned reply target.
// For answerless events every method is a no-op.
type Reply[R any] struct {
	target *R
	done   *completion
}

// Requested reports whether the producer is waiting for an answer.
func (r Reply[R]) Requested() bool {
	return r.target != nil
}

// Target is the producer-owned storage the answer must be written to, or nil.
// Consumers that fill it in place must call Done afterwards.
func (r Reply[R]) Target() *R {
	return r.target
}

// Send writes v into the reply target and signals completion.
func (r Reply[R]) Send(v R) {
	if r.target == nil {
		return
	}
	*r.target = v
	r.done.answer()
}

// Done signals that the answer was written in place through Target.
func (r Reply[R]) Done() {
	if r.target == nil {
		return
	}
	r.done.answer()
}
