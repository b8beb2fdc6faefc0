package eventlink

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReplyRequested is returned by WaitForAnswer for a slot that was
	// reserved without a reply target.
	ErrNoReplyRequested = errors.New("event was reserved without a reply target")

	// ErrNotAnswered is attached to an answerfull slot whose dispatch finished
	// without the consumer sending an answer.
	ErrNotAnswered = errors.New("event was dispatched but never answered")

	// ErrListenerTableFull is returned by AddListener when the fixed listener table has no free entry.
	ErrListenerTableFull = errors.New("listener table is full")

	// ErrNoConsumerContexts is returned when a consumer is registered with an empty context list.
	ErrNoConsumerContexts = errors.New("at least one consumer context is required")

	// ErrInvalidCapacity indicates a slot count outside the supported power-of-two range.
	ErrInvalidCapacity = errors.New("invalid channel capacity")

	// ErrInvalidWorkerCount indicates a dispatcher with less than one worker.
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrConflictingCapabilities indicates a dispatcher asked to consume both answerless and answerfull events.
	ErrConflictingCapabilities = errors.New("answerless and answerfull consumption are mutually exclusive")

	// ErrUnsupportedCapabilities indicates a dispatcher that would neither consume nor notify.
	ErrUnsupportedCapabilities = errors.New("dispatcher must consume or notify")

	// ErrNoConsumer indicates consumption was requested before a consumer of that kind was registered.
	ErrNoConsumer = errors.New("no consumer registered")

	// ErrNotEnoughContexts indicates more workers than registered consumer contexts.
	ErrNotEnoughContexts = errors.New("more workers than consumer contexts")
)

// ConsumerError is the failure captured while consuming an event. It is what
// WaitForAnswer returns when the consumer failed before producing an answer.
type ConsumerError struct {
	Channel  string
	Worker   int
	Argument string
	Err      error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("eventlink: channel %q worker #%d: consumer failed with argument %s: %v",
		e.Channel, e.Worker, e.Argument, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking consumer or listener.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a recovered error value so errors.Is sees through the panic.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
